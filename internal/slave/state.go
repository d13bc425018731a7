// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"fmt"
	"sync/atomic"
)

// State is a protocol engine state.
type State uint8

const (
	Idle State = iota
	Receiving
	CheckCrc
	CheckFunctionCode
	ReadHolding
	ReadInput
	WriteSingle
	WriteMultiple
	BuildException
	DelayBeforeResponse
	SendResponse
)

var stateNames = [...]string{
	Idle:                "idle",
	Receiving:           "receiving",
	CheckCrc:            "check_crc",
	CheckFunctionCode:   "check_function_code",
	ReadHolding:         "read_holding",
	ReadInput:           "read_input",
	WriteSingle:         "write_single",
	WriteMultiple:       "write_multiple",
	BuildException:      "build_exception",
	DelayBeforeResponse: "delay_before_response",
	SendResponse:        "send_response",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Status is the lifecycle of an arena slot.
type Status uint8

const (
	NotInit Status = iota
	NotStarted
	Started
)

func (s Status) String() string {
	switch s {
	case NotInit:
		return "not_init"
	case NotStarted:
		return "not_started"
	case Started:
		return "started"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Counters are per instance event counts. They are safe to read from any
// goroutine while the engine runs.
type Counters struct {
	Frames       atomic.Uint64 // requests that passed the CRC check
	CRCErrors    atomic.Uint64
	Malformed    atomic.Uint64 // short frames and length mismatches
	Overruns     atomic.Uint64 // frames longer than the frame buffer
	ForeignBytes atomic.Uint64 // bytes skipped while idle
	Exceptions   atomic.Uint64
	Responses    atomic.Uint64
	BusyRetries  atomic.Uint64 // polls where the transmit queue was full
}

// CounterSnapshot is a point in time copy of Counters.
type CounterSnapshot struct {
	Frames       uint64
	CRCErrors    uint64
	Malformed    uint64
	Overruns     uint64
	ForeignBytes uint64
	Exceptions   uint64
	Responses    uint64
	BusyRetries  uint64
}

// Snapshot copies the counters.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Frames:       c.Frames.Load(),
		CRCErrors:    c.CRCErrors.Load(),
		Malformed:    c.Malformed.Load(),
		Overruns:     c.Overruns.Load(),
		ForeignBytes: c.ForeignBytes.Load(),
		Exceptions:   c.Exceptions.Load(),
		Responses:    c.Responses.Load(),
		BusyRetries:  c.BusyRetries.Load(),
	}
}
