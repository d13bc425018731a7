// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package timeout provides millisecond timers that are polled rather than
// waited on.
package timeout

import (
	"sync/atomic"
	"time"
)

// Clock is a free-running millisecond tick source. It may wrap.
type Clock interface {
	Millis() uint32
}

// SystemClock counts milliseconds since it was created.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// ManualClock only moves when told to. Safe for concurrent use.
type ManualClock struct {
	ms atomic.Uint32
}

// Advance moves the clock forward by d milliseconds.
func (c *ManualClock) Advance(d uint32) {
	c.ms.Add(d)
}

// Set jumps the clock to ms.
func (c *ManualClock) Set(ms uint32) {
	c.ms.Store(ms)
}

func (c *ManualClock) Millis() uint32 {
	return c.ms.Load()
}

// Status is the result of polling a Timer.
type Status uint8

const (
	// Unarmed means the timer was never armed or has been released.
	Unarmed Status = iota
	// Pending means the duration has not elapsed yet.
	Pending
	// JustElapsed is reported by the first poll after the duration elapsed.
	JustElapsed
	// AlreadyElapsedAndConsumed is reported by every later poll until re-armed.
	AlreadyElapsedAndConsumed
)

func (s Status) String() string {
	switch s {
	case Unarmed:
		return "unarmed"
	case Pending:
		return "pending"
	case JustElapsed:
		return "just elapsed"
	case AlreadyElapsedAndConsumed:
		return "elapsed"
	default:
		return "unknown"
	}
}

// Timer is a single re-armable timeout bound to a Clock.
// The zero value is not usable; create one with NewTimer.
type Timer struct {
	clock    Clock
	start    uint32
	duration uint32
	status   Status
}

func NewTimer(clock Clock) *Timer {
	return &Timer{clock: clock}
}

// Arm (re)starts the timer for d milliseconds.
func (t *Timer) Arm(d uint32) {
	t.start = t.clock.Millis()
	t.duration = d
	t.status = Pending
}

// Release disarms the timer.
func (t *Timer) Release() {
	t.status = Unarmed
}

// Poll reports the timer state. Arm may land anywhere inside a tick, so the
// timer stays pending until more than d ticks have passed. At least d full
// milliseconds of real time have then elapsed. Clock wrap is handled.
func (t *Timer) Poll() Status {
	switch t.status {
	case Pending:
		if t.clock.Millis()-t.start > t.duration {
			t.status = AlreadyElapsedAndConsumed
			return JustElapsed
		}
		return Pending
	default:
		return t.status
	}
}
