// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/ffutop/modbus-node/internal/registers"
	"github.com/ffutop/modbus-node/internal/timeout"
	"github.com/ffutop/modbus-node/internal/trace"
	"github.com/ffutop/modbus-node/modbus"
	"github.com/ffutop/modbus-node/modbus/crc"
	"github.com/ffutop/modbus-node/modbus/rtu"
	"github.com/ffutop/modbus-node/transport"
)

const (
	// FrameSize is the capacity of the frame buffer. The largest legal
	// request (123 register write, 255 bytes) and response (125 register
	// read, 255 bytes) both fit.
	FrameSize = rtu.MaxSize

	// ByteGapMillis is the silence that ends a frame.
	ByteGapMillis = 2
	// InterFrameMillis is the delay between a request and its response.
	InterFrameMillis = 5
)

// Engine is the RTU slave state machine of one instance. Poll advances it by
// at most one state and never blocks.
type Engine struct {
	id      int
	address byte

	state     State
	published atomic.Uint32

	frame  [FrameSize]byte
	length int

	timer     *timeout.Timer
	exception byte // pending exception code, 0 when none
	busy      bool // the current response already hit a full transmit queue

	// scratch holds decoded write multiple values.
	scratch [modbus.MaxWriteQuantity]uint16

	transport transport.Transport
	regs      *registers.Map
	tracer    trace.Tracer
	counters  Counters
	logger    *slog.Logger
}

// State returns the current state. Safe to call from any goroutine.
func (e *Engine) State() State {
	return State(e.published.Load())
}

// Counters returns the live counters.
func (e *Engine) Counters() *Counters {
	return &e.counters
}

// Address returns the slave address.
func (e *Engine) Address() byte {
	return e.address
}

// Transport returns the transport the instance was started with.
func (e *Engine) Transport() transport.Transport {
	return e.transport
}

func (e *Engine) setState(s State) {
	e.state = s
	e.published.Store(uint32(s))
}

// reset releases the timer and returns to Idle.
func (e *Engine) reset() {
	e.timer.Release()
	e.length = 0
	e.exception = 0
	e.busy = false
	e.setState(Idle)
}

// Poll runs one step of the state machine.
func (e *Engine) Poll() {
	switch e.state {
	case Idle:
		e.idle()
	case Receiving:
		e.receiving()
	case CheckCrc:
		e.checkCrc()
	case CheckFunctionCode:
		e.checkFunctionCode()
	case ReadHolding:
		e.readRegisters(registers.Holding)
	case ReadInput:
		e.readRegisters(registers.Input)
	case WriteSingle:
		e.writeSingle()
	case WriteMultiple:
		e.writeMultiple()
	case BuildException:
		e.buildException()
	case DelayBeforeResponse:
		if e.timer.Poll() != timeout.Pending {
			e.setState(SendResponse)
		}
	case SendResponse:
		e.sendResponse()
	default:
		e.reset()
	}
}

// idle discards bytes until one matches the slave address.
func (e *Engine) idle() {
	for {
		b, ok := e.transport.TryReceiveByte()
		if !ok {
			return
		}
		if b != e.address {
			e.counters.ForeignBytes.Add(1)
			continue
		}
		e.frame[0] = b
		e.length = 1
		e.timer.Arm(ByteGapMillis)
		e.setState(Receiving)
		return
	}
}

// receiving appends queued bytes and waits for the byte gap.
func (e *Engine) receiving() {
	got := false
	for {
		b, ok := e.transport.TryReceiveByte()
		if !ok {
			break
		}
		got = true
		if e.length == FrameSize {
			e.counters.Overruns.Add(1)
			e.drop(trace.ReasonOverflow)
			return
		}
		e.frame[e.length] = b
		e.length++
	}
	if got {
		e.timer.Arm(ByteGapMillis)
		return
	}
	if e.timer.Poll() != timeout.Pending {
		e.timer.Release()
		e.setState(CheckCrc)
	}
}

func (e *Engine) checkCrc() {
	if e.length < rtu.MinSize {
		e.counters.Malformed.Add(1)
		e.drop(trace.ReasonShort)
		return
	}
	if !crc.Check(e.frame[:e.length]) {
		e.counters.CRCErrors.Add(1)
		e.drop(trace.ReasonCRC)
		return
	}
	e.counters.Frames.Add(1)
	e.record(trace.KindAccepted, "")
	e.setState(CheckFunctionCode)
}

func (e *Engine) checkFunctionCode() {
	switch e.frame[1] {
	case modbus.FuncCodeReadHoldingRegisters:
		e.setState(ReadHolding)
	case modbus.FuncCodeReadInputRegisters:
		e.setState(ReadInput)
	case modbus.FuncCodeWriteSingleRegister:
		e.setState(WriteSingle)
	case modbus.FuncCodeWriteMultipleRegisters:
		e.setState(WriteMultiple)
	default:
		e.fail(modbus.ExceptionCodeIllegalFunction)
	}
}

func (e *Engine) readRegisters(kind registers.Kind) {
	if e.length != rtu.ReadRequestSize {
		e.counters.Malformed.Add(1)
		e.drop(trace.ReasonLength)
		return
	}
	start := binary.BigEndian.Uint16(e.frame[2:])
	quantity := int(binary.BigEndian.Uint16(e.frame[4:]))

	if quantity < modbus.MinReadQuantity || quantity > modbus.MaxReadQuantity {
		e.fail(modbus.ExceptionCodeIllegalDataValue)
		return
	}
	table := e.regs.Table(kind)
	index, err := table.Locate(start, quantity)
	if err != nil {
		e.fail(modbus.ExceptionCodeIllegalDataAddress)
		return
	}

	// Address and function code stay in place.
	e.frame[2] = byte(2 * quantity)
	n := 3
	for i := 0; i < quantity; i++ {
		binary.BigEndian.PutUint16(e.frame[n:], table.Value(index+i))
		n += 2
	}
	e.length = crc.Put(e.frame[:], n)
	e.respond()
}

func (e *Engine) writeSingle() {
	if e.length != rtu.ReadRequestSize {
		e.counters.Malformed.Add(1)
		e.drop(trace.ReasonLength)
		return
	}
	address := binary.BigEndian.Uint16(e.frame[2:])
	value := binary.BigEndian.Uint16(e.frame[4:])

	table := e.regs.Table(registers.Holding)
	index, ok := table.Index(address)
	if !ok {
		e.fail(modbus.ExceptionCodeIllegalDataAddress)
		return
	}
	table.SetValue(index, value)
	// The response echoes the request unchanged.
	e.respond()
}

func (e *Engine) writeMultiple() {
	if e.length < rtu.WriteMultipleHeaderSize+2 {
		e.counters.Malformed.Add(1)
		e.drop(trace.ReasonShort)
		return
	}
	byteCount := int(e.frame[6])
	if e.length != rtu.WriteMultipleHeaderSize+byteCount+2 {
		e.counters.Malformed.Add(1)
		e.drop(trace.ReasonLength)
		return
	}
	start := binary.BigEndian.Uint16(e.frame[2:])
	quantity := int(binary.BigEndian.Uint16(e.frame[4:]))

	if quantity < modbus.MinWriteQuantity || quantity > modbus.MaxWriteQuantity || byteCount != 2*quantity {
		e.fail(modbus.ExceptionCodeIllegalDataValue)
		return
	}
	table := e.regs.Table(registers.Holding)
	index, err := table.Locate(start, quantity)
	if err != nil {
		e.fail(modbus.ExceptionCodeIllegalDataAddress)
		return
	}

	values := e.scratch[:quantity]
	for i := range values {
		values[i] = binary.BigEndian.Uint16(e.frame[rtu.WriteMultipleHeaderSize+2*i:])
	}
	table.SetValues(index, values...)

	// Response: address, function, start and quantity.
	e.length = crc.Put(e.frame[:], 6)
	e.respond()
}

func (e *Engine) buildException() {
	e.frame[1] |= modbus.ExceptionFlag
	e.frame[2] = e.exception
	e.length = crc.Put(e.frame[:], 3)
	e.exception = 0
	e.counters.Exceptions.Add(1)
	e.respond()
}

func (e *Engine) sendResponse() {
	err := e.transport.Send(e.frame[:e.length])
	if err != nil {
		e.counters.BusyRetries.Add(1)
		if !e.busy {
			e.busy = true
			if errors.Is(err, transport.ErrBufferFull) {
				e.logger.Warn("Transmit queue full, retrying", "length", e.length)
			} else {
				e.logger.Warn("Send failed, retrying", "err", err)
			}
		}
		return
	}
	e.counters.Responses.Add(1)
	e.record(trace.KindResponse, "")
	e.reset()
}

// fail selects an exception response.
func (e *Engine) fail(code byte) {
	e.exception = code
	e.logger.Debug("Exception", "function", modbus.FunctionName(e.frame[1]), "code", code, "text", modbus.ExceptionText(code))
	e.setState(BuildException)
}

// respond arms the inter-frame delay for the framed response.
func (e *Engine) respond() {
	e.timer.Arm(InterFrameMillis)
	e.setState(DelayBeforeResponse)
}

// drop discards the frame without a response.
func (e *Engine) drop(reason string) {
	e.logger.Debug("Frame dropped", "reason", reason, "length", e.length)
	e.record(trace.KindDropped, reason)
	e.reset()
}

func (e *Engine) record(kind trace.Kind, reason string) {
	e.tracer.Record(trace.Event{
		Instance: e.id,
		Address:  e.address,
		Kind:     kind,
		Reason:   reason,
		Frame:    e.frame[:e.length],
	})
}
