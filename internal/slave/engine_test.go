// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"testing"

	"github.com/ffutop/modbus-node/internal/registers"
	"github.com/ffutop/modbus-node/internal/timeout"
	"github.com/ffutop/modbus-node/modbus"
	"github.com/ffutop/modbus-node/modbus/crc"
	"github.com/ffutop/modbus-node/modbus/rtu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadHoldingRegister(t *testing.T) {
	h := newHarness(t, registers.DefaultLayout())
	require.NoError(t, h.regs.Write(registers.Holding, 0, 0x1234))

	resp := h.exchange([]byte{0x10, 0x03, 0x00, 0x00, 0x00, 0x01, 0x87, 0x4B})
	assert.Equal(t, []byte{0x10, 0x03, 0x02, 0x12, 0x34, 0x49, 0x30}, resp)
	assert.Equal(t, Idle, h.engine().State())
}

func TestIllegalFunction(t *testing.T) {
	h := newHarness(t, registers.DefaultLayout())

	resp := h.exchange([]byte{0x10, 0x41, 0xCC, 0x40})
	assert.Equal(t, []byte{0x10, 0xC1, 0x01, 0xE0, 0x55}, resp)
	assert.Equal(t, uint64(1), h.engine().Counters().Exceptions.Load())
}

func TestWriteSingleThenRead(t *testing.T) {
	h := newHarness(t, registers.DefaultLayout())

	req := []byte{0x10, 0x06, 0x00, 0x04, 0x00, 0x01, 0x0A, 0x8A}
	assert.Equal(t, req, h.exchange(req))

	resp := h.exchange(rtu.ReadRequest(testAddress, modbus.FuncCodeReadHoldingRegisters, 4, 1))
	assert.Equal(t, crc.Append([]byte{0x10, 0x03, 0x02, 0x00, 0x01}), resp)
}

func TestWriteSingleIdempotent(t *testing.T) {
	h := newHarness(t, registers.DefaultLayout())
	req := rtu.WriteSingleRequest(testAddress, 2, 0xBEEF)

	first := h.exchange(req)
	v1, err := h.regs.Read(registers.Holding, 2)
	require.NoError(t, err)

	second := h.exchange(req)
	v2, err := h.regs.Read(registers.Holding, 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, v1, v2)
	assert.Equal(t, uint16(0xBEEF), v2)
}

func TestForeignAddressIgnored(t *testing.T) {
	h := newHarness(t, registers.DefaultLayout())

	assert.Nil(t, h.exchange([]byte{0x20, 0x06, 0x00, 0x04, 0x00, 0x01, 0x0A, 0x8A}))
	assert.Nil(t, h.exchange(rtu.WriteSingleRequest(0x20, 4, 7)))
	// Broadcast requests are never answered or applied either.
	assert.Nil(t, h.exchange(rtu.WriteSingleRequest(modbus.BroadcastAddress, 4, 7)))

	v, err := h.regs.Read(registers.Holding, 4)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), v)
	assert.Empty(t, h.tr.sent)
	assert.Equal(t, Idle, h.engine().State())
	assert.Equal(t, uint64(0), h.engine().Counters().Frames.Load())
}

func TestByteGapThenBadCRC(t *testing.T) {
	h := newHarness(t, registers.DefaultLayout())
	e := h.engine()

	h.tr.rx = append(h.tr.rx, 0x10, 0x03, 0x00, 0x00)
	h.arena.Poll() // Idle -> Receiving
	h.arena.Poll() // remaining bytes
	assert.Equal(t, Receiving, e.State())

	h.clock.Advance(ByteGapMillis + 1)
	h.arena.Poll()
	assert.Equal(t, CheckCrc, e.State())

	// The tail of the split frame arrives late with a bad CRC.
	assert.Nil(t, h.exchange([]byte{0x00, 0x01, 0xFF, 0xFF}))
	assert.Equal(t, Idle, e.State())
	assert.Equal(t, uint64(1), e.Counters().CRCErrors.Load())
	assert.Empty(t, h.tr.sent)

	// Ready for the next frame.
	require.NoError(t, h.regs.Write(registers.Holding, 0, 0x1234))
	resp := h.exchange([]byte{0x10, 0x03, 0x00, 0x00, 0x00, 0x01, 0x87, 0x4B})
	assert.Equal(t, []byte{0x10, 0x03, 0x02, 0x12, 0x34, 0x49, 0x30}, resp)
}

func TestGapShorterThanTimeoutKeepsFrame(t *testing.T) {
	h := newHarness(t, registers.DefaultLayout())
	e := h.engine()
	req := rtu.ReadRequest(testAddress, modbus.FuncCodeReadHoldingRegisters, 0, 5)

	for _, b := range req {
		h.tr.rx = append(h.tr.rx, b)
		h.arena.Poll()
		h.clock.Advance(ByteGapMillis - 1)
		h.arena.Poll()
		require.Equal(t, Receiving, e.State())
	}
	assert.Equal(t, len(req), e.length)
}

func TestReadQuantityBounds(t *testing.T) {
	tests := []struct {
		name      string
		fc        byte
		start     uint16
		quantity  uint16
		exception byte
	}{
		{"HoldingZero", modbus.FuncCodeReadHoldingRegisters, 0, 0, modbus.ExceptionCodeIllegalDataValue},
		{"Holding126", modbus.FuncCodeReadHoldingRegisters, 0, 126, modbus.ExceptionCodeIllegalDataValue},
		{"Holding125", modbus.FuncCodeReadHoldingRegisters, 0, 125, 0},
		{"InputZero", modbus.FuncCodeReadInputRegisters, 0, 0, modbus.ExceptionCodeIllegalDataValue},
		{"Input126", modbus.FuncCodeReadInputRegisters, 0, 126, modbus.ExceptionCodeIllegalDataValue},
		{"Input125", modbus.FuncCodeReadInputRegisters, 0, 125, 0},
		// The count check comes before the address check.
		{"CountBeforeAddress", modbus.FuncCodeReadHoldingRegisters, 0x0300, 0, modbus.ExceptionCodeIllegalDataValue},
		{"UnknownStart", modbus.FuncCodeReadHoldingRegisters, 0x0300, 1, modbus.ExceptionCodeIllegalDataAddress},
		{"NonContiguous", modbus.FuncCodeReadHoldingRegisters, 124, 2, modbus.ExceptionCodeIllegalDataAddress},
		{"LoneRegister", modbus.FuncCodeReadHoldingRegisters, 0x0200, 1, 0},
		{"PastTableEnd", modbus.FuncCodeReadInputRegisters, 120, 6, modbus.ExceptionCodeIllegalDataAddress},
		{"ExactlyToTableEnd", modbus.FuncCodeReadInputRegisters, 120, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, wideLayout())
			resp := h.exchange(rtu.ReadRequest(testAddress, tt.fc, tt.start, tt.quantity))
			require.NotNil(t, resp)
			require.True(t, crc.Check(resp), "bad crc in % X", resp)

			if tt.exception != 0 {
				assert.Equal(t, []byte{testAddress, tt.fc | modbus.ExceptionFlag, tt.exception}, resp[:3])
				assert.Len(t, resp, rtu.ExceptionSize)
				return
			}
			assert.Equal(t, tt.fc, resp[1])
			assert.Equal(t, byte(2*tt.quantity), resp[2])
			assert.Len(t, resp, 5+2*int(tt.quantity))
		})
	}
}

func TestReadReturnsValuesBigEndian(t *testing.T) {
	h := newHarness(t, wideLayout())
	for a := uint16(0); a < 125; a++ {
		require.NoError(t, h.regs.Write(registers.Input, a, 0x0100|a))
	}
	resp := h.exchange(rtu.ReadRequest(testAddress, modbus.FuncCodeReadInputRegisters, 0, 125))
	adu, err := rtu.Decode(resp)
	require.NoError(t, err)
	values, err := rtu.RegisterValues(adu.Pdu)
	require.NoError(t, err)
	require.Len(t, values, 125)
	for i, v := range values {
		assert.Equal(t, uint16(0x0100|i), v)
	}
}

func TestWriteMultipleBounds(t *testing.T) {
	tests := []struct {
		name      string
		start     uint16
		quantity  int
		exception byte
	}{
		{"Zero", 0, 0, modbus.ExceptionCodeIllegalDataValue},
		{"One", 0, 1, 0},
		{"Max", 0, 123, 0},
		{"NonContiguous", 124, 2, modbus.ExceptionCodeIllegalDataAddress},
		{"UnknownStart", 0x0300, 1, modbus.ExceptionCodeIllegalDataAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, wideLayout())
			values := make([]uint16, tt.quantity)
			for i := range values {
				values[i] = uint16(0xA000 + i)
			}
			req := rtu.WriteMultipleRequest(testAddress, tt.start, values)
			resp := h.exchange(req)
			require.NotNil(t, resp)
			require.True(t, crc.Check(resp))

			if tt.exception != 0 {
				assert.Equal(t, []byte{testAddress, 0x90, tt.exception}, resp[:3])
				// Nothing may be written on failure.
				for a := uint16(0); a < 125; a++ {
					v, _ := h.regs.Read(registers.Holding, a)
					require.Zero(t, v, "holding 0x%04X written", a)
				}
				return
			}
			assert.Equal(t, crc.Append(append([]byte(nil), req[:6]...)), resp)
			for i, want := range values {
				v, err := h.regs.Read(registers.Holding, tt.start+uint16(i))
				require.NoError(t, err)
				assert.Equal(t, want, v)
			}
		})
	}
}

func TestWriteMultipleTooMany(t *testing.T) {
	h := newHarness(t, wideLayout())
	// 124 words do not fit in a frame, so only the announced count is too large.
	req := crc.Append([]byte{testAddress, 0x10, 0x00, 0x00, 0x00, 124, 0x02, 0x12, 0x34})
	resp := h.exchange(req)
	assert.Equal(t, crc.Append([]byte{testAddress, 0x90, modbus.ExceptionCodeIllegalDataValue}), resp)
}

func TestWriteMultipleByteCountMismatch(t *testing.T) {
	h := newHarness(t, wideLayout())
	// Two words announced, one word of payload and a matching byte count.
	req := crc.Append([]byte{testAddress, 0x10, 0x00, 0x00, 0x00, 0x02, 0x02, 0x12, 0x34})
	resp := h.exchange(req)
	assert.Equal(t, crc.Append([]byte{testAddress, 0x90, modbus.ExceptionCodeIllegalDataValue}), resp)
}

func TestMalformedFramesDropped(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{"TooShort", []byte{testAddress, 0x03, 0x00}},
		{"ReadTooLong", crc.Append([]byte{testAddress, 0x03, 0x00, 0x00, 0x00, 0x01, 0x00})},
		{"ReadTooShort", crc.Append([]byte{testAddress, 0x03, 0x00, 0x00, 0x00})},
		{"WriteSingleTooLong", crc.Append([]byte{testAddress, 0x06, 0x00, 0x00, 0x00, 0x01, 0x00})},
		{"WriteMultipleHeaderOnly", crc.Append([]byte{testAddress, 0x10, 0x00, 0x00, 0x00, 0x01})},
		{"WriteMultipleLengthMismatch", crc.Append([]byte{testAddress, 0x10, 0x00, 0x00, 0x00, 0x01, 0x04, 0x12, 0x34})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, wideLayout())
			assert.Nil(t, h.exchange(tt.frame))
			assert.Equal(t, Idle, h.engine().State())
			assert.Equal(t, uint64(1), h.engine().Counters().Malformed.Load())
		})
	}
}

func TestOverflowDropsFrame(t *testing.T) {
	h := newHarness(t, wideLayout())
	frame := make([]byte, FrameSize+1)
	frame[0] = testAddress
	for i := 1; i < len(frame); i++ {
		frame[i] = 0x55
	}

	assert.Nil(t, h.exchange(frame))
	assert.Equal(t, uint64(1), h.engine().Counters().Overruns.Load())
	assert.Equal(t, Idle, h.engine().State())
}

func TestInterFrameDelay(t *testing.T) {
	h := newHarness(t, registers.DefaultLayout())
	e := h.engine()

	h.tr.rx = append(h.tr.rx, rtu.ReadRequest(testAddress, modbus.FuncCodeReadHoldingRegisters, 0, 1)...)
	for e.State() != DelayBeforeResponse {
		h.arena.Poll()
		h.clock.Advance(1)
	}
	for i := 0; i < InterFrameMillis; i++ {
		h.arena.Poll()
		require.Equal(t, DelayBeforeResponse, e.State(), "left delay after %d ms", i)
		h.clock.Advance(1)
	}
	h.arena.Poll()
	assert.Equal(t, SendResponse, e.State())
	assert.Empty(t, h.tr.sent)
	h.arena.Poll()
	assert.Len(t, h.tr.sent, 1)
}

func TestSendRetriesWhenBusy(t *testing.T) {
	h := newHarness(t, registers.DefaultLayout())
	h.tr.full = 3

	resp := h.exchange(rtu.ReadRequest(testAddress, modbus.FuncCodeReadHoldingRegisters, 0, 1))
	require.NotNil(t, resp)
	assert.Equal(t, uint64(3), h.engine().Counters().BusyRetries.Load())
	assert.Equal(t, uint64(1), h.engine().Counters().Responses.Load())
}

func TestOneStatePerPoll(t *testing.T) {
	h := newHarness(t, registers.DefaultLayout())
	e := h.engine()
	h.tr.rx = append(h.tr.rx, rtu.ReadRequest(testAddress, modbus.FuncCodeReadHoldingRegisters, 0, 1)...)

	want := []State{Receiving, Receiving, Receiving, Receiving, CheckCrc, CheckFunctionCode, ReadHolding, DelayBeforeResponse}
	for i, s := range want {
		h.arena.Poll()
		require.Equal(t, s, e.State(), "poll %d", i)
		h.clock.Advance(1)
	}
}

func TestTimerReleasedOnIdle(t *testing.T) {
	h := newHarness(t, registers.DefaultLayout())
	h.exchange(rtu.ReadRequest(testAddress, modbus.FuncCodeReadHoldingRegisters, 0, 1))
	assert.Equal(t, timeout.Unarmed, h.engine().timer.Poll())
}
