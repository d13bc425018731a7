// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"testing"

	"github.com/ffutop/modbus-node/internal/registers"
	"github.com/ffutop/modbus-node/internal/timeout"
	"github.com/ffutop/modbus-node/transport"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory byte queue pair.
type fakeTransport struct {
	rx   []byte
	sent [][]byte
	full int // number of Send calls to reject
}

func (f *fakeTransport) TryReceiveByte() (byte, bool) {
	if len(f.rx) == 0 {
		return 0, false
	}
	b := f.rx[0]
	f.rx = f.rx[1:]
	return b, true
}

func (f *fakeTransport) Send(frame []byte) error {
	if f.full > 0 {
		f.full--
		return transport.ErrBufferFull
	}
	f.sent = append(f.sent, append([]byte(nil), frame...))
	return nil
}

type harness struct {
	t     *testing.T
	clock *timeout.ManualClock
	arena *Arena
	tr    *fakeTransport
	regs  *registers.Map
}

const testAddress = 0x10

// wideLayout has 125 contiguous holding and input registers at 0..124, and a
// lone holding register at 0x0200.
func wideLayout() *registers.Layout {
	l := &registers.Layout{}
	for a := uint16(0); a < 125; a++ {
		l.Holding = append(l.Holding, registers.Entry{Address: a})
		l.Input = append(l.Input, registers.Entry{Address: a})
	}
	l.Holding = append(l.Holding, registers.Entry{Address: 0x0200})
	return l
}

func newHarness(t *testing.T, layout *registers.Layout) *harness {
	t.Helper()
	regs, err := layout.Build(make([]uint16, layout.Size(registers.Holding)), make([]uint16, layout.Size(registers.Input)))
	require.NoError(t, err)

	h := &harness{
		t:     t,
		clock: &timeout.ManualClock{},
		tr:    &fakeTransport{},
		regs:  regs,
	}
	h.arena = NewArena(h.clock)
	h.arena.Init()
	require.NoError(t, h.arena.Start(0, Config{Address: testAddress, Transport: h.tr, Registers: regs}))
	return h
}

func (h *harness) engine() *Engine {
	e, err := h.arena.Engine(0)
	require.NoError(h.t, err)
	return e
}

// exchange feeds req and polls, one millisecond per poll, until a response
// is sent or the engine is idle again with nothing left to read.
func (h *harness) exchange(req []byte) []byte {
	h.tr.rx = append(h.tr.rx, req...)
	before := len(h.tr.sent)
	for i := 0; i < 100; i++ {
		h.arena.Poll()
		h.clock.Advance(1)
		if len(h.tr.sent) > before {
			return h.tr.sent[len(h.tr.sent)-1]
		}
		if i > 0 && h.engine().State() == Idle && len(h.tr.rx) == 0 {
			return nil
		}
	}
	h.t.Fatalf("engine stuck in %s", h.engine().State())
	return nil
}
