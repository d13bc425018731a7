// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ffutop/modbus-node/internal/registers"
	"github.com/ffutop/modbus-node/internal/timeout"
	"github.com/ffutop/modbus-node/internal/trace"
	"github.com/ffutop/modbus-node/modbus"
	"github.com/ffutop/modbus-node/transport"
)

// MaxInstances is the number of slave slots in an Arena.
const MaxInstances = 4

var (
	ErrUnknownInstance  = errors.New("slave: unknown instance")
	ErrAlreadyStarted   = errors.New("slave: instance not in not-started state")
	ErrBroadcastAddress = errors.New("slave: broadcast address is not a slave address")
	ErrNotStarted       = errors.New("slave: instance not started")
)

// Config binds an instance to its address, transport and register map.
type Config struct {
	Address   byte
	Transport transport.Transport
	Registers *registers.Map
	// Tracer is optional.
	Tracer trace.Tracer
	// Logger is optional.
	Logger *slog.Logger
}

type slot struct {
	status atomic.Uint32
	engine Engine
}

// Arena holds a fixed set of slave instances, addressed by a small integer id.
// Poll, Start and the register accessors must be called from one goroutine;
// Status, State and Counters may be called from any goroutine.
type Arena struct {
	clock timeout.Clock
	slots [MaxInstances]slot
}

// NewArena creates an arena whose timers run on clock. Every slot is NotInit
// until Init.
func NewArena(clock timeout.Clock) *Arena {
	return &Arena{clock: clock}
}

// Init puts every slot into NotStarted with the broadcast address, a released
// timer and the Idle state.
func (a *Arena) Init() {
	for i := range a.slots {
		s := &a.slots[i]
		e := &s.engine
		e.id = i
		e.address = modbus.BroadcastAddress
		if e.timer == nil {
			e.timer = timeout.NewTimer(a.clock)
		}
		e.transport = nil
		e.regs = nil
		e.tracer = trace.Noop{}
		e.logger = slog.Default()
		e.reset()
		s.status.Store(uint32(NotStarted))
	}
}

func (a *Arena) slot(id int) (*slot, error) {
	if id < 0 || id >= MaxInstances {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInstance, id)
	}
	return &a.slots[id], nil
}

// Start configures slot id and makes it visible to Poll.
func (a *Arena) Start(id int, cfg Config) error {
	s, err := a.slot(id)
	if err != nil {
		return err
	}
	if Status(s.status.Load()) != NotStarted {
		return fmt.Errorf("%w: %d is %s", ErrAlreadyStarted, id, Status(s.status.Load()))
	}
	if cfg.Address == modbus.BroadcastAddress {
		return ErrBroadcastAddress
	}
	if cfg.Transport == nil || cfg.Registers == nil {
		return fmt.Errorf("slave: instance %d needs a transport and a register map", id)
	}

	e := &s.engine
	e.address = cfg.Address
	e.transport = cfg.Transport
	e.regs = cfg.Registers
	if cfg.Tracer != nil {
		e.tracer = cfg.Tracer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With("instance", id, "address", cfg.Address)
	e.reset()
	s.status.Store(uint32(Started))
	e.logger.Info("Slave instance started")
	return nil
}

// Poll advances every started instance by one step.
func (a *Arena) Poll() {
	for i := range a.slots {
		s := &a.slots[i]
		if Status(s.status.Load()) != Started {
			continue
		}
		s.engine.Poll()
	}
}

// Status returns the lifecycle status of slot id.
func (a *Arena) Status(id int) (Status, error) {
	s, err := a.slot(id)
	if err != nil {
		return NotInit, err
	}
	return Status(s.status.Load()), nil
}

// Engine returns the engine of a started instance.
func (a *Arena) Engine(id int) (*Engine, error) {
	s, err := a.slot(id)
	if err != nil {
		return nil, err
	}
	if Status(s.status.Load()) != Started {
		return nil, fmt.Errorf("%w: %d", ErrNotStarted, id)
	}
	return &s.engine, nil
}

// ReadRegister reads a register of instance id on behalf of application code.
func (a *Arena) ReadRegister(id int, kind registers.Kind, address uint16) (uint16, error) {
	e, err := a.Engine(id)
	if err != nil {
		return 0, err
	}
	return e.regs.Read(kind, address)
}

// WriteRegister writes a register of instance id on behalf of application
// code. Input registers are writable here; only the bus sees them read-only.
func (a *Arena) WriteRegister(id int, kind registers.Kind, address, value uint16) error {
	e, err := a.Engine(id)
	if err != nil {
		return err
	}
	return e.regs.Write(kind, address, value)
}
