// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package app bridges board peripherals and the register map of a slave
// instance: the push button is published into an input register and the LED
// follows a holding register.
package app

import (
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-node/internal/registers"
)

// Registers is the application-facing register API of a slave arena.
type Registers interface {
	ReadRegister(id int, kind registers.Kind, address uint16) (uint16, error)
	WriteRegister(id int, kind registers.Kind, address, value uint16) error
}

// Button reports the push button state.
type Button interface {
	Pressed() bool
}

// LEDRequest is the mode the LED is asked to show.
type LEDRequest uint8

const (
	LEDOff LEDRequest = iota
	LEDOn
	LEDBlink
)

func (r LEDRequest) String() string {
	switch r {
	case LEDOff:
		return "off"
	case LEDOn:
		return "on"
	default:
		return "blink"
	}
}

// LED accepts mode requests and is polled to animate them.
type LED interface {
	Request(r LEDRequest)
	Poll()
}

// LEDRequestFor maps an LED register value to a request: 0 off, 1 on, anything else blinks.
func LEDRequestFor(value uint16) LEDRequest {
	switch value {
	case 0:
		return LEDOff
	case 1:
		return LEDOn
	default:
		return LEDBlink
	}
}

// Config describes the manager of one instance.
type Config struct {
	Instance int
	Layout   *registers.Layout
	ClockHz  uint32
	BaudRate uint32
	Button   Button
	LED      LED
	Logger   *slog.Logger
}

// Manager is the comms manager task.
type Manager struct {
	instance int
	regs     Registers
	button   Button
	led      LED
	logger   *slog.Logger

	buttonAddr uint16
	ledAddr    uint16
	info       []published

	// Last push_button value written; valid once synced.
	pressed uint16
	synced  bool
}

type published struct {
	name    string
	address uint16
	value   uint16
}

// New resolves the named registers of cfg.Layout. The layout must name a
// push_button input register and a led holding register. The clock and baud
// rate registers are optional.
func New(regs Registers, cfg Config) (*Manager, error) {
	l := cfg.Layout
	if l == nil {
		l = registers.DefaultLayout()
	}
	buttonAddr, ok := l.Lookup(registers.Input, registers.NamePushButton)
	if !ok {
		return nil, fmt.Errorf("app: layout has no input register %q", registers.NamePushButton)
	}
	ledAddr, ok := l.Lookup(registers.Holding, registers.NameLED)
	if !ok {
		return nil, fmt.Errorf("app: layout has no holding register %q", registers.NameLED)
	}
	if cfg.Button == nil || cfg.LED == nil {
		return nil, fmt.Errorf("app: button and led are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		instance:   cfg.Instance,
		regs:       regs,
		button:     cfg.Button,
		led:        cfg.LED,
		logger:     logger.With("instance", cfg.Instance),
		buttonAddr: buttonAddr,
		ledAddr:    ledAddr,
	}
	for _, p := range []published{
		{registers.NameClockFreqHigh, 0, uint16(cfg.ClockHz >> 16)},
		{registers.NameClockFreqLow, 0, uint16(cfg.ClockHz)},
		{registers.NameBaudRateHigh, 0, uint16(cfg.BaudRate >> 16)},
		{registers.NameBaudRateLow, 0, uint16(cfg.BaudRate)},
	} {
		if addr, ok := l.Lookup(registers.Holding, p.name); ok {
			p.address = addr
			m.info = append(m.info, p)
		}
	}
	return m, nil
}

// Start publishes the clock frequency and baud rate.
func (m *Manager) Start() error {
	for _, p := range m.info {
		if err := m.regs.WriteRegister(m.instance, registers.Holding, p.address, p.value); err != nil {
			return fmt.Errorf("app: publish %s: %w", p.name, err)
		}
	}
	m.logger.Info("Comms manager started", "published", len(m.info))
	return nil
}

// Poll publishes the button when it changes and forwards the LED register to
// the LED. Input registers are not writable from the bus, so the last value
// written is still in place.
func (m *Manager) Poll() {
	var pressed uint16
	if m.button.Pressed() {
		pressed = 1
	}
	if !m.synced || pressed != m.pressed {
		if err := m.regs.WriteRegister(m.instance, registers.Input, m.buttonAddr, pressed); err != nil {
			m.logger.Error("Failed to publish push button", "err", err)
		} else {
			m.pressed = pressed
			m.synced = true
		}
	}

	value, err := m.regs.ReadRegister(m.instance, registers.Holding, m.ledAddr)
	if err != nil {
		m.logger.Error("Failed to read led register", "err", err)
		return
	}
	m.led.Request(LEDRequestFor(value))
	m.led.Poll()
}
