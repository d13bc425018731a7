// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package app

import (
	"log/slog"
	"os"

	"github.com/ffutop/modbus-node/internal/timeout"
)

const (
	// ButtonPollMillis is the minimum time between two reads of the button file.
	ButtonPollMillis = 50
	// BlinkMillis is the LED blink half period.
	BlinkMillis = 1000
)

// FileButton is a push button backed by a file: it reads as pressed while the
// file's first byte is '1'. A missing file reads as released.
type FileButton struct {
	path    string
	timer   *timeout.Timer
	pressed bool
	logger  *slog.Logger
}

func NewFileButton(path string, clock timeout.Clock, logger *slog.Logger) *FileButton {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileButton{path: path, timer: timeout.NewTimer(clock), logger: logger}
}

// Pressed implements Button.
func (b *FileButton) Pressed() bool {
	if b.timer.Poll() == timeout.Pending {
		return b.pressed
	}
	b.timer.Arm(ButtonPollMillis)

	pressed := false
	data, err := os.ReadFile(b.path)
	if err == nil {
		pressed = len(data) > 0 && data[0] == '1'
	} else if !os.IsNotExist(err) {
		b.logger.Debug("Failed to read button file", "path", b.path, "err", err)
	}
	if pressed != b.pressed {
		b.logger.Info("Push button changed", "pressed", pressed)
		b.pressed = pressed
	}
	return b.pressed
}

// LogLED is an LED that logs its changes and optionally mirrors its level to
// a file as "0" or "1".
type LogLED struct {
	path    string
	timer   *timeout.Timer
	request LEDRequest
	active  LEDRequest
	lit     bool
	started bool
	logger  *slog.Logger
}

func NewLogLED(path string, clock timeout.Clock, logger *slog.Logger) *LogLED {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogLED{path: path, timer: timeout.NewTimer(clock), logger: logger}
}

// Request implements LED.
func (l *LogLED) Request(r LEDRequest) {
	l.request = r
}

// Lit reports the current level.
func (l *LogLED) Lit() bool {
	return l.lit
}

// Poll implements LED.
func (l *LogLED) Poll() {
	if !l.started || l.request != l.active {
		l.started = true
		l.active = l.request
		l.logger.Info("LED mode changed", "mode", l.active)
		switch l.active {
		case LEDOff:
			l.timer.Release()
			l.set(false)
		case LEDOn:
			l.timer.Release()
			l.set(true)
		case LEDBlink:
			l.timer.Arm(BlinkMillis)
			l.set(!l.lit)
		}
		return
	}
	if l.active == LEDBlink && l.timer.Poll() != timeout.Pending {
		l.timer.Arm(BlinkMillis)
		l.set(!l.lit)
	}
}

func (l *LogLED) set(lit bool) {
	l.lit = lit
	l.logger.Debug("LED level", "lit", lit)
	if l.path == "" {
		return
	}
	level := []byte("0")
	if lit {
		level = []byte("1")
	}
	if err := os.WriteFile(l.path, level, 0644); err != nil {
		l.logger.Warn("Failed to write led file", "path", l.path, "err", err)
	}
}
