// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-node/transport"
	"github.com/grid-x/serial"
)

const (
	// Default timeouts
	serialTimeout  = 5 * time.Second
	reconnectDelay = time.Second
)

// SerialLine is a serial port the node listens on. When the port fails it is
// reopened after ReconnectDelay.
type SerialLine struct {
	// Serial port configuration.
	serial.Config

	ReconnectDelay time.Duration

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port   io.ReadWriteCloser
	open   func(*serial.Config) (io.ReadWriteCloser, error)
	logger *slog.Logger
}

// NewSerialLine creates a line for the given port configuration.
func NewSerialLine(cfg serial.Config, logger *slog.Logger) *SerialLine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = serialTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SerialLine{
		Config:         cfg,
		ReconnectDelay: reconnectDelay,
		open: func(c *serial.Config) (io.ReadWriteCloser, error) {
			return serial.Open(c)
		},
		logger: logger.With("device", cfg.Address),
	}
}

// Start implements transport.Line. The first open error is returned; later
// failures are logged and retried.
func (l *SerialLine) Start(ctx context.Context, handler transport.StreamHandler) error {
	port, err := l.connect(ctx)
	if err != nil {
		return err
	}
	l.logger.Info("Serial line opened", "baud", l.BaudRate, "parity", l.Parity)

	for {
		if err := handler(ctx, idlePort{port}); err != nil {
			l.logger.Warn("Serial line failed", "err", err)
		}
		l.Close()
		if ctx.Err() != nil {
			return nil
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(l.ReconnectDelay):
			}
			if port, err = l.connect(ctx); err == nil {
				l.logger.Info("Serial line reopened")
				break
			}
			l.logger.Debug("Serial reopen failed", "err", err)
		}
	}
}

// connect opens the serial port if it is not open.
func (l *SerialLine) connect(ctx context.Context) (io.ReadWriteCloser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if l.port == nil {
		port, err := l.open(&l.Config)
		if err != nil {
			return nil, fmt.Errorf("could not open %s: %w", l.Config.Address, err)
		}
		l.port = port
	}
	return l.port, nil
}

// Close implements transport.Line.
func (l *SerialLine) Close() (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port != nil {
		err = l.port.Close()
		l.port = nil
	}
	return
}

// idlePort hides read timeouts of an idle line: a quiet bus is not a failure.
type idlePort struct {
	io.ReadWriteCloser
}

func (p idlePort) Read(b []byte) (int, error) {
	n, err := p.ReadWriteCloser.Read(b)
	if errors.Is(err, serial.ErrTimeout) {
		err = nil
	}
	return n, err
}
