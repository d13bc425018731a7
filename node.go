// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-node/internal/app"
	"github.com/ffutop/modbus-node/internal/config"
	"github.com/ffutop/modbus-node/internal/registers"
	"github.com/ffutop/modbus-node/internal/registers/mirror"
	"github.com/ffutop/modbus-node/internal/slave"
	"github.com/ffutop/modbus-node/internal/timeout"
	"github.com/ffutop/modbus-node/internal/trace"
	"github.com/ffutop/modbus-node/transport"
	"github.com/ffutop/modbus-node/transport/rtu"
	rtuovertcp "github.com/ffutop/modbus-node/transport/rtu-over-tcp"
	"github.com/ffutop/modbus-node/transport/uart"
)

// node is one configured slave instance and everything it owns.
type node struct {
	name    string
	port    *uart.Port
	line    transport.Line
	storage mirror.Storage
	manager *app.Manager
}

func newNode(id int, cfg config.NodeConfig, arena *slave.Arena, tracer trace.Tracer, clock timeout.Clock) (*node, error) {
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("node%d", id)
	}
	logger := slog.Default().With("node", name)

	layout, err := registers.LoadLayoutFile(cfg.Layout)
	if err != nil {
		return nil, err
	}
	storage, err := mirror.New(cfg.Storage.Type, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	regs, err := mirror.Open(storage, layout)
	if err != nil {
		storage.Close()
		return nil, err
	}

	n := &node{
		name:    name,
		port:    uart.NewPort(cfg.BufferSize, logger),
		storage: storage,
	}
	switch cfg.Line.Type {
	case config.LineRtuOverTcp:
		n.line = rtuovertcp.NewServer(cfg.Line.Tcp.Address, logger)
	default:
		n.line = rtu.NewSerialLine(cfg.Line.Serial.Port(), logger)
	}

	err = arena.Start(id, slave.Config{
		Address:   byte(cfg.Address),
		Transport: n.port,
		Registers: regs,
		Tracer:    tracer,
		Logger:    logger,
	})
	if err != nil {
		n.Close()
		return nil, err
	}

	if cfg.App.Enabled {
		n.manager, err = app.New(arena, app.Config{
			Instance: id,
			Layout:   layout,
			ClockHz:  cfg.App.ClockHz,
			BaudRate: uint32(cfg.Line.Serial.BaudRate),
			Button:   app.NewFileButton(cfg.App.ButtonFile, clock, logger),
			LED:      app.NewLogLED(cfg.App.LEDFile, clock, logger),
			Logger:   logger,
		})
		if err != nil {
			n.Close()
			return nil, err
		}
	}
	logger.Info("Node configured", "address", cfg.Address, "line", cfg.Line.Type, "storage", cfg.Storage.Type,
		"holding", layout.Size(registers.Holding), "input", layout.Size(registers.Input))
	return n, nil
}

// Close releases the line and the register storage.
func (n *node) Close() {
	if err := n.line.Close(); err != nil {
		slog.Debug("Failed to close line", "node", n.name, "err", err)
	}
	if err := n.storage.Close(); err != nil {
		slog.Warn("Failed to close register storage", "node", n.name, "err", err)
	}
}
