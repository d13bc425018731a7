// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ffutop/modbus-node/internal/config"
	"github.com/ffutop/modbus-node/internal/metrics"
	"github.com/ffutop/modbus-node/internal/scheduler"
	"github.com/ffutop/modbus-node/internal/slave"
	"github.com/ffutop/modbus-node/internal/timeout"
	"github.com/ffutop/modbus-node/internal/trace"
	"github.com/spf13/pflag"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Failed to parse flags: %v\n", err)
		os.Exit(2)
	}
	configFile, _ := flags.GetString("config")

	// Load Configuration
	cfg, err := config.LoadConfig(configFile, flags)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting Modbus node...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tracer trace.Tracer = trace.Noop{}
	if cfg.Trace.File != "" {
		ft, err := trace.NewFileTracer(cfg.Trace.File, slog.Default())
		if err != nil {
			slog.Error("Failed to open trace file", "err", err)
			os.Exit(1)
		}
		defer ft.Close()
		slog.Info("Tracing frames", "file", cfg.Trace.File, "session", ft.Session())
		tracer = ft
	}

	clock := timeout.NewSystemClock()
	arena := slave.NewArena(clock)
	arena.Init()

	sched := scheduler.New(cfg.Scheduler.PollInterval, slog.Default())
	sched.Add("slaves", scheduler.TaskFunc(arena.Poll))

	// Create Nodes
	var nodes []*node
	for i, nodeCfg := range cfg.Nodes {
		n, err := newNode(i, nodeCfg, arena, tracer, clock)
		if err != nil {
			slog.Error("Failed to create node", "node", nodeCfg.Name, "err", err)
			for _, n := range nodes {
				n.Close()
			}
			os.Exit(1)
		}
		if n.manager != nil {
			sched.Add("app-"+n.name, n.manager)
		}
		nodes = append(nodes, n)
	}

	// Start Lines
	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		go func(n *node) {
			defer wg.Done()
			if err := n.line.Start(ctx, n.port.Serve); err != nil {
				slog.Error("Line stopped with error", "node", n.name, "err", err)
			}
		}(n)
	}

	if cfg.Metrics.Listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, arena, slog.Default()); err != nil {
				slog.Error("Metrics endpoint stopped with error", "err", err)
			}
		}()
	}

	// Wait for Signal
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		slog.Info("Shutting down...")
		cancel()
	}()

	if err := sched.Run(ctx); err != nil {
		slog.Error("Scheduler stopped with error", "err", err)
		cancel()
	}

	wg.Wait()
	for _, n := range nodes {
		n.Close()
	}
	slog.Info("Goodbye.")
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
