// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package scheduler runs cooperative tasks round-robin on a single goroutine.
// Tasks never block: each Poll does a bounded amount of work and returns.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

// Task is polled once per cycle.
type Task interface {
	Poll()
}

// Starter is implemented by tasks that need a one-off start before the first poll.
type Starter interface {
	Start() error
}

// TaskFunc adapts a function to Task.
type TaskFunc func()

func (f TaskFunc) Poll() { f() }

type entry struct {
	name string
	task Task
}

// Scheduler polls its tasks in the order they were added.
type Scheduler struct {
	interval time.Duration
	tasks    []entry
	cycles   uint64
	logger   *slog.Logger
}

// New creates a scheduler that sleeps interval between cycles. A zero interval
// yields the processor between cycles instead.
func New(interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{interval: interval, logger: logger}
}

// Add appends a task. It must not be called once Run has started.
func (s *Scheduler) Add(name string, task Task) {
	s.tasks = append(s.tasks, entry{name: name, task: task})
}

// Cycles returns the number of completed cycles.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles
}

// Cycle polls every task once.
func (s *Scheduler) Cycle() {
	for _, e := range s.tasks {
		e.task.Poll()
	}
	s.cycles++
}

// Run starts the tasks that implement Starter, then cycles until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, e := range s.tasks {
		if st, ok := e.task.(Starter); ok {
			if err := st.Start(); err != nil {
				return fmt.Errorf("scheduler: start %s: %w", e.name, err)
			}
		}
	}
	s.logger.Info("Scheduler running", "tasks", len(s.tasks), "interval", s.interval)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		s.Cycle()
		if tick == nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			runtime.Gosched()
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		}
	}
}
