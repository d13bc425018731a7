// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/ffutop/modbus-node/transport"
)

// Server exposes a node's bus over TCP: every accepted connection carries raw
// RTU frames, exactly as a serial line would. Connections are served one at a
// time since a bus has a single master.
type Server struct {
	Address string

	mu       sync.Mutex
	listener net.Listener
	logger   *slog.Logger
}

// NewServer creates a new RTU over TCP Server.
func NewServer(address string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Address: address,
		logger:  logger,
	}
}

// Listen binds the listener without serving. Start calls it if needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start implements transport.Line.
func (s *Server) Start(ctx context.Context, handler transport.StreamHandler) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.logger.Info("RTU over TCP line listening", "addr", s.Addr())

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.Error("Failed to accept connection", "err", err)
				continue
			}
		}
		s.logger.Info("RTU over TCP master connected", "remote", conn.RemoteAddr())
		if err := handler(ctx, conn); err != nil {
			s.logger.Warn("RTU over TCP connection failed", "remote", conn.RemoteAddr(), "err", err)
		} else {
			s.logger.Info("RTU over TCP master disconnected", "remote", conn.RemoteAddr())
		}
		conn.Close()
	}
}

// Close closes the server listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		err := s.listener.Close()
		s.listener = nil
		return err
	}
	return nil
}
