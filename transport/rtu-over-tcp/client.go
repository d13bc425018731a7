// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ffutop/modbus-node/modbus"
	"github.com/ffutop/modbus-node/modbus/rtu"
)

const (
	tcpTimeout = 10 * time.Second
)

// Client carries RTU frames to a node over TCP. It implements the
// Transporter interface of github.com/goburrow/modbus, so it pairs with that
// library's RTU packager.
type Client struct {
	Address string
	Timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewClient allocates and initializes a TCP Client.
func NewClient(address string) *Client {
	return &Client{
		Address: address,
		Timeout: tcpTimeout,
	}
}

// Send writes one request frame and reads the matching response frame.
// A response with a bad CRC or one that does not answer the request is an
// error. Exception responses are returned as frames for the packager.
func (mb *Client) Send(aduRequest []byte) ([]byte, error) {
	request, err := rtu.Decode(aduRequest)
	if err != nil {
		return nil, err
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()

	// Ensure connection is open
	if err := mb.connect(); err != nil {
		return nil, fmt.Errorf("modbus: failed to connect to %s: %w", mb.Address, err)
	}

	deadline := time.Now().Add(mb.Timeout)
	if err := mb.conn.SetDeadline(deadline); err != nil {
		mb.close()
		return nil, err
	}

	slog.Debug("send to modbus slave", "request", hex.EncodeToString(aduRequest))
	if _, err := mb.conn.Write(aduRequest); err != nil {
		mb.close() // Close connection on write failure to force reconnect next time
		return nil, fmt.Errorf("failed to write to connection: %w", err)
	}

	resp, err := rtu.ReadResponse(aduRequest[0], aduRequest[1], mb.conn, deadline)
	if err != nil {
		mb.close() // The stream may be out of sync
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	slog.Debug("recv from modbus slave", "response", hex.EncodeToString(resp))

	response, err := rtu.Decode(resp)
	if err != nil {
		return nil, err
	}
	if err = request.Verify(response); err != nil {
		var exc *modbus.Exception
		if !errors.As(err, &exc) {
			return nil, err
		}
		slog.Debug("exception from modbus slave", "err", exc)
	}
	return resp, nil
}

// Connect dials the node if not connected.
func (mb *Client) Connect() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.connect()
}

// Close closes the connection.
func (mb *Client) Close() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.close()
	return nil
}

// connect ensures there is an active connection. Caller must hold the mutex.
func (mb *Client) connect() error {
	if mb.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", mb.Address, mb.Timeout)
	if err != nil {
		return err
	}
	mb.conn = conn
	return nil
}

// close closes the connection and resets the state. Caller must hold the mutex.
func (mb *Client) close() {
	if mb.conn != nil {
		mb.conn.Close()
		mb.conn = nil
	}
}
