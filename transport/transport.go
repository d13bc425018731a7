// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"errors"
	"io"
)

// ErrBufferFull is returned by Send when the frame does not fit in the
// transmit queue. Nothing was queued.
var ErrBufferFull = errors.New("transport: buffer full")

// Transport is the non-blocking byte queue pair a slave instance talks through.
type Transport interface {
	// TryReceiveByte returns the next received byte, or false if none is queued.
	TryReceiveByte() (byte, bool)
	// Send queues a whole frame for transmission or rejects it with ErrBufferFull.
	Send(frame []byte) error
}

// StreamHandler serves one byte stream until it fails or ctx is done.
type StreamHandler func(ctx context.Context, stream io.ReadWriteCloser) error

// Line produces the byte streams a node is attached to: a serial port, or the
// connections accepted on a TCP listener.
type Line interface {
	// Start opens the line and blocks until ctx is done, handing each stream to handler.
	Start(ctx context.Context, handler StreamHandler) error
	Close() error
}
