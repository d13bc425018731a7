// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package uart

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/ffutop/modbus-node/transport"
)

const readChunk = 64

// Port connects a pair of rings to a byte stream. The poll loop sees only the
// non-blocking Transport side; the pump goroutines started by Serve play the
// role of the receive and transmit interrupts.
type Port struct {
	rx   *Ring
	tx   *Ring
	kick chan struct{}

	overruns atomic.Uint64
	rxBytes  atomic.Uint64
	txBytes  atomic.Uint64

	logger *slog.Logger
}

// NewPort creates a port whose receive and transmit queues hold size bytes each.
func NewPort(size int, logger *slog.Logger) *Port {
	if logger == nil {
		logger = slog.Default()
	}
	return &Port{
		rx:     NewRing(size),
		tx:     NewRing(size),
		kick:   make(chan struct{}, 1),
		logger: logger,
	}
}

// TryReceiveByte implements transport.Transport.
func (p *Port) TryReceiveByte() (byte, bool) {
	return p.rx.Get()
}

// Send implements transport.Transport.
func (p *Port) Send(frame []byte) error {
	if !p.tx.PutAll(frame) {
		return transport.ErrBufferFull
	}
	select {
	case p.kick <- struct{}{}:
	default:
	}
	return nil
}

// Overruns returns the number of received bytes dropped on a full queue.
func (p *Port) Overruns() uint64 {
	return p.overruns.Load()
}

// Stats returns the number of bytes received and transmitted.
func (p *Port) Stats() (rx, tx uint64) {
	return p.rxBytes.Load(), p.txBytes.Load()
}

// Serve pumps bytes between stream and the rings until the stream fails or
// ctx is done. The stream is closed on return.
func (p *Port) Serve(parent context.Context, stream io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	go func() {
		<-ctx.Done()
		stream.Close()
	}()

	errc := make(chan error, 2)
	go func() { errc <- p.receive(stream) }()
	go func() { errc <- p.transmit(ctx, stream) }()

	err := <-errc
	cancel()
	<-errc
	if parent.Err() != nil {
		// Shutdown closes the stream under the pumps.
		return nil
	}
	return err
}

func (p *Port) receive(r io.Reader) error {
	buf := make([]byte, readChunk)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if !p.rx.Put(b) {
				if p.overruns.Add(1) == 1 {
					p.logger.Warn("Receive queue overrun", "capacity", p.rx.Cap())
				}
				continue
			}
			p.rxBytes.Add(1)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("uart: read: %w", err)
		}
	}
}

func (p *Port) transmit(ctx context.Context, w io.Writer) error {
	buf := make([]byte, p.tx.Cap())
	for {
		for {
			n := p.tx.Drain(buf)
			if n == 0 {
				break
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("uart: write: %w", err)
			}
			p.txBytes.Add(uint64(n))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.kick:
		}
	}
}
