// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package uart

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ffutop/modbus-node/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPort struct {
	io.Reader
	io.Writer
}

func (m *mockPort) Close() error { return nil }

func TestPortOverrun(t *testing.T) {
	p := NewPort(4, nil)
	stream := &mockPort{Reader: bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}), Writer: io.Discard}

	require.NoError(t, p.Serve(context.Background(), stream))
	assert.Equal(t, uint64(6), p.Overruns())

	var got []byte
	for {
		b, ok := p.TryReceiveByte()
		if !ok {
			break
		}
		got = append(got, b)
	}
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestPortSendBufferFull(t *testing.T) {
	p := NewPort(8, nil)
	require.NoError(t, p.Send(make([]byte, 8)))
	assert.ErrorIs(t, p.Send([]byte{1}), transport.ErrBufferFull)
}

func TestPortPumps(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	p := NewPort(256, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx, server) }()

	_, err := client.Write([]byte{0x10, 0x03})
	require.NoError(t, err)

	var got []byte
	require.Eventually(t, func() bool {
		if b, ok := p.TryReceiveByte(); ok {
			got = append(got, b)
		}
		return len(got) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []byte{0x10, 0x03}, got)

	require.NoError(t, p.Send([]byte{0xAA, 0xBB, 0xCC}))
	buf := make([]byte, 3)
	client.SetReadDeadline(time.Now().Add(time.Second))
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, buf)

	// The transmit pump counts after Write returns, which can be after the
	// reader already has the bytes.
	assert.Eventually(t, func() bool {
		rx, tx := p.Stats()
		return rx == 2 && tx == 3
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
