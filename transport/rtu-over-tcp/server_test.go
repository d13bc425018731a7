// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtuovertcp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"
)

func TestServer_LifeCycle(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	addr := s.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Echo handler stands in for a uart port.
	handler := func(ctx context.Context, stream io.ReadWriteCloser) error {
		_, err := io.Copy(stream, stream)
		return err
	}

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, handler) }()

	for i := 0; i < 2; i++ {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		frame := []byte{0x10, 0x03, 0x00, 0x00, 0x00, 0x01, 0x87, 0x4B}
		if _, err := conn.Write(frame); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		got := make([]byte, len(frame))
		if _, err := io.ReadFull(conn, got); err != nil {
			t.Fatalf("connection %d: read: %v", i, err)
		}
		if string(got) != string(frame) {
			t.Errorf("connection %d: got % X, want % X", i, got, frame)
		}
		conn.Close()
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestServer_ListenError(t *testing.T) {
	s := NewServer("256.0.0.1:1", nil)
	if err := s.Start(context.Background(), nil); err == nil {
		t.Fatal("expected listen error")
	}
}
