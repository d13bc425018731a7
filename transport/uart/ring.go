// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package uart

import "sync/atomic"

// Ring is a single-producer/single-consumer byte queue. Put and PutAll may be
// called from one goroutine while Get is called from another, without locks.
//
// head and tail are free-running counters, so a full ring (tail-head == size)
// is never confused with an empty one (tail == head).
type Ring struct {
	buf  []byte
	mask uint32
	head atomic.Uint32 // next read, owned by the consumer
	tail atomic.Uint32 // next write, owned by the producer
}

// NewRing creates a ring holding at least size bytes. The capacity is rounded
// up to a power of two.
func NewRing(size int) *Ring {
	n := 1
	for n < size {
		n <<= 1
	}
	return &Ring{buf: make([]byte, n), mask: uint32(n - 1)}
}

// Cap returns the capacity in bytes.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Len returns the number of queued bytes.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Put queues b, or reports false if the ring is full.
func (r *Ring) Put(b byte) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() == uint32(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = b
	r.tail.Store(tail + 1)
	return true
}

// PutAll queues all of bs or none of it.
func (r *Ring) PutAll(bs []byte) bool {
	tail := r.tail.Load()
	if uint32(len(r.buf))-(tail-r.head.Load()) < uint32(len(bs)) {
		return false
	}
	for i, b := range bs {
		r.buf[(tail+uint32(i))&r.mask] = b
	}
	r.tail.Store(tail + uint32(len(bs)))
	return true
}

// Get dequeues one byte.
func (r *Ring) Get() (byte, bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return 0, false
	}
	b := r.buf[head&r.mask]
	r.head.Store(head + 1)
	return b, true
}

// Drain dequeues up to len(p) bytes into p.
func (r *Ring) Drain(p []byte) int {
	head := r.head.Load()
	n := int(r.tail.Load() - head)
	if n > len(p) {
		n = len(p)
	}
	for i := 0; i < n; i++ {
		p[i] = r.buf[(head+uint32(i))&r.mask]
	}
	r.head.Store(head + uint32(n))
	return n
}
