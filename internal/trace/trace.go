// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package trace records frame level events of slave instances as a stream
// of CBOR items.
package trace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Kind classifies an event.
type Kind uint8

const (
	// KindAccepted is a request that passed the CRC check.
	KindAccepted Kind = iota + 1
	// KindDropped is a frame discarded without a response.
	KindDropped
	// KindResponse is a response handed to the transport.
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindAccepted:
		return "accepted"
	case KindDropped:
		return "dropped"
	case KindResponse:
		return "response"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Reasons a frame is dropped.
const (
	ReasonShort    = "short"
	ReasonCRC      = "crc"
	ReasonLength   = "length"
	ReasonOverflow = "overflow"
)

// Event is one trace record.
type Event struct {
	Session   uuid.UUID `cbor:"1,keyasint"`
	UnixMicro int64     `cbor:"2,keyasint"`
	Instance  int       `cbor:"3,keyasint"`
	Address   byte      `cbor:"4,keyasint"`
	Kind      Kind      `cbor:"5,keyasint"`
	Reason    string    `cbor:"6,keyasint,omitempty"`
	Frame     []byte    `cbor:"7,keyasint"`
}

// Time returns the event timestamp.
func (ev Event) Time() time.Time {
	return time.UnixMicro(ev.UnixMicro)
}

func (ev Event) String() string {
	s := fmt.Sprintf("%s instance=%d addr=0x%02X %-8s % X", ev.Time().Format("15:04:05.000000"), ev.Instance, ev.Address, ev.Kind, ev.Frame)
	if ev.Reason != "" {
		s += " reason=" + ev.Reason
	}
	return s
}

// Tracer receives events. Implementations must not retain ev.Frame.
type Tracer interface {
	Record(ev Event)
}

// Noop discards events.
type Noop struct{}

func (Noop) Record(Event) {}

// FileTracer appends events to a file. Every tracer has its own session id so
// runs appended to the same file can be told apart.
type FileTracer struct {
	mu      sync.Mutex
	file    *os.File
	enc     *cbor.Encoder
	session uuid.UUID
	now     func() time.Time
	failed  bool
	logger  *slog.Logger
}

// NewFileTracer opens path for appending.
func NewFileTracer(path string, logger *slog.Logger) (*FileTracer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return newTracer(f, logger), nil
}

func newTracer(f *os.File, logger *slog.Logger) *FileTracer {
	session := uuid.New()
	return &FileTracer{
		file:    f,
		enc:     cbor.NewEncoder(f),
		session: session,
		now:     time.Now,
		logger:  logger.With("session", session),
	}
}

// Session returns the id stamped on every event.
func (t *FileTracer) Session() uuid.UUID {
	return t.session
}

// Record implements Tracer. Write errors are logged once and then ignored.
func (t *FileTracer) Record(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ev.Session = t.session
	ev.UnixMicro = t.now().UnixMicro()
	if err := t.enc.Encode(ev); err != nil && !t.failed {
		t.failed = true
		t.logger.Error("Failed to write trace event", "err", err)
	}
}

// Close closes the file.
func (t *FileTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

// Decode reads events from r until EOF, calling fn for each.
func Decode(r io.Reader, fn func(Event) error) error {
	dec := cbor.NewDecoder(r)
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("trace: decode: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
