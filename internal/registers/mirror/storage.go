// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mirror

import (
	"fmt"

	"github.com/ffutop/modbus-node/internal/registers"
)

// Storage provides the backing arrays for register values.
type Storage interface {
	// Load returns zeroed value slices of the requested sizes.
	// Values never survive a restart.
	Load(holding, input int) (holdingValues, inputValues []uint16, err error)

	// OnWrite is a hook called whenever a register is modified.
	OnWrite(kind registers.Kind, index, quantity int)

	// Close releases the backing arrays.
	Close() error
}

// Kinds of storage.
const (
	TypeMemory = "memory"
	TypeMmap   = "mmap"
)

// New creates the storage named by typ.
func New(typ, path string) (Storage, error) {
	switch typ {
	case "", TypeMemory:
		return NewMemoryStorage(), nil
	case TypeMmap:
		if path == "" {
			return nil, fmt.Errorf("mirror: mmap storage requires a path")
		}
		return NewMmapStorage(path), nil
	default:
		return nil, fmt.Errorf("mirror: unknown storage type %q", typ)
	}
}

// Open loads storage for layout and builds the register map over it.
// The map's write hook is wired to the storage.
func Open(s Storage, layout *registers.Layout) (*registers.Map, error) {
	holding, input, err := s.Load(layout.Size(registers.Holding), layout.Size(registers.Input))
	if err != nil {
		return nil, err
	}
	m, err := layout.Build(holding, input)
	if err != nil {
		return nil, err
	}
	m.OnWrite(s.OnWrite)
	return m, nil
}
