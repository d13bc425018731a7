// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mirror

import "github.com/ffutop/modbus-node/internal/registers"

// MemoryStorage keeps values on the heap.
type MemoryStorage struct{}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load(holding, input int) ([]uint16, []uint16, error) {
	return make([]uint16, holding), make([]uint16, input), nil
}

func (ms *MemoryStorage) OnWrite(kind registers.Kind, index, quantity int) {
	// No-op
}

func (ms *MemoryStorage) Close() error {
	return nil
}
