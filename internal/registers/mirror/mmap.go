// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mirror

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/modbus-node/internal/registers"
)

// MmapStorage keeps values in a memory-mapped file so other processes on the
// host can watch the register map live. The file is truncated and zeroed on
// Load.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{
		path: path,
	}
}

// Load maps a fresh file sized for the given register counts.
func (ms *MmapStorage) Load(holding, input int) ([]uint16, []uint16, error) {
	if ms.data != nil {
		return nil, nil, fmt.Errorf("mirror: %s already loaded", ms.path)
	}
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open mmap file: %w", err)
	}

	// Truncate to zero first so stale values from a previous run are dropped.
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to reset mmap file: %w", err)
	}
	if err := f.Truncate(int64(fileSize(holding, input))); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to resize mmap file: %w", err)
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("mmap failed: %w", err)
	}
	ms.file = f
	ms.data = data

	writeHeader(data, holding, input)
	h, i := mapValues(data, holding, input)
	return h, i, nil
}

// OnWrite bumps the sequence counter so readers can detect changes.
func (ms *MmapStorage) OnWrite(kind registers.Kind, index, quantity int) {
	if ms.data == nil {
		return
	}
	seq := binary.LittleEndian.Uint32(ms.data[offsetSequence:])
	binary.LittleEndian.PutUint32(ms.data[offsetSequence:], seq+1)
}

// Close flushes, unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	var err error
	if ms.data != nil {
		if e := ms.data.Flush(); e != nil {
			err = e
		}
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
