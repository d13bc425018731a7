// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mirror

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Snapshot is a copy of a mirror file taken by an outside reader.
type Snapshot struct {
	Sequence uint32
	Holding  []uint16
	Input    []uint16
}

// ReadSnapshot maps the mirror file at path read-only and copies its values.
func ReadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	defer data.Unmap()

	if len(data) < headerSize || string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("mirror: %s is not a register mirror", path)
	}
	if v := binary.LittleEndian.Uint16(data[offsetVersion:]); v != version {
		return nil, fmt.Errorf("mirror: unsupported version %d", v)
	}
	holding := int(binary.LittleEndian.Uint16(data[offsetHolding:]))
	input := int(binary.LittleEndian.Uint16(data[offsetInput:]))
	if len(data) < fileSize(holding, input) {
		return nil, fmt.Errorf("mirror: %s is truncated", path)
	}

	h, i := mapValues(data, holding, input)
	return &Snapshot{
		Sequence: binary.LittleEndian.Uint32(data[offsetSequence:]),
		Holding:  append([]uint16(nil), h...),
		Input:    append([]uint16(nil), i...),
	}, nil
}
