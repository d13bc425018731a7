// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mirror

import (
	"encoding/binary"
	"unsafe"
)

// File layout:
//
//	magic      : 4 bytes "MBND"
//	version    : 2 bytes
//	holding    : 2 bytes, register count
//	input      : 2 bytes, register count
//	reserved   : 2 bytes
//	sequence   : 4 bytes, bumped after every write
//	values     : holding then input, 2 bytes each in host byte order
const (
	magic      = "MBND"
	version    = 1
	headerSize = 16

	offsetVersion  = 4
	offsetHolding  = 6
	offsetInput    = 8
	offsetSequence = 12
)

func fileSize(holding, input int) int {
	return headerSize + 2*(holding+input)
}

func writeHeader(data []byte, holding, input int) {
	copy(data, magic)
	binary.LittleEndian.PutUint16(data[offsetVersion:], version)
	binary.LittleEndian.PutUint16(data[offsetHolding:], uint16(holding))
	binary.LittleEndian.PutUint16(data[offsetInput:], uint16(input))
	binary.LittleEndian.PutUint32(data[offsetSequence:], 0)
}

// mapValues returns the holding and input value slices backed by data.
// Warning: values use the host's endianness. This gives zero-copy access for
// local readers of the file but the file is not portable across architectures.
func mapValues(data []byte, holding, input int) ([]uint16, []uint16) {
	values := data[headerSize:]
	return words(values[:2*holding]), words(values[2*holding : 2*(holding+input)])
}

func words(b []byte) []uint16 {
	if len(b) == 0 {
		return []uint16{}
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
}
