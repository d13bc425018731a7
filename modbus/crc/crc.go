// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

const (
	initial    = 0xFFFF
	polynomial = 0xA001
)

// CRC is a running CRC-16/Modbus (reflected, poly 0xA001, init 0xFFFF).
type CRC struct {
	value uint16
}

// Reset restores the initial value.
func (crc *CRC) Reset() *CRC {
	crc.value = initial
	return crc
}

// PushByte folds one byte into the checksum.
func (crc *CRC) PushByte(b byte) *CRC {
	crc.value ^= uint16(b)
	for i := 0; i < 8; i++ {
		if crc.value&1 == 0 {
			crc.value >>= 1
		} else {
			crc.value = crc.value>>1 ^ polynomial
		}
	}
	return crc
}

// PushBytes folds bs into the checksum.
func (crc *CRC) PushBytes(bs []byte) *CRC {
	for _, b := range bs {
		crc.PushByte(b)
	}
	return crc
}

// Value returns the checksum.
func (crc *CRC) Value() uint16 {
	return crc.value
}

// Checksum computes the CRC of data in one call.
func Checksum(data []byte) uint16 {
	var crc CRC
	return crc.Reset().PushBytes(data).Value()
}

// Put writes the CRC of frame[:n] into frame[n:n+2], low byte first, and returns n+2.
// frame must have room for the two CRC bytes.
func Put(frame []byte, n int) int {
	sum := Checksum(frame[:n])
	frame[n] = byte(sum)
	frame[n+1] = byte(sum >> 8)
	return n + 2
}

// Append returns frame with its CRC appended low byte first.
func Append(frame []byte) []byte {
	sum := Checksum(frame)
	return append(frame, byte(sum), byte(sum>>8))
}

// Check reports whether the trailing two bytes of frame are the CRC of the rest.
func Check(frame []byte) bool {
	n := len(frame)
	if n < 2 {
		return false
	}
	sum := Checksum(frame[:n-2])
	return frame[n-2] == byte(sum) && frame[n-1] == byte(sum>>8)
}
