// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ffutop/modbus-node/modbus"
)

// ErrRequestTimedOut is returned when the deadline passes before a whole
// response arrived.
var ErrRequestTimedOut = errors.New("modbus: request timed out")

// InvalidLengthError reports a read response byte count that no request can produce.
type InvalidLengthError struct {
	Length byte
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("modbus: invalid response byte count '%v'", e.Length)
}

// CalculateResponseLength returns the length of a successful response to
// the request adu, or MinSize for functions the node does not serve.
func CalculateResponseLength(adu []byte) int {
	if len(adu) < 2 {
		return MinSize
	}
	switch adu[1] {
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		if len(adu) < 6 {
			return MinSize
		}
		return 3 + 2*int(binary.BigEndian.Uint16(adu[4:])) + 2
	case modbus.FuncCodeWriteSingleRegister, modbus.FuncCodeWriteMultipleRegisters:
		return WriteMultipleResponseSize
	}
	return MinSize
}

// responseLength returns the total length of the response that starts with
// head, or 0 while the header is still incomplete.
func responseLength(head []byte) (int, error) {
	if len(head) < 2 {
		return 0, nil
	}
	if head[1]&modbus.ExceptionFlag != 0 {
		return ExceptionSize, nil
	}
	switch head[1] {
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		if len(head) < 3 {
			return 0, nil
		}
		count := head[2]
		if count == 0 || count%2 != 0 || int(count) > MaxSize-5 {
			return 0, &InvalidLengthError{Length: count}
		}
		return 3 + int(count) + 2, nil
	case modbus.FuncCodeWriteSingleRegister, modbus.FuncCodeWriteMultipleRegisters:
		return WriteMultipleResponseSize, nil
	}
	return 0, fmt.Errorf("modbus: function '%v' not handled", head[1])
}

// ReadResponse reads one response frame from r. Bytes are skipped until the
// expected slave id is followed by the expected function code or its
// exception form. The CRC is left to the caller.
func ReadResponse(slaveID, functionCode byte, r io.Reader, deadline time.Time) ([]byte, error) {
	if r == nil {
		return nil, errors.New("modbus: reader is nil")
	}

	frame := make([]byte, 0, MaxSize)
	var b [1]byte
	want := 0
	for want == 0 || len(frame) < want {
		if time.Now().After(deadline) {
			return nil, ErrRequestTimedOut
		}
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}

		switch len(frame) {
		case 0:
			if b[0] != slaveID {
				continue
			}
		case 1:
			if b[0] != functionCode && b[0] != functionCode|modbus.ExceptionFlag {
				// Resync, keeping b if it may start the frame.
				frame = frame[:0]
				if b[0] == slaveID {
					frame = append(frame, b[0])
				}
				continue
			}
		}
		frame = append(frame, b[0])

		if want == 0 {
			n, err := responseLength(frame)
			if err != nil {
				return nil, err
			}
			want = n
		}
	}
	return frame, nil
}
