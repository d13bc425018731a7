// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import "fmt"

// BroadcastAddress is never a valid address for a configured slave.
const BroadcastAddress byte = 0x00

// MaxSlaveAddress is the highest unicast address allowed on a serial line.
const MaxSlaveAddress byte = 247

// Function codes served by the node.
const (
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleRegisters = 0x10
)

// ExceptionFlag is OR'ed into the function code of an exception response.
const ExceptionFlag = 0x80

// Exception codes.
const (
	ExceptionCodeIllegalFunction    = 0x01
	ExceptionCodeIllegalDataAddress = 0x02
	ExceptionCodeIllegalDataValue   = 0x03
)

// Quantity limits for register functions.
const (
	MinReadQuantity  = 1
	MaxReadQuantity  = 125
	MinWriteQuantity = 1
	MaxWriteQuantity = 123
)

// ProtocolDataUnit is the function code plus data, independent of the framing.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// IsException reports whether the PDU carries an exception response.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&ExceptionFlag != 0
}

// Exception is the error form of an exception response.
type Exception struct {
	FunctionCode byte
	Code         byte
}

func (e *Exception) Error() string {
	return fmt.Sprintf("modbus: exception '%v' (%s), function '%v'", e.Code, ExceptionText(e.Code), e.FunctionCode&^ExceptionFlag)
}

// ExceptionText returns a human readable name for an exception code.
func ExceptionText(code byte) string {
	switch code {
	case ExceptionCodeIllegalFunction:
		return "illegal function"
	case ExceptionCodeIllegalDataAddress:
		return "illegal data address"
	case ExceptionCodeIllegalDataValue:
		return "illegal data value"
	default:
		return "unknown"
	}
}

// FunctionName returns the name of a supported function code.
func FunctionName(code byte) string {
	switch code &^ ExceptionFlag {
	case FuncCodeReadHoldingRegisters:
		return "read holding registers"
	case FuncCodeReadInputRegisters:
		return "read input registers"
	case FuncCodeWriteSingleRegister:
		return "write single register"
	case FuncCodeWriteMultipleRegisters:
		return "write multiple registers"
	default:
		return fmt.Sprintf("function 0x%02X", code&^ExceptionFlag)
	}
}
