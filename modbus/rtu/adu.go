// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-node/modbus"
	"github.com/ffutop/modbus-node/modbus/crc"
)

// ApplicationDataUnit is a decoded RTU frame.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode checks the CRC of raw and splits it into slave id and PDU.
// The PDU data aliases raw.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		err = fmt.Errorf("modbus: frame length '%v' does not meet minimum '%v'", length, MinSize)
		return
	}

	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if expected := crc.Checksum(raw[:length-2]); checksum != expected {
		err = fmt.Errorf("modbus: frame crc '%v' does not match expected '%v'", checksum, expected)
		return
	}
	adu = &ApplicationDataUnit{}
	adu.SlaveID = raw[0]
	adu.Pdu.FunctionCode = raw[1]
	adu.Pdu.Data = raw[2 : length-2]
	return
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		err = fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
		return
	}
	raw = make([]byte, length)

	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	copy(raw[2:], adu.Pdu.Data)
	crc.Put(raw, length-2)
	return
}

// Verify verifies response length and slave id.
func (adu *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) (err error) {
	// Slave address must match
	if adu.SlaveID != resp.SlaveID {
		err = fmt.Errorf("modbus: response slave id '%v' does not match request '%v'", resp.SlaveID, adu.SlaveID)
		return
	}
	fc := resp.Pdu.FunctionCode &^ modbus.ExceptionFlag
	if fc != adu.Pdu.FunctionCode {
		err = fmt.Errorf("modbus: response function '%v' does not match request '%v'", fc, adu.Pdu.FunctionCode)
		return
	}
	if resp.Pdu.IsException() {
		if len(resp.Pdu.Data) != 1 {
			return fmt.Errorf("modbus: exception response data length '%v' is not 1", len(resp.Pdu.Data))
		}
		return &modbus.Exception{FunctionCode: resp.Pdu.FunctionCode, Code: resp.Pdu.Data[0]}
	}
	return
}

// ReadRequest builds a read holding (0x03) or read input (0x04) request frame.
func ReadRequest(slaveID, functionCode byte, start, quantity uint16) []byte {
	frame := make([]byte, 6, ReadRequestSize)
	frame[0] = slaveID
	frame[1] = functionCode
	binary.BigEndian.PutUint16(frame[2:], start)
	binary.BigEndian.PutUint16(frame[4:], quantity)
	return crc.Append(frame)
}

// WriteSingleRequest builds a write single register (0x06) request frame.
func WriteSingleRequest(slaveID byte, address, value uint16) []byte {
	return ReadRequest(slaveID, modbus.FuncCodeWriteSingleRegister, address, value)
}

// WriteMultipleRequest builds a write multiple registers (0x10) request frame.
func WriteMultipleRequest(slaveID byte, start uint16, values []uint16) []byte {
	frame := make([]byte, WriteMultipleHeaderSize, WriteMultipleHeaderSize+2*len(values)+2)
	frame[0] = slaveID
	frame[1] = modbus.FuncCodeWriteMultipleRegisters
	binary.BigEndian.PutUint16(frame[2:], start)
	binary.BigEndian.PutUint16(frame[4:], uint16(len(values)))
	frame[6] = byte(2 * len(values))
	for _, v := range values {
		frame = binary.BigEndian.AppendUint16(frame, v)
	}
	return crc.Append(frame)
}

// RegisterValues decodes the payload of a read registers response PDU.
func RegisterValues(pdu modbus.ProtocolDataUnit) ([]uint16, error) {
	if len(pdu.Data) < 1 {
		return nil, fmt.Errorf("modbus: empty read response")
	}
	count := int(pdu.Data[0])
	if count%2 != 0 || len(pdu.Data) != 1+count {
		return nil, fmt.Errorf("modbus: response byte count '%v' does not match data length '%v'", count, len(pdu.Data)-1)
	}
	values := make([]uint16, count/2)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(pdu.Data[1+2*i:])
	}
	return values, nil
}
