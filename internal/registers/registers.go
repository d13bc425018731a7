// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"errors"
	"fmt"
	"sort"
)

// Kind selects one of the two register tables.
type Kind uint8

const (
	// Holding registers are read/write.
	Holding Kind = iota
	// Input registers are read-only from the bus.
	Input
)

func (k Kind) String() string {
	switch k {
	case Holding:
		return "holding"
	case Input:
		return "input"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	ErrUnknownRegister = errors.New("registers: unknown register")
	ErrNonContiguous   = errors.New("registers: range is not contiguous")
	ErrUnknownKind     = errors.New("registers: unknown register kind")
)

// Table is an ordered set of sparse register addresses and their values.
// Addresses are strictly ascending and never change after construction.
type Table struct {
	addresses []uint16
	values    []uint16
	onWrite   func(index, quantity int)
}

// NewTable builds a table over values. values is used as backing storage, not copied.
func NewTable(addresses, values []uint16) (*Table, error) {
	if len(addresses) != len(values) {
		return nil, fmt.Errorf("registers: %d addresses but %d values", len(addresses), len(values))
	}
	for i := 1; i < len(addresses); i++ {
		if addresses[i] <= addresses[i-1] {
			return nil, fmt.Errorf("registers: address 0x%04X at index %d is not above 0x%04X", addresses[i], i, addresses[i-1])
		}
	}
	return &Table{addresses: addresses, values: values}, nil
}

// Len returns the number of registers.
func (t *Table) Len() int {
	return len(t.addresses)
}

// Address returns the address at index i.
func (t *Table) Address(i int) uint16 {
	return t.addresses[i]
}

// Index finds the table index of address.
func (t *Table) Index(address uint16) (int, bool) {
	i := sort.Search(len(t.addresses), func(i int) bool { return t.addresses[i] >= address })
	if i < len(t.addresses) && t.addresses[i] == address {
		return i, true
	}
	return 0, false
}

// Locate finds quantity registers starting at start. Every register after the
// first must sit exactly one address above its predecessor and inside the table.
func (t *Table) Locate(start uint16, quantity int) (int, error) {
	index, ok := t.Index(start)
	if !ok {
		return 0, ErrUnknownRegister
	}
	for j := index + 1; j < index+quantity; j++ {
		if j >= len(t.addresses) {
			return 0, ErrUnknownRegister
		}
		if t.addresses[j] != t.addresses[j-1]+1 {
			return 0, ErrNonContiguous
		}
	}
	return index, nil
}

// Value returns the value at index i.
func (t *Table) Value(i int) uint16 {
	return t.values[i]
}

// SetValue stores v at index i.
func (t *Table) SetValue(i int, v uint16) {
	t.values[i] = v
	t.notify(i, 1)
}

// SetValues stores vs starting at index i.
func (t *Table) SetValues(i int, vs ...uint16) {
	copy(t.values[i:], vs)
	t.notify(i, len(vs))
}

func (t *Table) notify(index, quantity int) {
	if t.onWrite != nil {
		t.onWrite(index, quantity)
	}
}

// Map holds the holding and input tables of one slave instance.
type Map struct {
	holding *Table
	input   *Table
}

// NewMap combines two tables. A nil table is treated as empty.
func NewMap(holding, input *Table) *Map {
	if holding == nil {
		holding = &Table{}
	}
	if input == nil {
		input = &Table{}
	}
	return &Map{holding: holding, input: input}
}

// Table returns the table of the given kind, or nil for an unknown kind.
func (m *Map) Table(kind Kind) *Table {
	switch kind {
	case Holding:
		return m.holding
	case Input:
		return m.input
	default:
		return nil
	}
}

// OnWrite installs a hook called after any value change.
func (m *Map) OnWrite(fn func(kind Kind, index, quantity int)) {
	if fn == nil {
		m.holding.onWrite = nil
		m.input.onWrite = nil
		return
	}
	m.holding.onWrite = func(index, quantity int) { fn(Holding, index, quantity) }
	m.input.onWrite = func(index, quantity int) { fn(Input, index, quantity) }
}

// Read returns the value of the register at address.
func (m *Map) Read(kind Kind, address uint16) (uint16, error) {
	t := m.Table(kind)
	if t == nil {
		return 0, ErrUnknownKind
	}
	i, ok := t.Index(address)
	if !ok {
		return 0, fmt.Errorf("%w: %s 0x%04X", ErrUnknownRegister, kind, address)
	}
	return t.Value(i), nil
}

// Write stores value in the register at address. Any 16-bit value is accepted.
func (m *Map) Write(kind Kind, address, value uint16) error {
	t := m.Table(kind)
	if t == nil {
		return ErrUnknownKind
	}
	i, ok := t.Index(address)
	if !ok {
		return fmt.Errorf("%w: %s 0x%04X", ErrUnknownRegister, kind, address)
	}
	t.SetValue(i, value)
	return nil
}
