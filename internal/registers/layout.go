// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Names of the registers in the default layout.
const (
	NamePushButton    = "push_button"
	NameClockFreqHigh = "clk_freq_high"
	NameClockFreqLow  = "clk_freq_low"
	NameBaudRateHigh  = "baud_rate_high"
	NameBaudRateLow   = "baud_rate_low"
	NameLED           = "led"
)

// Entry describes one register.
type Entry struct {
	Address uint16 `yaml:"address"`
	Name    string `yaml:"name,omitempty"`
	Value   uint16 `yaml:"value,omitempty"`
}

// Layout is the set of registers an instance exposes.
type Layout struct {
	Holding []Entry `yaml:"holding"`
	Input   []Entry `yaml:"input"`
}

// DefaultLayout returns the board layout: one input register for the push
// button and five holding registers for clock, baud rate and LED.
func DefaultLayout() *Layout {
	return &Layout{
		Input: []Entry{
			{Address: 0x0000, Name: NamePushButton},
		},
		Holding: []Entry{
			{Address: 0x0000, Name: NameClockFreqHigh},
			{Address: 0x0001, Name: NameClockFreqLow},
			{Address: 0x0002, Name: NameBaudRateHigh},
			{Address: 0x0003, Name: NameBaudRateLow},
			{Address: 0x0004, Name: NameLED},
		},
	}
}

// LoadLayout decodes a YAML layout and sorts it by address.
func LoadLayout(r io.Reader) (*Layout, error) {
	var l Layout
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil && err != io.EOF {
		return nil, fmt.Errorf("registers: decode layout: %w", err)
	}
	l.sort()
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// LoadLayoutFile reads a layout from path. An empty path yields the default layout.
func LoadLayoutFile(path string) (*Layout, error) {
	if path == "" {
		return DefaultLayout(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("registers: open layout: %w", err)
	}
	defer f.Close()
	return LoadLayout(f)
}

// Encode writes l as YAML.
func (l *Layout) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(l); err != nil {
		return err
	}
	return enc.Close()
}

func (l *Layout) sort() {
	for _, entries := range [][]Entry{l.Holding, l.Input} {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })
	}
}

// Validate rejects duplicate addresses and duplicate names within a table.
// Entries must already be sorted.
func (l *Layout) Validate() error {
	for _, kind := range []Kind{Holding, Input} {
		entries := l.entries(kind)
		names := make(map[string]bool, len(entries))
		for i, e := range entries {
			if i > 0 && e.Address <= entries[i-1].Address {
				return fmt.Errorf("registers: %s address 0x%04X duplicated or out of order", kind, e.Address)
			}
			if e.Name == "" {
				continue
			}
			if names[e.Name] {
				return fmt.Errorf("registers: %s name %q duplicated", kind, e.Name)
			}
			names[e.Name] = true
		}
	}
	return nil
}

func (l *Layout) entries(kind Kind) []Entry {
	if kind == Input {
		return l.Input
	}
	return l.Holding
}

// Size returns the number of registers of kind.
func (l *Layout) Size(kind Kind) int {
	return len(l.entries(kind))
}

// Addresses returns the ascending addresses of kind.
func (l *Layout) Addresses(kind Kind) []uint16 {
	entries := l.entries(kind)
	addrs := make([]uint16, len(entries))
	for i, e := range entries {
		addrs[i] = e.Address
	}
	return addrs
}

// Lookup returns the address of the named register.
func (l *Layout) Lookup(kind Kind, name string) (uint16, bool) {
	for _, e := range l.entries(kind) {
		if e.Name == name {
			return e.Address, true
		}
	}
	return 0, false
}

// Name returns the name of the register at address, or "".
func (l *Layout) Name(kind Kind, address uint16) string {
	for _, e := range l.entries(kind) {
		if e.Address == address {
			return e.Name
		}
	}
	return ""
}

// Build creates a Map over the given value slices, which must be sized per
// Size, and stores the layout's initial values in them.
func (l *Layout) Build(holding, input []uint16) (*Map, error) {
	tables := make([]*Table, 2)
	for i, kind := range []Kind{Holding, Input} {
		values := holding
		if kind == Input {
			values = input
		}
		t, err := NewTable(l.Addresses(kind), values)
		if err != nil {
			return nil, fmt.Errorf("%s table: %w", kind, err)
		}
		for j, e := range l.entries(kind) {
			values[j] = e.Value
		}
		tables[i] = t
	}
	return NewMap(tables[0], tables[1]), nil
}
