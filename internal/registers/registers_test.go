// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T, addrs ...uint16) *Table {
	t.Helper()
	tbl, err := NewTable(addrs, make([]uint16, len(addrs)))
	require.NoError(t, err)
	return tbl
}

func TestNewTableRejectsUnordered(t *testing.T) {
	_, err := NewTable([]uint16{1, 1}, make([]uint16, 2))
	assert.Error(t, err)
	_, err = NewTable([]uint16{2, 1}, make([]uint16, 2))
	assert.Error(t, err)
	_, err = NewTable([]uint16{1}, make([]uint16, 2))
	assert.Error(t, err)
}

func TestTableLocate(t *testing.T) {
	tbl := newTable(t, 0, 1, 2, 3, 4, 0x10, 0x11)

	tests := []struct {
		name     string
		start    uint16
		quantity int
		index    int
		err      error
	}{
		{"Single", 0, 1, 0, nil},
		{"WholeRun", 0, 5, 0, nil},
		{"PastRun", 0, 6, 0, ErrNonContiguous},
		{"Middle", 2, 3, 2, nil},
		{"SecondRun", 0x10, 2, 5, nil},
		{"PastEnd", 0x10, 3, 0, ErrUnknownRegister},
		{"UnknownStart", 5, 1, 0, ErrUnknownRegister},
		{"LastOnly", 0x11, 1, 6, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, err := tbl.Locate(tt.start, tt.quantity)
			if tt.err != nil {
				assert.True(t, errors.Is(err, tt.err), "err = %v, want %v", err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.index, index)
		})
	}
}

func TestTableLocateExactlyTableSize(t *testing.T) {
	tbl := newTable(t, 0, 1, 2, 3, 4)

	_, err := tbl.Locate(0, 5)
	assert.NoError(t, err)
	_, err = tbl.Locate(0, 6)
	assert.ErrorIs(t, err, ErrUnknownRegister)
}

func TestMapReadWrite(t *testing.T) {
	m, err := DefaultLayout().Build(make([]uint16, 5), make([]uint16, 1))
	require.NoError(t, err)

	var hooked []int
	m.OnWrite(func(kind Kind, index, quantity int) {
		hooked = append(hooked, int(kind), index, quantity)
	})

	require.NoError(t, m.Write(Holding, 4, 0xBEEF))
	v, err := m.Read(Holding, 4)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), v)
	assert.Equal(t, []int{int(Holding), 4, 1}, hooked)

	require.NoError(t, m.Write(Input, 0, 1))
	v, err = m.Read(Input, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), v)

	_, err = m.Read(Input, 1)
	assert.ErrorIs(t, err, ErrUnknownRegister)
	assert.ErrorIs(t, m.Write(Holding, 5, 0), ErrUnknownRegister)
	_, err = m.Read(Kind(9), 0)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestEmptyMap(t *testing.T) {
	m := NewMap(nil, nil)
	_, err := m.Read(Holding, 0)
	assert.ErrorIs(t, err, ErrUnknownRegister)
	_, err = m.Table(Input).Locate(0, 1)
	assert.ErrorIs(t, err, ErrUnknownRegister)
}
