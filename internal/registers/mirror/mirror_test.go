// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ffutop/modbus-node/internal/registers"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		path    string
		wantErr bool
	}{
		{"Default", "", "", false},
		{"Memory", TypeMemory, "", false},
		{"Mmap", TypeMmap, "/tmp/x", false},
		{"MmapNoPath", TypeMmap, "", true},
		{"Unknown", "sql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.typ, tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.typ, err, tt.wantErr)
			}
		})
	}
}

func TestMemoryStorage(t *testing.T) {
	m, err := Open(NewMemoryStorage(), registers.DefaultLayout())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Write(registers.Holding, 4, 2); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if v, _ := m.Read(registers.Holding, 4); v != 2 {
		t.Errorf("Read = %d, want 2", v)
	}
}

func TestMmapStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.mirror")

	// Stale content from an earlier run must not leak into the new map.
	if err := os.WriteFile(path, []byte("MBND\x01\x00\x05\x00\x01\x00\x00\x00\x09\x00\x00\x00\xff\xff\xff\xff"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewMmapStorage(path)
	m, err := Open(s, registers.DefaultLayout())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for addr := uint16(0); addr < 5; addr++ {
		if v, _ := m.Read(registers.Holding, addr); v != 0 {
			t.Fatalf("holding 0x%04X = %d after load, want 0", addr, v)
		}
	}

	if err := m.Write(registers.Holding, 4, 0x0102); err != nil {
		t.Fatal(err)
	}
	if err := m.Write(registers.Input, 0, 1); err != nil {
		t.Fatal(err)
	}

	snap, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if snap.Sequence != 2 {
		t.Errorf("sequence = %d, want 2", snap.Sequence)
	}
	if len(snap.Holding) != 5 || snap.Holding[4] != 0x0102 {
		t.Errorf("holding = %v", snap.Holding)
	}
	if len(snap.Input) != 1 || snap.Input[0] != 1 {
		t.Errorf("input = %v", snap.Input)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestMmapEmptyTables(t *testing.T) {
	s := NewMmapStorage(filepath.Join(t.TempDir(), "empty.mirror"))
	defer s.Close()

	h, i, err := s.Load(0, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(h) != 0 || len(i) != 0 {
		t.Errorf("len = %d/%d, want 0/0", len(h), len(i))
	}
}

func TestReadSnapshotRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	if err := os.WriteFile(path, []byte("not a mirror file at all"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Error("expected error")
	}
}
