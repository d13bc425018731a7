// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ffutop/modbus-node/internal/registers"
	"github.com/ffutop/modbus-node/internal/registers/mirror"
	"github.com/ffutop/modbus-node/internal/trace"
	"github.com/google/uuid"
)

type TraceCommand struct {
	Kind string `short:"k" long:"kind" choice:"accepted" choice:"dropped" choice:"response" description:"Only print events of this kind"`
	Args struct {
		File string
	} `positional-args:"yes" required:"yes"`
}

func (c *TraceCommand) Execute(args []string) error {
	f, err := os.Open(c.Args.File)
	if err != nil {
		return err
	}
	defer f.Close()
	return printTrace(os.Stdout, f, c.Kind)
}

func printTrace(w io.Writer, r io.Reader, kind string) error {
	var session uuid.UUID
	return trace.Decode(r, func(ev trace.Event) error {
		if ev.Session != session {
			session = ev.Session
			if _, err := fmt.Fprintf(w, "session %s\n", session); err != nil {
				return err
			}
		}
		if kind != "" && ev.Kind.String() != kind {
			return nil
		}
		_, err := fmt.Fprintln(w, ev)
		return err
	})
}

type MirrorCommand struct {
	Layout string `short:"l" long:"layout" description:"Register layout file used to name the registers"`
	Args   struct {
		File string
	} `positional-args:"yes" required:"yes"`
}

func (c *MirrorCommand) Execute(args []string) error {
	layout, err := registers.LoadLayoutFile(c.Layout)
	if err != nil {
		return err
	}
	snap, err := mirror.ReadSnapshot(c.Args.File)
	if err != nil {
		return err
	}
	return printSnapshot(os.Stdout, snap, layout)
}

func printSnapshot(w io.Writer, snap *mirror.Snapshot, layout *registers.Layout) error {
	fmt.Fprintf(w, "sequence %d\n", snap.Sequence)
	for _, kind := range []registers.Kind{registers.Holding, registers.Input} {
		values := snap.Holding
		if kind == registers.Input {
			values = snap.Input
		}
		addrs := layout.Addresses(kind)
		if len(addrs) != len(values) {
			return fmt.Errorf("%s: mirror has %d registers, layout has %d", kind, len(values), len(addrs))
		}
		for i, v := range values {
			name := layout.Name(kind, addrs[i])
			if _, err := fmt.Fprintf(w, "%-7s 0x%04X %-16s 0x%04X (%d)\n", kind, addrs[i], name, v, v); err != nil {
				return err
			}
		}
	}
	return nil
}

type LayoutCommand struct{}

func (c *LayoutCommand) Execute(args []string) error {
	return registers.DefaultLayout().Encode(os.Stdout)
}
