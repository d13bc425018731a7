// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	mb "github.com/ffutop/modbus-node/modbus"
	"github.com/goburrow/modbus"
)

// verb is a register operation shared by the commands and the shell.
type verb struct {
	usage   string
	minArgs int
	maxArgs int // -1 for unbounded
	run     func(m *master, w io.Writer, args []uint16) error
}

var verbs = map[string]verb{
	"read-holding": {
		usage: "read-holding ADDRESS [COUNT]", minArgs: 1, maxArgs: 2,
		run: func(m *master, w io.Writer, args []uint16) error {
			start, count := rangeArgs(args)
			results, err := m.client.ReadHoldingRegisters(start, count)
			if err != nil {
				return err
			}
			return printRegisters(w, start, results)
		},
	},
	"read-input": {
		usage: "read-input ADDRESS [COUNT]", minArgs: 1, maxArgs: 2,
		run: func(m *master, w io.Writer, args []uint16) error {
			start, count := rangeArgs(args)
			results, err := m.client.ReadInputRegisters(start, count)
			if err != nil {
				return err
			}
			return printRegisters(w, start, results)
		},
	},
	"write-single": {
		usage: "write-single ADDRESS VALUE", minArgs: 2, maxArgs: 2,
		run: func(m *master, w io.Writer, args []uint16) error {
			results, err := m.client.WriteSingleRegister(args[0], args[1])
			if err != nil {
				return err
			}
			return printRegisters(w, args[0], results)
		},
	},
	"write-multiple": {
		usage: "write-multiple ADDRESS VALUE...", minArgs: 2, maxArgs: -1,
		run: func(m *master, w io.Writer, args []uint16) error {
			values := args[1:]
			payload := make([]byte, 0, 2*len(values))
			for _, v := range values {
				payload = binary.BigEndian.AppendUint16(payload, v)
			}
			results, err := m.client.WriteMultipleRegisters(args[0], uint16(len(values)), payload)
			if err != nil {
				return err
			}
			if len(results) != 2 {
				return fmt.Errorf("unexpected response % X", results)
			}
			_, err = fmt.Fprintf(w, "wrote %d registers at 0x%04X\n", binary.BigEndian.Uint16(results), args[0])
			return err
		},
	},
}

func rangeArgs(args []uint16) (start, count uint16) {
	start, count = args[0], 1
	if len(args) > 1 {
		count = args[1]
	}
	return
}

// parseArgs parses decimal or 0x-prefixed 16-bit arguments for name.
func parseArgs(name string, args []string) ([]uint16, error) {
	v, ok := verbs[name]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", name)
	}
	if len(args) < v.minArgs || (v.maxArgs >= 0 && len(args) > v.maxArgs) {
		return nil, fmt.Errorf("usage: %s", v.usage)
	}
	values := make([]uint16, len(args))
	for i, arg := range args {
		n, err := strconv.ParseUint(strings.ReplaceAll(arg, "_", ""), 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", arg, err)
		}
		values[i] = uint16(n)
	}
	return values, nil
}

// execute runs verb name against m.
func execute(m *master, w io.Writer, name string, args []string) error {
	values, err := parseArgs(name, args)
	if err != nil {
		return err
	}
	return verbs[name].run(m, w, values)
}

func printRegisters(w io.Writer, start uint16, results []byte) error {
	for i := 0; i+1 < len(results); i += 2 {
		v := binary.BigEndian.Uint16(results[i:])
		if _, err := fmt.Fprintf(w, "0x%04X: 0x%04X (%d)\n", start+uint16(i/2), v, v); err != nil {
			return err
		}
	}
	return nil
}

// describe turns a modbus exception into a readable error.
func describe(err error) error {
	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return fmt.Errorf("%s: %s", mb.FunctionName(me.FunctionCode), mb.ExceptionText(me.ExceptionCode))
	}
	return err
}

type ReadHoldingCommand struct {
	Args struct {
		Address string
		Count   string `optional:"yes"`
	} `positional-args:"yes" required:"yes"`
}

func (c *ReadHoldingCommand) Execute(args []string) error {
	return runVerb("read-holding", nonEmpty(c.Args.Address, c.Args.Count))
}

type ReadInputCommand struct {
	Args struct {
		Address string
		Count   string `optional:"yes"`
	} `positional-args:"yes" required:"yes"`
}

func (c *ReadInputCommand) Execute(args []string) error {
	return runVerb("read-input", nonEmpty(c.Args.Address, c.Args.Count))
}

type WriteSingleCommand struct {
	Args struct {
		Address string
		Value   string
	} `positional-args:"yes" required:"yes"`
}

func (c *WriteSingleCommand) Execute(args []string) error {
	return runVerb("write-single", []string{c.Args.Address, c.Args.Value})
}

type WriteMultipleCommand struct {
	Args struct {
		Address string
		Values  []string `required:"1"`
	} `positional-args:"yes" required:"yes"`
}

func (c *WriteMultipleCommand) Execute(args []string) error {
	return runVerb("write-multiple", append([]string{c.Args.Address}, c.Args.Values...))
}

func runVerb(name string, args []string) error {
	if _, err := parseArgs(name, args); err != nil {
		return err
	}
	return cli.Connection.run(func(m *master) error {
		return describe(execute(m, os.Stdout, name, args))
	})
}

func nonEmpty(args ...string) []string {
	out := args[:0]
	for _, a := range args {
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}
