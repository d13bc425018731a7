// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Command modbus-master talks to a modbus node as its bus master and inspects
// the files a node leaves behind.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

type CLICommand struct {
	Connection    Connection           `group:"Connection Options"`
	ReadHolding   ReadHoldingCommand   `command:"read-holding" alias:"rh" description:"Read holding registers"`
	ReadInput     ReadInputCommand     `command:"read-input" alias:"ri" description:"Read input registers"`
	WriteSingle   WriteSingleCommand   `command:"write-single" alias:"ws" description:"Write a single holding register"`
	WriteMultiple WriteMultipleCommand `command:"write-multiple" alias:"wm" description:"Write consecutive holding registers"`
	Shell         ShellCommand         `command:"shell" description:"Interactive session with the node"`
	Trace         TraceCommand         `command:"trace" description:"Print a frame trace file"`
	Mirror        MirrorCommand        `command:"mirror" description:"Print a register mirror file"`
	Layout        LayoutCommand        `command:"layout" description:"Print the default register layout"`
}

var cli CLICommand

func main() {
	parser := flags.NewParser(&cli, flags.HelpFlag|flags.PassDoubleDash)

	_, err := parser.Parse()

	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
