// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"
)

type ShellCommand struct{}

func (c *ShellCommand) Execute(args []string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("slave 0x%02X> ", cli.Connection.Slave),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	return cli.Connection.run(func(m *master) error {
		shell(m, rl)
		return nil
	})
}

func completer() *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
	}
	for _, name := range verbNames() {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

func verbNames() []string {
	names := make([]string, 0, len(verbs))
	for name := range verbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func shell(m *master, rl *readline.Instance) {
	printHelp(rl.Stdout())

	for {
		line, err := rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			return
		}
		if !dispatch(m, rl.Stdout(), line) {
			return
		}
	}
}

// dispatch runs one shell line and reports whether the session continues.
func dispatch(m *master, w io.Writer, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	switch cmd {
	case "help", "?":
		printHelp(w)
	case "exit", "quit", "q":
		return false
	default:
		if err := describe(execute(m, w, cmd, parts[1:])); err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
	}
	return true
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	for _, name := range verbNames() {
		fmt.Fprintf(w, "  %s\n", verbs[name].usage)
	}
	fmt.Fprintln(w, "  help")
	fmt.Fprintln(w, "  exit")
	fmt.Fprintln(w, "Numbers are decimal or 0x-prefixed hex.")
}
