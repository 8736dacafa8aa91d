package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"snapqr/internal/wsserver"
)

const consoleHelp = `commands:
  full | region | ocr     emit the shortcut trigger event
  outcome <complete|cancel|error>
  drop                    disconnect the control layer
  state                   print applied close behavior and shortcuts
  quit`

// consoleTarget is the slice of the hub the console drives.
type consoleTarget interface {
	DropConnection()
	HasActiveConnection() bool
}

// runConsole reads one command per line until EOF, "quit" or ctx is done.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, sim *wsserver.Simulator, hub consoleTarget) {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, consoleHelp)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch cmd := strings.ToLower(fields[0]); cmd {
		case "quit", "exit":
			return
		case "help", "?":
			fmt.Fprintln(out, consoleHelp)
		case "full", "region", "ocr":
			if !hub.HasActiveConnection() {
				fmt.Fprintln(out, "no control layer connected")
				continue
			}
			if err := sim.Trigger(cmd); err != nil {
				fmt.Fprintln(out, "trigger failed:", err)
				continue
			}
			fmt.Fprintln(out, "triggered", cmd)
		case "outcome":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: outcome <complete|cancel|error>")
				continue
			}
			outcome, err := wsserver.ParseSelectionOutcome(fields[1])
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			sim.SetOutcome(outcome)
			fmt.Fprintln(out, "selections now end with", outcome)
		case "drop":
			hub.DropConnection()
			fmt.Fprintln(out, "connection dropped")
		case "state":
			behavior, shortcuts := sim.State()
			fmt.Fprintf(out, "close=%s fullscreen=%q region=%q ocr=%q\n",
				behavior, shortcuts.Fullscreen, shortcuts.Region, shortcuts.OCR)
		default:
			fmt.Fprintf(out, "unknown command %q\n", cmd)
		}
	}
}
