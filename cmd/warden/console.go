package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/chazu/warden/isolate"
)

const prompt = "\033[32mwarden>\033[0m "

// console is an interactive loop for poking the heap by hand: register
// the shared cell, mutate it, open yield windows and watch a background
// worker compete for the token.
func console(iso *isolate.Isolate) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       ".warden-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer l.Close()
	l.CaptureExitSignal()

	fmt.Println("warden console; type 'help' for commands")
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			return nil
		}
		if err := runCommand(iso, args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func runCommand(iso *isolate.Isolate, args []string) error {
	switch args[0] {
	case "help":
		fmt.Print(`commands:
  setup [initial]      register the shared cell (default initial 0)
  start [period]       spawn a background mutator (e.g. start 250ms)
  mutate               apply one owner increment
  value                read the shared field
  yield <window>       open a yield window (e.g. yield 200ms)
  stats                tick and heap counters
  snapshot <file>      write a CBOR heap snapshot
  exit                 quit
`)
		return nil

	case "setup":
		initial := 0.0
		if len(args) > 1 {
			v, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("bad initial value %q: %w", args[1], err)
			}
			initial = v
		}
		c, err := iso.Alloc(map[string]float64{iso.Field(): initial})
		if err != nil {
			return err
		}
		if err := iso.Setup(c); err != nil {
			return err
		}
		fmt.Printf("shared cell %d registered (%s = %v)\n", c.ID(), iso.Field(), initial)
		return nil

	case "start":
		var opts []isolate.MutatorOption
		if len(args) > 1 {
			d, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("bad period %q: %w", args[1], err)
			}
			opts = append(opts, isolate.MutatorPeriod(d))
		}
		m, err := iso.StartMutator(opts...)
		if err != nil {
			return err
		}
		fmt.Printf("worker started: +%v every %v (starved until you yield)\n", m.Step(), m.Period())
		return nil

	case "mutate":
		v, err := iso.Mutate()
		if err != nil {
			return err
		}
		fmt.Printf("%s = %v\n", iso.Field(), v)
		return nil

	case "value":
		v, err := iso.Value()
		if err != nil {
			return err
		}
		fmt.Printf("%s = %v\n", iso.Field(), v)
		return nil

	case "yield":
		if len(args) < 2 {
			return fmt.Errorf("usage: yield <window>")
		}
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("bad window %q: %w", args[1], err)
		}
		if err := iso.LetWorkerWork(d); err != nil {
			return err
		}
		fmt.Printf("yielded for %v\n", d)
		return nil

	case "stats":
		fmt.Printf("ticks=%d cells=%d pinned=%d\n",
			iso.Ticks(), iso.Heap().CellCount(), iso.Heap().KeepAliveCount())
		return nil

	case "snapshot":
		if len(args) < 2 {
			return fmt.Errorf("usage: snapshot <file>")
		}
		snap, err := iso.Snapshot()
		if err != nil {
			return err
		}
		data, err := isolate.MarshalSnapshot(snap)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[1], data, 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %d bytes (%d cells, %d mutations)\n", len(data), len(snap.Cells), snap.Mutations)
		return nil

	default:
		return fmt.Errorf("unknown command %q; type 'help'", args[0])
	}
}
