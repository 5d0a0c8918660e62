// Warden CLI - the main entry point for running a warden heap.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dc0d/onexit"
	"github.com/tliron/commonlog"

	"github.com/chazu/warden/isolate"
	"github.com/chazu/warden/manifest"
	"github.com/chazu/warden/server"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("warden")

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	interactive := flag.Bool("i", false, "Start interactive console")
	serveMode := flag.Bool("serve", false, "Start the inspection server (HTTP JSON + websocket)")
	listen := flag.String("listen", "", "Listen address (overrides warden.toml)")
	configDir := flag.String("config", "", "Directory containing warden.toml (default: walk up from cwd)")
	runFor := flag.Duration("run-for", 5*time.Second, "How long the demo loop runs without -i or --serve")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: warden [options]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a single-owner heap with a background mutator.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  warden                 # Run the yield-window demo for 5s\n")
		fmt.Fprintf(os.Stderr, "  warden -i              # Interactive console\n")
		fmt.Fprintf(os.Stderr, "  warden --serve         # Inspection server on the configured address\n")
		fmt.Fprintf(os.Stderr, "  warden --serve --listen :8080\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	m, err := loadManifest(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	isolate.SetLockChecking(m.Isolate.CheckLocks)

	iso := isolate.New(
		isolate.WithField(m.Mutator.Field),
		isolate.WithStep(m.Mutator.Step),
		isolate.WithMutatorPeriod(m.Mutator.Period.Std()),
		isolate.WithYieldPolicy(isolate.YieldPolicy{
			Every:  m.Isolate.YieldEvery.Std(),
			Window: m.Isolate.YieldWindow.Std(),
		}),
	)
	onexit.Register(func() { teardown(iso) })
	defer teardown(iso)

	switch {
	case *serveMode:
		addr := m.Server.Listen
		if *listen != "" {
			addr = *listen
		}
		if err := serve(iso, m, addr); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	case *interactive:
		if err := console(iso); err != nil {
			fmt.Fprintf(os.Stderr, "Console error: %v\n", err)
			os.Exit(1)
		}
	default:
		if err := demo(iso, *runFor); err != nil {
			fmt.Fprintf(os.Stderr, "Demo error: %v\n", err)
			os.Exit(1)
		}
	}
}

func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return manifest.Default(), nil
	}
	log.Infof("loaded configuration from %s", m.Dir)
	return m, nil
}

func teardown(iso *isolate.Isolate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := iso.Close(ctx); err != nil && err != isolate.ErrClosed {
		log.Errorf("teardown: %v", err)
	}
}

// serve registers the shared cell, spawns the background mutator and
// blocks serving HTTP.
func serve(iso *isolate.Isolate, m *manifest.Manifest, addr string) error {
	c, err := iso.Alloc(map[string]float64{iso.Field(): 0})
	if err != nil {
		return err
	}
	if _, err := iso.Start(c); err != nil {
		return err
	}

	srv := server.New(iso, server.WithHandleTTL(m.Server.HandleTTL.Std(), m.Server.SweepEvery.Std()))
	defer srv.Close()
	return srv.ListenAndServe(addr)
}

// demo reproduces the yield-window protocol: a background mutator ticks
// against the shared cell, and the owner prints the value once a second
// while opening a 200ms window each time.
func demo(iso *isolate.Isolate, runFor time.Duration) error {
	c, err := iso.Alloc(map[string]float64{iso.Field(): 0})
	if err != nil {
		return err
	}
	mut, err := iso.Start(c)
	if err != nil {
		return err
	}
	fmt.Printf("shared cell %d: field %q += %v every %v (worker runs only in yield windows)\n",
		c.ID(), iso.Field(), mut.Step(), mut.Period())

	deadline := time.Now().Add(runFor)
	for time.Now().Before(deadline) {
		if err := iso.LetWorkerWork(200 * time.Millisecond); err != nil {
			return err
		}
		v, err := iso.Value()
		if err != nil {
			return err
		}
		fmt.Printf("%s = %v (worker ticks: %d)\n", iso.Field(), v, mut.Ticks())
		time.Sleep(800 * time.Millisecond)
	}
	return nil
}
