// Command capture-sim runs a stand-in capture service for snapqr. It answers
// every command the control layer sends and emits the asynchronous selection
// and shortcut events, so the desktop app can be exercised without the real
// capture engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"snapqr/internal/config"
	"snapqr/internal/wsserver"
)

type options struct {
	addr      string
	pipe      string
	codes     string
	ocrText   string
	delay     time.Duration
	outcome   string
	errMsg    string
	logLevel  string
	noConsole bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("capture-sim", flag.ContinueOnError)
	fs.StringVar(&opts.addr, "addr", "127.0.0.1:7878", "TCP listen address")
	fs.StringVar(&opts.pipe, "pipe", "", "named pipe (Windows) or unix socket path; overrides -addr")
	fs.StringVar(&opts.codes, "codes", "https://example.com,hello snapqr", "comma-separated decoded contents returned by scans")
	fs.StringVar(&opts.ocrText, "ocr-text", "Sample recognized text", "text returned by OCR selections")
	fs.DurationVar(&opts.delay, "delay", 800*time.Millisecond, "time a region selection takes before it ends")
	fs.StringVar(&opts.outcome, "outcome", "complete", "how selections end: complete, cancel or error")
	fs.StringVar(&opts.errMsg, "error-message", "", "message carried by region_scan_error")
	fs.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.BoolVar(&opts.noConsole, "no-console", false, "do not read commands from stdin")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func splitCodes(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "capture-sim:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	level, err := config.ParseLogLevel(opts.logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	outcome, err := wsserver.ParseSelectionOutcome(opts.outcome)
	if err != nil {
		return err
	}

	sim := wsserver.NewSimulator(wsserver.SimulatorOptions{
		Contents:       splitCodes(opts.codes),
		OCRText:        opts.ocrText,
		SelectionDelay: opts.delay,
		Outcome:        outcome,
		ErrorMessage:   opts.errMsg,
	})

	hubOpts := wsserver.HubOptions{Addr: opts.addr, Handler: sim}
	if opts.pipe != "" {
		var ln net.Listener
		ln, err = listenPipe(opts.pipe)
		if err != nil {
			return fmt.Errorf("listen %s: %w", opts.pipe, err)
		}
		hubOpts.Listener = ln
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := wsserver.NewHub(hubOpts)
	if err := hub.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if stopErr := hub.Stop(); stopErr != nil {
			slog.Warn("[WARN-SIM] hub stop failed", "error", stopErr)
		}
		sim.Wait()
	}()
	sim.Attach(hub)

	slog.Info("[DEBUG-SIM] capture service simulator ready", "url", hub.URL(), "pipe", opts.pipe)

	if !opts.noConsole {
		go func() {
			runConsole(ctx, os.Stdin, os.Stdout, sim, hub)
			stop()
		}()
	}
	<-ctx.Done()
	slog.Info("[DEBUG-SIM] shutting down")
	return nil
}
