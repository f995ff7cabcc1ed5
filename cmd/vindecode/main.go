// Command vindecode decodes a VIN from the command line, prints the vehicle
// attributes and converter estimate, and keeps a local search history.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/vinwizard/engine/domain"
	"github.com/WessleyAI/vinwizard/engine/estimate"
	"github.com/WessleyAI/vinwizard/engine/history"
	"github.com/WessleyAI/vinwizard/engine/lookup"
	"github.com/WessleyAI/vinwizard/engine/view"
	"github.com/WessleyAI/vinwizard/engine/vpic"
	"github.com/WessleyAI/vinwizard/pkg/natsutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	vin        string
	base       string
	historyDir string
	clamp      bool
	asJSON     bool
	list       bool
	pick       int
	timeout    time.Duration
	watch      string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("vindecode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.vin, "vin", "", "VIN to decode")
	fs.StringVar(&o.base, "base", vpic.DefaultBaseURL, "vPIC API base URL")
	fs.StringVar(&o.historyDir, "history-dir", defaultHistoryDir(), "directory holding the search history")
	fs.BoolVar(&o.clamp, "clamp", false, "clamp the model-year factor to [0, 1]")
	fs.BoolVar(&o.asJSON, "json", false, "print JSON instead of a table")
	fs.BoolVar(&o.list, "history", false, "print the search history and exit")
	fs.IntVar(&o.pick, "pick", 0, "decode the n-th history entry again (1 is the most recent)")
	fs.DurationVar(&o.timeout, "timeout", 30*time.Second, "decoder request timeout")
	fs.StringVar(&o.watch, "watch", "", "print lookups announced on this NATS server until interrupted")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.vin == "" && fs.NArg() > 0 {
		o.vin = fs.Arg(0)
	}
	return o, nil
}

func defaultHistoryDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".vinwizard"
	}
	return filepath.Join(dir, "vinwizard")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	o, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}

	if o.watch != "" {
		nc, err := nats.Connect(o.watch, nats.Name("vindecode"))
		if err != nil {
			logger.Error("nats connect", "err", err)
			return 1
		}
		defer nc.Drain()
		return watch(ctx, nc, stdout, stderr, o.asJSON)
	}

	backend, err := history.NewFileBackend(o.historyDir)
	if err != nil {
		logger.Error("open history", "err", err)
		return 1
	}
	store := history.NewStore(backend, history.DefaultKey, logger)
	entries := store.Load(ctx)

	if o.list {
		printHistory(stdout, entries, o.asJSON)
		return 0
	}
	if o.pick > 0 {
		if o.pick > len(entries) {
			logger.Error("no such history entry", "pick", o.pick, "entries", len(entries))
			return 1
		}
		o.vin = store.Select(entries[o.pick-1])
	}

	vin := domain.NormalizeVIN(o.vin)
	if vin == "" {
		fmt.Fprintln(stderr, "usage: vindecode -vin VIN [-json] [-clamp] [-base URL] [-history-dir DIR]")
		return 2
	}
	if err := domain.ValidateVIN(vin); err != nil {
		logger.Warn("VIN looks malformed, decoding anyway", "err", err)
	}

	client := vpic.NewClient(vpic.Config{BaseURL: o.base, Timeout: o.timeout})
	rec, err := client.DecodeRecord(ctx, vin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := store.Record(ctx, domain.NewHistoryEntry(vin, rec)); err != nil {
		logger.Warn("history not saved", "err", err)
	}

	opts := estimate.Options{ClampYearFactor: o.clamp}
	if o.asJSON {
		return printJSON(stdout, stderr, vin, rec, opts)
	}

	sess := view.NewSession()
	sess.Submit(vin)
	sess.Resolve(vin, rec, nil)
	printPage(stdout, view.BuildPage(sess.Snapshot(), nil, opts))
	return 0
}

// watch prints every lookup event until ctx is done.
func watch(ctx context.Context, sub natsutil.MsgSubscriber, stdout, stderr io.Writer, asJSON bool) int {
	var mu sync.Mutex
	_, err := natsutil.Subscribe(sub, lookup.Subject, func(_ context.Context, ev lookup.LookupEvent) {
		mu.Lock()
		defer mu.Unlock()
		if asJSON {
			json.NewEncoder(stdout).Encode(ev)
			return
		}
		fmt.Fprintf(stdout, "%s  %s  %s %s %s\n", ev.DecodedAt.Format(time.RFC3339), ev.VIN, ev.Year, ev.Make, ev.Model)
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	<-ctx.Done()
	return 0
}

type result struct {
	VIN           string                      `json:"vin"`
	Vehicle       domain.VehicleRecord        `json:"vehicle"`
	Estimate      *estimate.ConverterEstimate `json:"estimate"`
	EstimateError *string                     `json:"estimate_error"`
}

func printJSON(stdout, stderr io.Writer, vin string, rec domain.VehicleRecord, opts estimate.Options) int {
	out := result{VIN: vin, Vehicle: rec}
	est, err := estimate.Estimate(estimate.InputFrom(rec), opts)
	var inErr *estimate.InputError
	switch {
	case errors.As(err, &inErr):
		msg := inErr.Error()
		out.EstimateError = &msg
	case err != nil:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	default:
		out.Estimate = &est
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printPage(w io.Writer, p view.Page) {
	fmt.Fprintln(w, p.Title)
	fmt.Fprintln(w, p.Year)
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range p.Rows {
		fmt.Fprintf(tw, "%s\t%s\n", r.Label, r.Value)
	}
	tw.Flush()
	fmt.Fprintln(w)

	if p.Estimate == nil {
		fmt.Fprintln(w, p.Placeholder)
		return
	}
	fmt.Fprintln(w, p.Estimate.Title)
	fmt.Fprintf(tw, "Platinum Content\t%s\n", p.Estimate.Platinum)
	fmt.Fprintf(tw, "Palladium Content\t%s\n", p.Estimate.Palladium)
	fmt.Fprintf(tw, "Rhodium Content\t%s\n", p.Estimate.Rhodium)
	fmt.Fprintf(tw, "Estimated Value\t%s\n", p.Estimate.Value)
	tw.Flush()
	fmt.Fprintln(w)
	fmt.Fprintln(w, p.Estimate.Note)
}

func printHistory(w io.Writer, entries []domain.HistoryEntry, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No recent searches.")
		return
	}
	for i, e := range entries {
		fmt.Fprintf(w, "%2d. %s %s\n", i+1, e.Label(), e.Year)
	}
}
