package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/creator4ever-bot/geodac/internal/config"
	"github.com/creator4ever-bot/geodac/internal/ephemeris"
	"github.com/creator4ever-bot/geodac/internal/natal"
	"github.com/creator4ever-bot/geodac/internal/transit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	fs := flag.NewFlagSet("diag", flag.ExitOnError)
	path := fs.String("config", os.Getenv("GEODAC_CONFIG"), "YAML config file")
	flags := config.NewFlags(fs)
	fs.Parse(os.Args[1:])

	cfg := &config.Config{}
	if *path != "" {
		loaded, err := config.Load(*path)
		if err != nil {
			fmt.Println("ERROR loading config:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.LoadFromEnv(logger)
	flags.Apply(cfg)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}

	frame, err := natal.LoadFile(cfg.Natal)
	if err != nil {
		fmt.Println("ERROR reading natal frame:", err)
		os.Exit(1)
	}
	zone := cfg.Zone(frame.Zone())
	sc, err := cfg.ScanConfig(zone, time.Now())
	if err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}

	oracle := ephemeris.NewCached(ephemeris.NewBuiltin(), cfg.Ephemeris.CacheSize, cfg.Ephemeris.CacheTTL)
	if cfg.Ephemeris.Source == "remote" {
		oracle = ephemeris.NewCached(ephemeris.NewRemote(cfg.Ephemeris.URL, cfg.Ephemeris.Timeout, cfg.Ephemeris.MaxElapsed, logger), cfg.Ephemeris.CacheSize, cfg.Ephemeris.CacheTTL)
	}
	scanner := transit.NewScanner(oracle, logger)

	ctx := context.Background()
	start := time.Now()
	res, err := scanner.Scan(ctx, frame, sc)
	if err != nil {
		fmt.Println("ERROR scanning:", err)
		os.Exit(1)
	}
	fmt.Printf("Frame %q, style %s, %s .. %s\n", frame.Name, res.Style,
		res.From.In(zone).Format("2006-01-02 15:04"), res.To.In(zone).Format("2006-01-02 15:04"))
	fmt.Printf("Scanned %d samples (%d failed) in %v: %d events, %d diagnostics\n",
		res.Samples, res.Failures, time.Since(start).Round(time.Millisecond), len(res.Events), len(res.Diagnostics))

	rows, err := scanner.Coverage(ctx, frame, sc, res.Events)
	if err != nil {
		fmt.Println("ERROR computing coverage:", err)
		os.Exit(1)
	}

	missing := 0
	for _, r := range rows {
		mark := ""
		switch {
		case r.Missing():
			mark = "MISSING"
			missing++
		case r.WithinOrb:
			mark = "ok"
		}
		fmt.Printf("  %-8s %s %-8s min=%6.3f° orb=%.1f° at %s %s\n",
			r.Transit, r.Aspect, r.Target, r.MinSep, r.Orb, r.At.In(zone).Format("2006-01-02 15:04"), mark)
	}
	for _, d := range res.Diagnostics {
		fmt.Printf("  diag %-8s %s %s: %s\n", d.Transit, d.Reason, d.Target, d.Detail)
	}

	fmt.Printf("\nSummary: %d rows, %d missing\n", len(rows), missing)
	if missing > 0 {
		os.Exit(3)
	}
}
