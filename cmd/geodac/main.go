package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/creator4ever-bot/geodac/internal/api"
	"github.com/creator4ever-bot/geodac/internal/auth"
	"github.com/creator4ever-bot/geodac/internal/config"
	"github.com/creator4ever-bot/geodac/internal/dedup"
	"github.com/creator4ever-bot/geodac/internal/emit"
	"github.com/creator4ever-bot/geodac/internal/ephemeris"
	"github.com/creator4ever-bot/geodac/internal/health"
	"github.com/creator4ever-bot/geodac/internal/httputil"
	"github.com/creator4ever-bot/geodac/internal/natal"
	"github.com/creator4ever-bot/geodac/internal/store"
	"github.com/creator4ever-bot/geodac/internal/telemetry"
	"github.com/creator4ever-bot/geodac/internal/transit"
)

const usage = `usage: geodac <command> [flags]

commands:
  run     scan once and write, deliver or store the records
  serve   serve scans over HTTP
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// run may write records to stdout, so its logs go to stderr.
	logOut := os.Stdout
	if os.Args[1] == "run" {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(ctx, os.Args[2:], logger)
	case "serve":
		err = serveCmd(ctx, os.Args[2:], logger)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("geodac failed", "command", os.Args[1], "error", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig layers the YAML file, GEODAC_* variables and flags.
func loadConfig(name string, args []string, logger *slog.Logger) (*config.Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", os.Getenv("GEODAC_CONFIG"), "YAML config file")
	flags := config.NewFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &config.Config{}
	if *path != "" {
		loaded, err := config.Load(*path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.LoadFromEnv(logger)
	flags.Apply(cfg)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newOracle(cfg config.EphemerisConfig, logger *slog.Logger) ephemeris.Oracle {
	var inner ephemeris.Oracle
	if cfg.Source == "remote" {
		inner = ephemeris.NewRemote(cfg.URL, cfg.Timeout, cfg.MaxElapsed, logger)
	} else {
		b := ephemeris.NewBuiltin()
		b.Geocentric = cfg.Geocentric
		inner = b
	}
	return ephemeris.NewCached(inner, cfg.CacheSize, cfg.CacheTTL)
}

func newDeduper(ctx context.Context, cfg config.DedupConfig, logger *slog.Logger) (dedup.Deduper, func(), error) {
	switch cfg.Backend {
	case "redis":
		r, err := dedup.NewRedis(ctx, cfg.RedisAddr, cfg.Prefix, cfg.TTL, logger)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { r.Close() }, nil
	case "memory":
		return dedup.NewMemory(), func() {}, nil
	default:
		return dedup.None{}, func() {}, nil
	}
}

func startTelemetry(ctx context.Context, cfg config.TelemetryConfig, logger *slog.Logger) func() {
	shutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.OTELService, cfg.OTELInsecure)
	if err != nil {
		logger.Warn("tracing disabled", "endpoint", cfg.OTELEndpoint, "error", err)
		return func() {}
	}
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("tracer shutdown", "error", err)
		}
	}
}

func runCmd(ctx context.Context, args []string, logger *slog.Logger) error {
	cfg, err := loadConfig("run", args, logger)
	if err != nil {
		return err
	}
	defer startTelemetry(ctx, cfg.Telemetry, logger)()

	ctx, span := otel.Tracer("github.com/creator4ever-bot/geodac/cmd/geodac").Start(ctx, "geodac.run")
	defer span.End()

	frame, err := natal.LoadFile(cfg.Natal)
	if err != nil {
		return err
	}
	zone := cfg.Zone(frame.Zone())
	sc, err := cfg.ScanConfig(zone, time.Now())
	if err != nil {
		return err
	}

	scanner := transit.NewScanner(newOracle(cfg.Ephemeris, logger), logger)
	res, err := scanner.Scan(ctx, frame, sc)
	if err != nil {
		return err
	}
	records := transit.ToRecords(res, zone)
	logger.Info("run complete",
		"style", res.Style,
		"records", len(records),
		"diagnostics", len(res.Diagnostics),
		"samples", res.Samples,
		"failures", res.Failures,
		"trace_id", telemetry.TraceID(ctx),
	)

	if err := emit.WriteFile(cfg.Output.Path, cfg.Output.Format, records); err != nil {
		return err
	}

	if cfg.Output.Ingest != "" {
		d, closeDedup, err := newDeduper(ctx, cfg.Dedup, logger)
		if err != nil {
			return err
		}
		defer closeDedup()

		spool := emit.NewSpool(cfg.Output.SpoolDir, cfg.Output.SpoolMax)
		ingest := emit.NewIngest(emit.IngestConfig{
			URL:      cfg.Output.Ingest,
			RPS:      cfg.Output.IngestRPS,
			BatchMax: cfg.Output.BatchMax,
		}, spool, logger)
		if n, err := ingest.Drain(ctx); err != nil {
			logger.Warn("spool drain stopped", "sent", n, "error", err)
		} else if n > 0 {
			logger.Info("spool drained", "batches", n)
		}

		fresh := dedup.Filter(ctx, d, records)
		logger.Info("delivering records", "fresh", len(fresh), "skipped", len(records)-len(fresh))
		if err := ingest.Emit(ctx, res.Style, fresh); err != nil {
			return err
		}
	}

	if cfg.Store.PostgresDSN != "" {
		pg, err := store.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Upsert(ctx, records); err != nil {
			return err
		}
		logger.Info("records stored", "count", len(records))
	}
	return nil
}

func serveCmd(ctx context.Context, args []string, logger *slog.Logger) error {
	cfg, err := loadConfig("serve", args, logger)
	if err != nil {
		return err
	}
	defer startTelemetry(ctx, cfg.Telemetry, logger)()

	frames := natal.NewStore()
	frame, err := natal.LoadFile(cfg.Natal)
	if err != nil {
		return err
	}
	frames.Set(frame)
	logger.Info("natal frame loaded", "name", frame.Name, "source", frame.Source)

	ready := health.NewReadiness(2 * time.Second)
	ready.Add("natal", func(context.Context) error {
		if frames.Get() == nil {
			return errors.New("no natal frame loaded")
		}
		return nil
	})
	if cfg.Store.PostgresDSN != "" {
		pg, err := store.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		ready.Add("postgres", pg.Ping)
	}

	authCfg := auth.Config{Token: cfg.Server.AuthToken}
	if authCfg.Enabled() {
		logger.Info("auth enabled")
	}

	srv := api.NewServer(cfg.Server.Addr, logger, authCfg, api.Deps{
		Frames:    frames,
		Scanner:   transit.NewScanner(newOracle(cfg.Ephemeris, logger), logger),
		Defaults:  *cfg,
		Readiness: ready,
		Limiter:   httputil.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, 4096, 10*time.Minute, false),
	})

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr, "auth_enabled", authCfg.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
