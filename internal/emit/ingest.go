package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/creator4ever-bot/geodac/internal/metrics"
	"github.com/creator4ever-bot/geodac/internal/transit"
)

// Batch is the webhook payload.
type Batch struct {
	Style   string           `json:"style"`
	SentAt  time.Time        `json:"sent_at"`
	Records []transit.Record `json:"records"`
}

// IngestConfig tunes webhook delivery.
type IngestConfig struct {
	URL        string
	RPS        float64
	BatchMax   int
	Timeout    time.Duration
	MaxElapsed time.Duration
}

// Ingest posts record batches to a webhook. Batches that still fail after
// retrying are written to the spool for a later Drain.
type Ingest struct {
	cfg     IngestConfig
	client  *http.Client
	limiter *rate.Limiter
	spool   *Spool
	logger  *slog.Logger
	now     func() time.Time
}

// NewIngest creates an Ingest for cfg.URL. A nil spool drops failed batches.
func NewIngest(cfg IngestConfig, spool *Spool, logger *slog.Logger) *Ingest {
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = 30 * time.Second
	}
	return &Ingest{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		spool:   spool,
		logger:  logger,
		now:     time.Now,
	}
}

// Emit posts records in batches of at most BatchMax. Batches that fail, and
// every batch not yet sent when ctx is cancelled, go to the spool. It returns
// ctx.Err() on cancellation, or an error when a batch could not be spooled.
func (in *Ingest) Emit(ctx context.Context, style string, records []transit.Record) error {
	var batches []Batch
	for start := 0; start < len(records); start += in.cfg.BatchMax {
		end := start + in.cfg.BatchMax
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, Batch{Style: style, SentAt: in.now().UTC(), Records: records[start:end]})
	}

	for i, b := range batches {
		err := in.post(ctx, b)
		if err == nil {
			metrics.AddEmitted("ingest", "ok", len(b.Records))
			continue
		}
		if ctx.Err() != nil {
			in.logger.Warn("ingest cancelled, spooling unsent batches", "batches", len(batches)-i)
			for j, rest := range batches[i:] {
				if serr := in.spoolBatch(rest, j); serr != nil {
					return errors.Join(ctx.Err(), serr)
				}
			}
			return ctx.Err()
		}

		in.logger.Warn("ingest failed, spooling", "records", len(b.Records), "error", err)
		if serr := in.spoolBatch(b, 0); serr != nil {
			return fmt.Errorf("spooling failed batch: %w", errors.Join(err, serr))
		}
	}
	return nil
}

// spoolBatch writes b to the spool. seq keeps file names distinct when
// several batches are spooled at once.
func (in *Ingest) spoolBatch(b Batch, seq int) error {
	if in.spool == nil {
		metrics.AddEmitted("ingest", "dropped", len(b.Records))
		return nil
	}
	if err := in.spool.Write(b, in.now().Add(time.Duration(seq))); err != nil {
		metrics.AddEmitted("ingest", "dropped", len(b.Records))
		return err
	}
	metrics.AddEmitted("ingest", "spooled", len(b.Records))
	return nil
}

// Drain replays spooled batches oldest first and removes each one that is
// delivered. It stops at the first failure and returns how many batches
// went out.
func (in *Ingest) Drain(ctx context.Context) (int, error) {
	if in.spool == nil {
		return 0, nil
	}
	files, err := in.spool.Pending()
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, f := range files {
		b, err := in.spool.Load(f)
		if err != nil {
			in.logger.Warn("dropping unreadable spool file", "file", f.Name, "error", err)
			if rerr := in.spool.Remove(f); rerr != nil {
				return sent, rerr
			}
			continue
		}
		if err := in.post(ctx, b); err != nil {
			return sent, fmt.Errorf("replaying %s: %w", f.Name, err)
		}
		if err := in.spool.Remove(f); err != nil {
			return sent, err
		}
		metrics.AddEmitted("ingest", "replayed", len(b.Records))
		sent++
	}
	if sent > 0 {
		in.logger.Info("spool drained", "batches", sent)
	}
	return sent, nil
}

func (in *Ingest) post(ctx context.Context, b Batch) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}

	op := func() error {
		if err := in.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, in.cfg.URL, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := in.client.Do(req)
		if err != nil {
			return fmt.Errorf("posting batch: %w", err)
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("bad status: %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("bad status: %d", resp.StatusCode))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = in.cfg.MaxElapsed
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
