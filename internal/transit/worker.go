package transit

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/creator4ever-bot/geodac/internal/body"
	"github.com/creator4ever-bot/geodac/internal/ephemeris"
)

// Sample is one ephemeris reading of a moving body.
type Sample struct {
	Time time.Time
	Lon  float64
}

// sampleJob is a unit of work for the worker pool.
type sampleJob struct {
	idx int
	t   time.Time
}

// sampleResult is the output of a single ephemeris lookup.
type sampleResult struct {
	idx    int
	sample Sample
	err    error
}

// WorkerPool evaluates an ephemeris over many instants with a fixed number
// of goroutines.
type WorkerPool struct {
	oracle  ephemeris.Oracle
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(oracle ephemeris.Oracle, workers int, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		oracle:  oracle,
		workers: workers,
		logger:  logger,
	}
}

// SampleGrid reads b at every instant of times. Samples come back in time
// order; failed instants are logged and left out. It also returns the
// success and error counts.
func (wp *WorkerPool) SampleGrid(ctx context.Context, b body.Body, times []time.Time, loc ephemeris.Location) ([]Sample, int, int) {
	if len(times) == 0 {
		return nil, 0, 0
	}

	jobs := make(chan sampleJob, wp.workers*2)
	results := make(chan sampleResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				lon, err := wp.oracle.Longitude(ctx, b, job.t, loc)
				result := sampleResult{idx: job.idx, sample: Sample{Time: job.t, Lon: lon}, err: err}
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, t := range times {
			select {
			case jobs <- sampleJob{idx: i, t: t}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]sampleResult, 0, len(times))
	var successCount, errorCount int
	for result := range results {
		if result.err != nil {
			errorCount++
			wp.logger.Warn("ephemeris sample failed",
				"body", b.String(),
				"time", result.sample.Time,
				"error", result.err,
			)
			continue
		}
		successCount++
		collected = append(collected, result)
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })
	samples := make([]Sample, len(collected))
	for i, r := range collected {
		samples[i] = r.sample
	}
	return samples, successCount, errorCount
}

// Grid returns the sample instants from..to inclusive at step.
func Grid(from, to time.Time, step time.Duration) []time.Time {
	if step <= 0 || to.Before(from) {
		return nil
	}
	times := make([]time.Time, 0, int(to.Sub(from)/step)+1)
	for t := from; !t.After(to); t = t.Add(step) {
		times = append(times, t)
	}
	return times
}
