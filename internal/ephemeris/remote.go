package ephemeris

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/creator4ever-bot/geodac/internal/body"
)

// maxResponseBytes bounds a single oracle response.
const maxResponseBytes = 64 << 10

// Consecutive failed lookups before the service is treated as down, and
// how long lookups then fail without a request.
const (
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
)

// ErrUnavailable is returned without contacting the service while it is
// considered down.
var ErrUnavailable = errors.New("remote ephemeris unavailable")

// Remote queries an HTTP ephemeris service, typically a sidecar wrapping a
// high-precision library. The service answers
//
//	GET {base}/v1/longitude?body=Moon&jd=2460000.5&lat=55.75&lon=37.62
//
// with {"longitude": 123.456}. 5xx responses and transport errors are
// retried with exponential backoff for at most maxElapsed per lookup; 4xx
// responses fail immediately. After breakerThreshold lookups in a row
// fail, further lookups return ErrUnavailable for breakerCooldown.
type Remote struct {
	baseURL    string
	httpClient *http.Client
	maxElapsed time.Duration
	breaker    *breaker
	logger     *slog.Logger
}

// NewRemote creates a Remote oracle for baseURL.
func NewRemote(baseURL string, timeout, maxElapsed time.Duration, logger *slog.Logger) *Remote {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxElapsed <= 0 {
		maxElapsed = 5 * time.Second
	}
	return &Remote{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxElapsed: maxElapsed,
		breaker:    newBreaker(breakerThreshold, breakerCooldown),
		logger:     logger,
	}
}

type remoteResponse struct {
	Longitude *float64 `json:"longitude"`
	Error     string   `json:"error,omitempty"`
}

// Longitude implements Oracle.
func (r *Remote) Longitude(ctx context.Context, b body.Body, t time.Time, loc Location) (float64, error) {
	if !r.breaker.allow() {
		return 0, fmt.Errorf("remote ephemeris %s: %w", b, ErrUnavailable)
	}

	q := url.Values{}
	q.Set("body", b.String())
	q.Set("jd", strconv.FormatFloat(JulianDate(t), 'f', 8, 64))
	q.Set("lat", strconv.FormatFloat(loc.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(loc.Lon, 'f', 6, 64))
	endpoint := r.baseURL + "/v1/longitude?" + q.Encode()

	var lon float64
	op := func() error {
		v, err := r.fetch(ctx, endpoint)
		if err != nil {
			return err
		}
		lon = v
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = r.maxElapsed
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("ephemeris request failed, retrying", "body", b.String(), "error", err, "wait", wait)
	}
	err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
	switch {
	case ctx.Err() != nil:
		return 0, fmt.Errorf("remote ephemeris %s: %w", b, ctx.Err())
	case err == nil || errors.Is(err, ErrUnsupportedBody):
		r.breaker.record(true)
	default:
		r.breaker.record(false)
	}
	if err != nil {
		return 0, fmt.Errorf("remote ephemeris %s: %w", b, err)
	}
	return lon, nil
}

func (r *Remote) fetch(ctx context.Context, endpoint string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching longitude: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return 0, fmt.Errorf("reading response body: %w", err)
	}
	if len(data) > maxResponseBytes {
		return 0, backoff.Permanent(fmt.Errorf("response exceeds %d byte limit", maxResponseBytes))
	}

	if resp.StatusCode >= 500 {
		return 0, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	var out remoteResponse
	decodeErr := json.Unmarshal(data, &out)
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity {
			return 0, backoff.Permanent(fmt.Errorf("%w: %s", ErrUnsupportedBody, out.Error))
		}
		return 0, backoff.Permanent(fmt.Errorf("unexpected status code %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return 0, backoff.Permanent(fmt.Errorf("decoding response: %w", decodeErr))
	}
	if out.Longitude == nil || math.IsNaN(*out.Longitude) {
		return 0, backoff.Permanent(fmt.Errorf("response has no longitude"))
	}
	return norm(*out.Longitude), nil
}
