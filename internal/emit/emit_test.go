package emit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creator4ever-bot/geodac/internal/transit"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func testRecords(n int) []transit.Record {
	tr, nat := 4, 1
	out := make([]transit.Record, n)
	for i := range out {
		out[i] = transit.Record{
			ID:         transit.RecordID("test", "Moon", "Sun", "□", "2024-01-01 02:00", strings.Repeat("x", i)),
			Style:      "test",
			Kind:       transit.KindAspect,
			Transit:    "Moon",
			Target:     "Sun",
			Aspect:     "□",
			AspectDeg:  90,
			Start:      "2024-01-01 02:00",
			Peak:       "2024-01-01 04:00",
			End:        "2024-01-01 06:05",
			Houses:     &transit.Houses{Tr: &tr, Nat: &nat},
			Signs:      transit.Signs{Tr: "CANCER", Nat: "ARIES"},
			OrbPeakDeg: 0.042,
		}
	}
	return out
}

func TestWriteFormats(t *testing.T) {
	records := testRecords(2)

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatJSON, records); err != nil {
			t.Fatalf("Write: %v", err)
		}
		var got []transit.Record
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not a JSON array: %v", err)
		}
		if len(got) != 2 || got[0].Aspect != "□" {
			t.Errorf("got %+v", got)
		}
		if !strings.Contains(buf.String(), "□") {
			t.Error("symbols should not be escaped")
		}
	})

	t.Run("json empty", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatJSON, nil); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if strings.TrimSpace(buf.String()) != "[]" {
			t.Errorf("got %q, want []", buf.String())
		}
	})

	t.Run("jsonl", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatJSONL, records); err != nil {
			t.Fatalf("Write: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 2 {
			t.Fatalf("got %d lines, want 2", len(lines))
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatCSV, records); err != nil {
			t.Fatalf("Write: %v", err)
		}
		rows, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if len(rows) != 3 || rows[0][0] != "id" {
			t.Fatalf("rows = %v", rows)
		}
		if rows[1][10] != "4" || rows[1][11] != "1" || rows[1][14] != "0.042" {
			t.Errorf("row = %v", rows[1])
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := Write(io.Discard, "ics", records); !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("err = %v, want ErrUnknownFormat", err)
		}
	})
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "transits.jsonl")
	if err := WriteFile(path, FormatJSONL, testRecords(3)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "\n"); n != 3 {
		t.Errorf("got %d lines, want 3", n)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestSpoolPrunesOldest(t *testing.T) {
	s := NewSpool(t.TempDir(), 2)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		b := Batch{Style: "s", Records: testRecords(i + 1)}
		if err := s.Write(b, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	files, err := s.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if !files[0].At.Equal(base.Add(time.Second)) {
		t.Errorf("oldest kept file at %v, want %v", files[0].At, base.Add(time.Second))
	}

	b, err := s.Load(files[1])
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(b.Records) != 3 {
		t.Errorf("loaded %d records, want 3", len(b.Records))
	}
	if err := s.Remove(files[1]); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if files, _ := s.Pending(); len(files) != 1 {
		t.Errorf("got %d files after remove, want 1", len(files))
	}
}

func TestSpoolMissingDir(t *testing.T) {
	s := NewSpool(filepath.Join(t.TempDir(), "nope"), 5)
	files, err := s.Pending()
	if err != nil || len(files) != 0 {
		t.Errorf("Pending = %v, %v; want empty", files, err)
	}
}

func newTestIngest(url string, spool *Spool) *Ingest {
	in := NewIngest(IngestConfig{URL: url, RPS: 1000, BatchMax: 2, MaxElapsed: 2 * time.Second}, spool, testLogger)
	var tick atomic.Int64
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in.now = func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Millisecond)
	}
	return in
}

func TestIngestBatchesAndRetries(t *testing.T) {
	var calls, received atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var b Batch
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received.Add(int64(len(b.Records)))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	spool := NewSpool(t.TempDir(), 5)
	in := newTestIngest(ts.URL, spool)
	if err := in.Emit(context.Background(), "test", testRecords(5)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if received.Load() != 5 {
		t.Errorf("received %d records, want 5", received.Load())
	}
	if calls.Load() != 4 {
		t.Errorf("got %d calls, want 3 batches plus one retry", calls.Load())
	}
	if files, _ := spool.Pending(); len(files) != 0 {
		t.Errorf("spooled %d batches, want none", len(files))
	}
}

func TestIngestSpoolsAndDrains(t *testing.T) {
	var accept atomic.Bool
	var received atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !accept.Load() {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var b Batch
		json.NewDecoder(r.Body).Decode(&b)
		received.Add(int64(len(b.Records)))
	}))
	defer ts.Close()

	spool := NewSpool(t.TempDir(), 5)
	in := newTestIngest(ts.URL, spool)
	if err := in.Emit(context.Background(), "test", testRecords(3)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	files, _ := spool.Pending()
	if len(files) != 2 {
		t.Fatalf("spooled %d batches, want 2", len(files))
	}

	accept.Store(true)
	sent, err := in.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if sent != 2 || received.Load() != 3 {
		t.Errorf("sent = %d, received = %d; want 2, 3", sent, received.Load())
	}
	if files, _ := spool.Pending(); len(files) != 0 {
		t.Errorf("%d batches left after drain", len(files))
	}
}

func TestIngestDrainStopsOnFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	spool := NewSpool(t.TempDir(), 5)
	spool.Write(Batch{Style: "test", Records: testRecords(1)}, time.Now())
	in := newTestIngest(ts.URL, spool)

	sent, err := in.Drain(context.Background())
	if err == nil || sent != 0 {
		t.Errorf("Drain = %d, %v; want failure", sent, err)
	}
	if files, _ := spool.Pending(); len(files) != 1 {
		t.Errorf("spool has %d batches, want the failed one kept", len(files))
	}
}

// TestIngestCancelSpoolsUnsent verifies that cancelling mid-run keeps every
// undelivered batch in the spool instead of losing it.
func TestIngestCancelSpoolsUnsent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			return
		}
		cancel()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer ts.Close()

	spool := NewSpool(t.TempDir(), 10)
	in := newTestIngest(ts.URL, spool)
	in.cfg.BatchMax = 1
	err := in.Emit(ctx, "test", testRecords(4))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Emit error = %v, want context.Canceled", err)
	}

	files, err := spool.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	spooled := 0
	for _, f := range files {
		b, err := spool.Load(f)
		if err != nil {
			t.Fatalf("Load %s: %v", f.Name, err)
		}
		spooled += len(b.Records)
	}
	if spooled != 3 {
		t.Errorf("spooled %d records, want the 3 unsent", spooled)
	}
	if calls.Load() != 2 {
		t.Errorf("got %d webhook calls, want 2", calls.Load())
	}
}
