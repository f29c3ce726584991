package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/creator4ever-bot/geodac/internal/transit"
)

func testRecord(style string) transit.Record {
	tr := 4
	return transit.Record{
		ID:         transit.RecordID(style, "Moon", "ASC/DSC", "☍/☌", "2024-01-01 02:00", "2024-01-01 06:00"),
		Style:      style,
		Kind:       transit.KindAxis,
		Transit:    "Moon",
		Target:     "ASC/DSC",
		Targets:    []string{"ASC", "DSC"},
		Aspect:     "☍/☌",
		AspectDeg:  180,
		Start:      "2024-01-01 02:00",
		Peak:       "2024-01-01 04:00",
		End:        "2024-01-01 06:00",
		Houses:     &transit.Houses{Tr: &tr},
		Signs:      transit.Signs{Tr: "LIBRA"},
		OrbPeakDeg: 0.25,
	}
}

func TestRowRoundTrip(t *testing.T) {
	r := testRecord("lunar_natal")
	got := toRow(r, time.Now()).record()
	if got.ID != r.ID || got.Target != r.Target || len(got.Targets) != 2 || got.Targets[1] != "DSC" {
		t.Errorf("got %+v", got)
	}
	if got.Houses == nil || *got.Houses.Tr != 4 || got.Houses.Nat != nil {
		t.Errorf("Houses = %+v", got.Houses)
	}

	noHouses := r
	noHouses.Houses = nil
	if got := toRow(noHouses, time.Now()).record(); got.Houses != nil {
		t.Errorf("Houses = %+v, want nil", got.Houses)
	}
}

// TestPostgres runs against a live database named by GEODAC_TEST_POSTGRES.
func TestPostgres(t *testing.T) {
	dsn := os.Getenv("GEODAC_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("GEODAC_TEST_POSTGRES not set")
	}
	ctx := context.Background()
	p, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	style := "test_" + time.Now().Format("150405.000000")
	r := testRecord(style)
	if err := p.Upsert(ctx, []transit.Record{r}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	r.OrbPeakDeg = 0.125
	if err := p.Upsert(ctx, []transit.Record{r}); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := p.ListStyle(ctx, style, "2024-01-01 00:00", "2024-01-02 00:00")
	if err != nil {
		t.Fatalf("ListStyle: %v", err)
	}
	if len(got) != 1 || got[0].OrbPeakDeg != 0.125 {
		t.Errorf("got %+v, want one updated record", got)
	}
}
