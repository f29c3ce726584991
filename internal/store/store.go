// Package store persists transit records in Postgres.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/creator4ever-bot/geodac/internal/transit"
)

const schema = `
CREATE TABLE IF NOT EXISTS transit_records (
	id           UUID PRIMARY KEY,
	style        TEXT NOT NULL,
	kind         TEXT NOT NULL,
	transit      TEXT NOT NULL,
	target       TEXT NOT NULL,
	targets      TEXT[],
	aspect       TEXT NOT NULL,
	aspect_deg   INTEGER NOT NULL,
	start_local  TEXT NOT NULL,
	peak_local   TEXT NOT NULL,
	end_local    TEXT NOT NULL,
	house_tr     INTEGER,
	house_nat    INTEGER,
	sign_tr      TEXT,
	sign_nat     TEXT,
	orb_peak_deg DOUBLE PRECISION NOT NULL,
	truncated    BOOLEAN NOT NULL DEFAULT FALSE,
	refined      BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transit_records_style_peak ON transit_records (style, peak_local);
`

const upsertQuery = `
	INSERT INTO transit_records (
		id, style, kind, transit, target, targets, aspect, aspect_deg,
		start_local, peak_local, end_local, house_tr, house_nat,
		sign_tr, sign_nat, orb_peak_deg, truncated, refined, updated_at
	) VALUES (
		:id, :style, :kind, :transit, :target, :targets, :aspect, :aspect_deg,
		:start_local, :peak_local, :end_local, :house_tr, :house_nat,
		:sign_tr, :sign_nat, :orb_peak_deg, :truncated, :refined, :updated_at
	)
	ON CONFLICT (id) DO UPDATE SET
		peak_local   = EXCLUDED.peak_local,
		house_tr     = EXCLUDED.house_tr,
		house_nat    = EXCLUDED.house_nat,
		orb_peak_deg = EXCLUDED.orb_peak_deg,
		truncated    = EXCLUDED.truncated,
		refined      = EXCLUDED.refined,
		updated_at   = EXCLUDED.updated_at`

// row is the column mapping of a transit.Record.
type row struct {
	ID         string         `db:"id"`
	Style      string         `db:"style"`
	Kind       string         `db:"kind"`
	Transit    string         `db:"transit"`
	Target     string         `db:"target"`
	Targets    pq.StringArray `db:"targets"`
	Aspect     string         `db:"aspect"`
	AspectDeg  int            `db:"aspect_deg"`
	Start      string         `db:"start_local"`
	Peak       string         `db:"peak_local"`
	End        string         `db:"end_local"`
	HouseTr    *int           `db:"house_tr"`
	HouseNat   *int           `db:"house_nat"`
	SignTr     string         `db:"sign_tr"`
	SignNat    string         `db:"sign_nat"`
	OrbPeakDeg float64        `db:"orb_peak_deg"`
	Truncated  bool           `db:"truncated"`
	Refined    bool           `db:"refined"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func toRow(r transit.Record, now time.Time) row {
	out := row{
		ID:         r.ID,
		Style:      r.Style,
		Kind:       string(r.Kind),
		Transit:    r.Transit,
		Target:     r.Target,
		Targets:    pq.StringArray(r.Targets),
		Aspect:     r.Aspect,
		AspectDeg:  r.AspectDeg,
		Start:      r.Start,
		Peak:       r.Peak,
		End:        r.End,
		SignTr:     r.Signs.Tr,
		SignNat:    r.Signs.Nat,
		OrbPeakDeg: r.OrbPeakDeg,
		Truncated:  r.Truncated,
		Refined:    r.Refined,
		UpdatedAt:  now,
	}
	if r.Houses != nil {
		out.HouseTr = r.Houses.Tr
		out.HouseNat = r.Houses.Nat
	}
	return out
}

func (w row) record() transit.Record {
	r := transit.Record{
		ID:         w.ID,
		Style:      w.Style,
		Kind:       transit.Kind(w.Kind),
		Transit:    w.Transit,
		Target:     w.Target,
		Targets:    []string(w.Targets),
		Aspect:     w.Aspect,
		AspectDeg:  w.AspectDeg,
		Start:      w.Start,
		Peak:       w.Peak,
		End:        w.End,
		Signs:      transit.Signs{Tr: w.SignTr, Nat: w.SignNat},
		OrbPeakDeg: w.OrbPeakDeg,
		Truncated:  w.Truncated,
		Refined:    w.Refined,
	}
	if w.HouseTr != nil || w.HouseNat != nil {
		r.Houses = &transit.Houses{Tr: w.HouseTr, Nat: w.HouseNat}
	}
	return r
}

// Postgres stores records keyed by their deterministic id, so re-running a
// scan updates rows in place.
type Postgres struct {
	db *sqlx.DB
}

// Open connects to dsn and creates the schema when missing.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// Migrate creates the records table.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Upsert writes records in one transaction.
func (p *Postgres) Upsert(ctx context.Context, records []transit.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, toRow(r, now)); err != nil {
			return fmt.Errorf("upserting record %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing records: %w", err)
	}
	return nil
}

// ListStyle returns the records of one style whose peak falls in
// [from, to), ordered by peak. Bounds use the record time layout.
func (p *Postgres) ListStyle(ctx context.Context, style, from, to string) ([]transit.Record, error) {
	const query = `
		SELECT id, style, kind, transit, target, targets, aspect, aspect_deg,
			start_local, peak_local, end_local, house_tr, house_nat,
			sign_tr, sign_nat, orb_peak_deg, truncated, refined, updated_at
		FROM transit_records
		WHERE style = $1 AND peak_local >= $2 AND peak_local < $3
		ORDER BY peak_local, transit, target`

	var rows []row
	if err := p.db.SelectContext(ctx, &rows, query, style, from, to); err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	out := make([]transit.Record, len(rows))
	for i, w := range rows {
		out[i] = w.record()
	}
	return out, nil
}

// Ping checks the connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}
