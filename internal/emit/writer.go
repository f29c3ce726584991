// Package emit delivers transit records to files, stdout and an ingest
// webhook, spooling batches the webhook could not take.
package emit

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/creator4ever-bot/geodac/internal/transit"
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

var csvHeader = []string{
	"id", "style", "kind", "transit", "target", "aspect", "aspect_deg",
	"start", "peak", "end", "house_tr", "house_nat", "sign_tr", "sign_nat",
	"orb_peak_deg", "truncated", "refined",
}

// Write renders records to w in the given format. JSON output is a single
// indented array; JSONL is one record per line.
func Write(w io.Writer, format string, records []transit.Record) error {
	switch format {
	case FormatJSON:
		if records == nil {
			records = []transit.Record{}
		}
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case FormatJSONL:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, r := range records {
			if err := cw.Write(csvRow(r)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func csvRow(r transit.Record) []string {
	var houseTr, houseNat string
	if r.Houses != nil {
		if r.Houses.Tr != nil {
			houseTr = strconv.Itoa(*r.Houses.Tr)
		}
		if r.Houses.Nat != nil {
			houseNat = strconv.Itoa(*r.Houses.Nat)
		}
	}
	return []string{
		r.ID,
		r.Style,
		string(r.Kind),
		r.Transit,
		r.Target,
		r.Aspect,
		strconv.Itoa(r.AspectDeg),
		r.Start,
		r.Peak,
		r.End,
		houseTr,
		houseNat,
		r.Signs.Tr,
		r.Signs.Nat,
		strconv.FormatFloat(r.OrbPeakDeg, 'f', 3, 64),
		strconv.FormatBool(r.Truncated),
		strconv.FormatBool(r.Refined),
	}
}

// WriteFile writes records to path, or to stdout when path is empty or
// "-". Files are written through a temporary file and renamed into place.
func WriteFile(path, format string, records []transit.Record) error {
	if path == "" || path == "-" {
		return Write(os.Stdout, format, records)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, format, records); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
