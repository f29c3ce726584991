package natal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/creator4ever-bot/geodac/internal/body"
)

// maxFrameSize bounds the natal file read from disk or an API body.
const maxFrameSize = 1 << 20

// document is the on-disk natal frame layout shared by YAML and JSON.
type document struct {
	Name      string             `json:"name" yaml:"name"`
	Birth     string             `json:"birth" yaml:"birth"`
	Timezone  string             `json:"timezone" yaml:"timezone"`
	Location  *Location          `json:"location" yaml:"location"`
	Cusps     []*float64         `json:"cusps" yaml:"cusps"`
	Positions map[string]float64 `json:"positions" yaml:"positions"`
}

// LoadFile reads a natal frame from a .yaml, .yml or .json file.
func LoadFile(path string) (*Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading natal frame: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Source = path
	return f, nil
}

// Parse decodes a natal frame. format is "json", "yaml" or "yml".
func Parse(data []byte, format string) (*Frame, error) {
	if len(data) > maxFrameSize {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrInvalidFrame, maxFrameSize)
	}

	var doc document
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decoding json: %v", ErrInvalidFrame, err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: decoding yaml: %v", ErrInvalidFrame, err)
		}
	default:
		return nil, fmt.Errorf("unsupported natal frame format %q", format)
	}

	return doc.frame()
}

func (d *document) frame() (*Frame, error) {
	f := &Frame{Name: d.Name, LoadedAt: time.Now().UTC()}

	zone := time.UTC
	if d.Timezone != "" {
		loc, err := time.LoadLocation(d.Timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidFrame, d.Timezone, err)
		}
		zone = loc
	}
	f.Timezone = zone

	if strings.TrimSpace(d.Birth) == "" {
		return nil, fmt.Errorf("%w: missing birth instant", ErrInvalidFrame)
	}
	birth, err := parseBirth(d.Birth, zone)
	if err != nil {
		return nil, err
	}
	f.Birth = birth

	if d.Location == nil {
		return nil, fmt.Errorf("%w: missing location", ErrInvalidFrame)
	}
	f.Location = *d.Location

	cusps, err := NormalizeCusps(d.Cusps)
	if err != nil {
		return nil, err
	}
	f.Cusps = cusps

	if len(d.Positions) > 0 {
		f.Positions = make(map[body.Body]float64, len(d.Positions))
		for name, lon := range d.Positions {
			b, err := body.Parse(name)
			if err != nil {
				return nil, fmt.Errorf("%w: positions: %v", ErrInvalidFrame, err)
			}
			f.Positions[b] = normalize(lon)
		}
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

var birthLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseBirth accepts RFC 3339 instants, or wall-clock times in zone.
// A bare date is taken at local noon.
func parseBirth(s string, zone *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range birthLayouts {
		if t, err := time.ParseInLocation(layout, s, zone); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", s, zone); err == nil {
		return t.Add(12 * time.Hour).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised birth instant %q", ErrInvalidFrame, s)
}
