package config

import (
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creator4ever-bot/geodac/internal/aspect"
	"github.com/creator4ever-bot/geodac/internal/body"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const sampleConfig = `
natal: natal.yaml
preset: planets
days: 3
step: 15m
refine: true
house_shift_by_aspect:
  90: -1
ephemeris:
  source: remote
  url: http://ephemeris.local
  timeout: 5s
output:
  format: jsonl
dedup:
  backend: memory
`

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geodac.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Preset != "planets" || cfg.Days != 3 || cfg.Step != 15*time.Minute {
		t.Errorf("cfg = %s %d %v", cfg.Preset, cfg.Days, cfg.Step)
	}
	if cfg.Ephemeris.Timeout != 5*time.Second || cfg.Ephemeris.URL != "http://ephemeris.local" {
		t.Errorf("ephemeris = %+v", cfg.Ephemeris)
	}
	if cfg.HouseShift[90] != -1 {
		t.Errorf("HouseShift = %v", cfg.HouseShift)
	}
	if cfg.MergeAxes == nil || !*cfg.MergeAxes {
		t.Error("merge_axes should default to true")
	}
	if cfg.Output.SpoolDir != "spool" || cfg.Server.Addr != ":8080" {
		t.Errorf("defaults not applied: %+v %+v", cfg.Output, cfg.Server)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("natal: x\nstepp: 5m\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Natal != "" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no natal", func(c *Config) { c.Natal = "" }},
		{"unknown preset", func(c *Config) { c.Preset = "weekly" }},
		{"unknown body", func(c *Config) { c.Bodies = []string{"Vulcan"} }},
		{"unknown target", func(c *Config) { c.Targets = []string{"Lilith"} }},
		{"bad aspect", func(c *Config) { c.Aspects = []int{45} }},
		{"negative orb", func(c *Config) { c.OrbOther = -1 }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"remote without url", func(c *Config) { c.Ephemeris.Source = "remote" }},
		{"bad source", func(c *Config) { c.Ephemeris.Source = "swisseph" }},
		{"bad format", func(c *Config) { c.Output.Format = "ics" }},
		{"redis without addr", func(c *Config) { c.Dedup.Backend = "redis" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Natal: "natal.yaml"}
			cfg.SetDefaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GEODAC_NATAL", "/data/natal.json")
	t.Setenv("GEODAC_BODIES", "Sun, Mars")
	t.Setenv("GEODAC_ASPECTS", "0,90")
	t.Setenv("GEODAC_ORB_CONJ", "2.5")
	t.Setenv("GEODAC_STEP", "7m")
	t.Setenv("GEODAC_WORKERS", "not-a-number")
	t.Setenv("GEODAC_REDIS_ADDR", "localhost:6379")

	cfg := &Config{Workers: 3}
	cfg.LoadFromEnv(testLogger)

	if cfg.Natal != "/data/natal.json" {
		t.Errorf("Natal = %q", cfg.Natal)
	}
	if len(cfg.Bodies) != 2 || cfg.Bodies[1] != "Mars" {
		t.Errorf("Bodies = %v", cfg.Bodies)
	}
	if len(cfg.Aspects) != 2 || cfg.Aspects[1] != 90 {
		t.Errorf("Aspects = %v", cfg.Aspects)
	}
	if cfg.OrbConj != 2.5 || cfg.Step != 7*time.Minute {
		t.Errorf("OrbConj = %v, Step = %v", cfg.OrbConj, cfg.Step)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want malformed value ignored", cfg.Workers)
	}
	if cfg.Dedup.Backend != "redis" || cfg.Dedup.RedisAddr != "localhost:6379" {
		t.Errorf("Dedup = %+v", cfg.Dedup)
	}
}

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := NewFlags(fs)
	if err := fs.Parse([]string{"-preset", "long", "-no-merge", "-step", "1h", "-format", "CSV"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg := &Config{Natal: "from-file.yaml", Days: 30}
	flags.Apply(cfg)

	if cfg.Natal != "from-file.yaml" || cfg.Days != 30 {
		t.Errorf("unset flags overwrote config: %+v", cfg)
	}
	if cfg.Preset != "long" || cfg.Step != time.Hour || cfg.Output.Format != "csv" {
		t.Errorf("cfg = %s %v %s", cfg.Preset, cfg.Step, cfg.Output.Format)
	}
	if cfg.MergeAxes == nil || *cfg.MergeAxes {
		t.Error("-no-merge did not disable merging")
	}
}

func TestScanConfigPreset(t *testing.T) {
	moscow, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatal(err)
	}
	cfg := &Config{Natal: "n", Preset: "lunar", Days: 2}
	cfg.SetDefaults()
	now := time.Date(2024, 3, 20, 15, 30, 0, 0, time.UTC)

	sc, err := cfg.ScanConfig(moscow, now)
	if err != nil {
		t.Fatalf("ScanConfig: %v", err)
	}
	wantFrom := time.Date(2024, 3, 19, 21, 0, 0, 0, time.UTC)
	if !sc.From.Equal(wantFrom) || !sc.To.Equal(wantFrom.Add(48*time.Hour)) {
		t.Errorf("range = [%v, %v], want local midnight for two days", sc.From, sc.To)
	}
	if sc.Style != "lunar_natal" || sc.Step != 2*time.Minute || !sc.MergeAxes {
		t.Errorf("sc = %s %v merge=%v", sc.Style, sc.Step, sc.MergeAxes)
	}
	if len(sc.Bodies) != 1 || sc.Bodies[0] != body.Moon {
		t.Errorf("Bodies = %v", sc.Bodies)
	}
	if sc.Aspects[0].Orb != 2.0 {
		t.Errorf("conjunction orb = %v, want 2", sc.Aspects[0].Orb)
	}
}

func TestScanConfigOverrides(t *testing.T) {
	cfg := &Config{
		Natal:    "n",
		Bodies:   []string{"Mars"},
		Aspects:  []int{0, 90},
		OrbConj:  3,
		OrbOther: 0.5,
		From:     "2024-01-01",
		To:       "2024-01-02 12:00",
		Step:     30 * time.Minute,
	}
	cfg.SetDefaults()
	sc, err := cfg.ScanConfig(time.UTC, time.Now())
	if err != nil {
		t.Fatalf("ScanConfig: %v", err)
	}
	if cfg.Preset != "" {
		t.Errorf("Preset = %q, want none when bodies are given", cfg.Preset)
	}
	if len(sc.Aspects) != 2 || sc.Aspects[0].Orb != 3 || sc.Aspects[1] != (aspect.Definition{Angle: 90, Orb: 0.5}) {
		t.Errorf("Aspects = %+v", sc.Aspects)
	}
	if !sc.To.Equal(time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("To = %v", sc.To)
	}
	if sc.Style != "natal" {
		t.Errorf("Style = %q", sc.Style)
	}
}

func TestScanConfigBadTime(t *testing.T) {
	cfg := &Config{Natal: "n", From: "next tuesday"}
	cfg.SetDefaults()
	if _, err := cfg.ScanConfig(time.UTC, time.Now()); !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}
