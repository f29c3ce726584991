// Package config assembles the geodac run configuration from a YAML file,
// GEODAC_* environment variables and command-line flags, in that order of
// increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/creator4ever-bot/geodac/internal/aspect"
	"github.com/creator4ever-bot/geodac/internal/body"
	"github.com/creator4ever-bot/geodac/internal/transit"
)

// ErrInvalid marks a configuration that cannot be run.
var ErrInvalid = errors.New("invalid configuration")

const maxConfigBytes = 1 << 20

// Config is the complete geodac configuration.
type Config struct {
	Natal    string `yaml:"natal"`
	Timezone string `yaml:"timezone"`

	Preset   string   `yaml:"preset"`
	Style    string   `yaml:"style"`
	Bodies   []string `yaml:"bodies"`
	Targets  []string `yaml:"targets"`
	Aspects  []int    `yaml:"aspects"`
	OrbConj  float64  `yaml:"orb_conj"`
	OrbOther float64  `yaml:"orb_other"`

	From string        `yaml:"from"`
	To   string        `yaml:"to"`
	Days int           `yaml:"days"`
	Step time.Duration `yaml:"step"`

	BothSides       bool          `yaml:"both_sides"`
	Refine          bool          `yaml:"refine"`
	Exact           bool          `yaml:"exact"`
	Ingresses       bool          `yaml:"ingresses"`
	MergeAxes       *bool         `yaml:"merge_axes"`
	AxisPadding     time.Duration `yaml:"axis_padding"`
	HouseShift      map[int]int   `yaml:"house_shift_by_aspect"`
	MaxFailureRatio float64       `yaml:"max_failure_ratio"`
	Workers         int           `yaml:"workers"`

	Ephemeris EphemerisConfig `yaml:"ephemeris"`
	Output    OutputConfig    `yaml:"output"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EphemerisConfig selects and tunes the longitude oracle.
type EphemerisConfig struct {
	Source     string        `yaml:"source"` // builtin or remote
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxElapsed time.Duration `yaml:"max_elapsed"`
	Geocentric bool          `yaml:"geocentric"`
	CacheSize  int           `yaml:"cache_size"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// OutputConfig controls where records go.
type OutputConfig struct {
	Format    string  `yaml:"format"` // json, jsonl or csv
	Path      string  `yaml:"path"`   // empty or "-" for stdout
	Ingest    string  `yaml:"ingest"`
	IngestRPS float64 `yaml:"ingest_rps"`
	BatchMax  int     `yaml:"batch_max"`
	SpoolDir  string  `yaml:"spool_dir"`
	SpoolMax  int     `yaml:"spool_max"`
}

// DedupConfig controls skipping of already delivered records.
type DedupConfig struct {
	Backend   string        `yaml:"backend"` // none, memory or redis
	RedisAddr string        `yaml:"redis_addr"`
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// StoreConfig points at the optional Postgres record store.
type StoreConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ServerConfig tunes the HTTP API.
type ServerConfig struct {
	Addr      string        `yaml:"addr"`
	AuthToken string        `yaml:"auth_token"`
	RateLimit float64       `yaml:"rate_limit"`
	RateBurst int           `yaml:"rate_burst"`
	MaxSpan   time.Duration `yaml:"max_span"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure"`
	OTELService  string `yaml:"otel_service"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Preset == "" && len(c.Bodies) == 0 {
		c.Preset = "lunar"
	}
	if c.Days == 0 {
		c.Days = 7
	}
	if c.MergeAxes == nil {
		merge := true
		c.MergeAxes = &merge
	}
	if c.AxisPadding == 0 {
		c.AxisPadding = transit.DefaultAxisPadding
	}
	if c.MaxFailureRatio == 0 {
		c.MaxFailureRatio = transit.DefaultMaxFailureRatio
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}

	if c.Ephemeris.Source == "" {
		c.Ephemeris.Source = "builtin"
	}
	if c.Ephemeris.Timeout == 0 {
		c.Ephemeris.Timeout = 10 * time.Second
	}
	if c.Ephemeris.MaxElapsed == 0 {
		c.Ephemeris.MaxElapsed = 5 * time.Second
	}
	if c.Ephemeris.CacheSize == 0 {
		c.Ephemeris.CacheSize = 65536
	}
	if c.Ephemeris.CacheTTL == 0 {
		c.Ephemeris.CacheTTL = time.Hour
	}

	if c.Output.Format == "" {
		c.Output.Format = "json"
	}
	if c.Output.IngestRPS == 0 {
		c.Output.IngestRPS = 5
	}
	if c.Output.BatchMax == 0 {
		c.Output.BatchMax = 500
	}
	if c.Output.SpoolDir == "" {
		c.Output.SpoolDir = "spool"
	}
	if c.Output.SpoolMax == 0 {
		c.Output.SpoolMax = 50
	}

	if c.Dedup.Backend == "" {
		c.Dedup.Backend = "none"
	}
	if c.Dedup.Prefix == "" {
		c.Dedup.Prefix = "geodac:seen:"
	}
	if c.Dedup.TTL == 0 {
		c.Dedup.TTL = 90 * 24 * time.Hour
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 2
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 5
	}
	if c.Server.MaxSpan == 0 {
		c.Server.MaxSpan = 92 * 24 * time.Hour
	}

	if c.Telemetry.OTELService == "" {
		c.Telemetry.OTELService = "geodac"
	}
}

// Validate checks the configuration is runnable.
func (c *Config) Validate() error {
	if c.Natal == "" {
		return fmt.Errorf("%w: natal frame path is required", ErrInvalid)
	}
	if c.Preset != "" {
		if _, ok := transit.LookupPreset(c.Preset); !ok {
			return fmt.Errorf("%w: unknown preset %q (have %s)", ErrInvalid, c.Preset, strings.Join(transit.PresetNames(), ", "))
		}
	}
	if _, err := body.ParseList(c.Bodies); err != nil {
		return fmt.Errorf("%w: bodies: %v", ErrInvalid, err)
	}
	if _, err := body.ParseList(c.Targets); err != nil {
		return fmt.Errorf("%w: targets: %v", ErrInvalid, err)
	}
	for _, deg := range c.Aspects {
		if aspect.Symbol(deg) == "?" {
			return fmt.Errorf("%w: unsupported aspect %d", ErrInvalid, deg)
		}
	}
	if c.OrbConj < 0 || c.OrbOther < 0 {
		return fmt.Errorf("%w: orbs must not be negative", ErrInvalid)
	}
	if c.Days < 1 {
		return fmt.Errorf("%w: days must be at least 1", ErrInvalid)
	}
	if c.Step < 0 {
		return fmt.Errorf("%w: step must be positive", ErrInvalid)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("%w: timezone: %v", ErrInvalid, err)
		}
	}
	switch c.Ephemeris.Source {
	case "builtin":
	case "remote":
		if c.Ephemeris.URL == "" {
			return fmt.Errorf("%w: ephemeris.url is required for the remote source", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown ephemeris source %q", ErrInvalid, c.Ephemeris.Source)
	}
	switch c.Output.Format {
	case "json", "jsonl", "csv":
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrInvalid, c.Output.Format)
	}
	switch c.Dedup.Backend {
	case "none", "memory":
	case "redis":
		if c.Dedup.RedisAddr == "" {
			return fmt.Errorf("%w: dedup.redis_addr is required for the redis backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown dedup backend %q", ErrInvalid, c.Dedup.Backend)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 1 {
		return fmt.Errorf("%w: server rate limit must be positive", ErrInvalid)
	}
	return nil
}

// Load reads a YAML configuration file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxConfigBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigBytes {
		return nil, fmt.Errorf("%w: config file exceeds %d bytes", ErrInvalid, maxConfigBytes)
	}
	return Parse(data)
}

// Parse decodes YAML configuration without applying defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: failed to parse YAML config: %v", ErrInvalid, err)
	}
	return &cfg, nil
}

// LoadFromEnv applies GEODAC_* overrides. Malformed values are logged and
// ignored, leaving the file or default value in place.
func (c *Config) LoadFromEnv(logger *slog.Logger) {
	if v := os.Getenv("GEODAC_NATAL"); v != "" {
		c.Natal = v
	}
	if v := os.Getenv("GEODAC_TZ"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("GEODAC_PRESET"); v != "" {
		c.Preset = v
	}
	if v := os.Getenv("GEODAC_BODIES"); v != "" {
		c.Bodies = splitList(v)
	}
	if v := os.Getenv("GEODAC_TARGETS"); v != "" {
		c.Targets = splitList(v)
	}
	if v := os.Getenv("GEODAC_ASPECTS"); v != "" {
		var degs []int
		for _, s := range splitList(v) {
			n, err := strconv.Atoi(s)
			if err != nil {
				logger.Warn("invalid GEODAC_ASPECTS value, ignoring", "value", v)
				degs = nil
				break
			}
			degs = append(degs, n)
		}
		if degs != nil {
			c.Aspects = degs
		}
	}
	envFloat(logger, "GEODAC_ORB_CONJ", &c.OrbConj)
	envFloat(logger, "GEODAC_ORB_OTHER", &c.OrbOther)
	if v := os.Getenv("GEODAC_FROM"); v != "" {
		c.From = v
	}
	if v := os.Getenv("GEODAC_TO"); v != "" {
		c.To = v
	}
	envInt(logger, "GEODAC_DAYS", &c.Days)
	envDuration(logger, "GEODAC_STEP", &c.Step)
	envBool(logger, "GEODAC_REFINE", &c.Refine)
	envBool(logger, "GEODAC_EXACT", &c.Exact)
	envBool(logger, "GEODAC_INGRESSES", &c.Ingresses)
	envInt(logger, "GEODAC_WORKERS", &c.Workers)

	if v := os.Getenv("GEODAC_EPHEMERIS_URL"); v != "" {
		c.Ephemeris.Source = "remote"
		c.Ephemeris.URL = v
	}
	if v := os.Getenv("GEODAC_OUTPUT_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("GEODAC_INGEST_URL"); v != "" {
		c.Output.Ingest = v
	}
	if v := os.Getenv("GEODAC_SPOOL_DIR"); v != "" {
		c.Output.SpoolDir = v
	}
	if v := os.Getenv("GEODAC_REDIS_ADDR"); v != "" {
		c.Dedup.Backend = "redis"
		c.Dedup.RedisAddr = v
	}
	if v := os.Getenv("GEODAC_POSTGRES_DSN"); v != "" {
		c.Store.PostgresDSN = v
	}
	if v := os.Getenv("GEODAC_HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("GEODAC_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("GEODAC_OTEL_ENDPOINT"); v != "" {
		c.Telemetry.OTELEndpoint = v
	}
}

func envFloat(logger *slog.Logger, key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		logger.Warn("invalid "+key+" value, ignoring", "value", v)
		return
	}
	*dst = f
}

func envInt(logger *slog.Logger, key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", *dst)
		return
	}
	*dst = n
}

func envDuration(logger *slog.Logger, key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", dst.String())
		return
	}
	*dst = d
}

func envBool(logger *slog.Logger, key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid "+key+" value, ignoring", "value", v)
		return
	}
	*dst = b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
