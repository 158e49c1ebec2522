package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aevon-lab/regraph/internal/core/locale"
	"github.com/aevon-lab/regraph/internal/logging"
	"github.com/aevon-lab/regraph/internal/savedquery"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Record source formats.
const (
	SourceEvents = "events"
	SourceProto  = "proto"
)

// Config represents the top-level application config plus the loaded saved queries.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Query   QueryConfig   `koanf:"query"`
	Source  SourceConfig  `koanf:"source"`
	Queries QueriesConfig `koanf:"queries"`
	Output  OutputConfig  `koanf:"output"`

	// SavedQueries is populated by Load after parsing the query files.
	SavedQueries *savedquery.FileSystemRepository `koanf:"-"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text | json
}

type QueryConfig struct {
	Locale      string `koanf:"locale"`
	Timezone    string `koanf:"timezone"`
	DateFormat  string `koanf:"date_format"` // Go layout or .NET pattern for point labels
	MaxBuckets  int64  `koanf:"max_buckets"`
	DefaultName string `koanf:"default_name"`
}

type SourceConfig struct {
	Format         string `koanf:"format"` // events | proto
	Path           string `koanf:"path"`
	ProtoFile      string `koanf:"proto_file"`
	Message        string `koanf:"message"`
	TimestampField string `koanf:"timestamp_field"`
}

type QueriesConfig struct {
	Dir         string `koanf:"dir"`
	Require     bool   `koanf:"require"`
	WorkerCount int    `koanf:"worker_count"`
	Interval    string `koanf:"interval"` // empty runs once
}

type OutputConfig struct {
	Path   string `koanf:"path"` // "-" is stdout
	Indent bool   `koanf:"indent"`
}

// Location resolves query.timezone.
func (c QueryConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "UTC") {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// DateParser returns the configured locale reading dates in the configured zone.
func (c QueryConfig) DateParser() (*locale.Locale, error) {
	l, err := locale.For(c.Locale)
	if err != nil {
		return nil, err
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return l.In(loc), nil
}

// RunInterval parses queries.interval. Zero means a single run.
func (c QueriesConfig) RunInterval() (time.Duration, error) {
	if strings.TrimSpace(c.Interval) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be > 0")
	}
	return d, nil
}

func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	if c.Log.Format != logging.FormatText && c.Log.Format != logging.FormatJSON {
		return fmt.Errorf("invalid log.format %q (must be text or json)", c.Log.Format)
	}

	if _, err := locale.For(c.Query.Locale); err != nil {
		return fmt.Errorf("invalid query.locale: %w", err)
	}
	if _, err := c.Query.Location(); err != nil {
		return fmt.Errorf("invalid query.timezone %q: %w", c.Query.Timezone, err)
	}
	if strings.TrimSpace(c.Query.DateFormat) == "" {
		return fmt.Errorf("query.date_format is required")
	}
	if c.Query.MaxBuckets <= 0 {
		return fmt.Errorf("query.max_buckets must be > 0")
	}

	switch c.Source.Format {
	case SourceEvents:
	case SourceProto:
		if strings.TrimSpace(c.Source.ProtoFile) == "" {
			return fmt.Errorf("source.proto_file is required for proto sources")
		}
		if _, err := os.Stat(c.Source.ProtoFile); err != nil {
			return fmt.Errorf("source.proto_file %q is not accessible: %w", c.Source.ProtoFile, err)
		}
		if strings.TrimSpace(c.Source.TimestampField) == "" {
			return fmt.Errorf("source.timestamp_field is required for proto sources")
		}
	default:
		return fmt.Errorf("unsupported source.format %q (must be events or proto)", c.Source.Format)
	}

	if strings.TrimSpace(c.Queries.Dir) == "" {
		return fmt.Errorf("queries.dir is required")
	}
	if c.Queries.WorkerCount <= 0 {
		return fmt.Errorf("queries.worker_count must be > 0")
	}
	if _, err := c.Queries.RunInterval(); err != nil {
		return fmt.Errorf("invalid queries.interval %q: %w", c.Queries.Interval, err)
	}

	if strings.TrimSpace(c.Output.Path) == "" {
		return fmt.Errorf("output.path is required (use - for stdout)")
	}
	return nil
}

// Load parses config from defaults, file and env, validates it, then loads the saved queries.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"log.level":              "info",
		"log.format":             logging.FormatText,
		"query.locale":           "de-CH",
		"query.timezone":         "UTC",
		"query.date_format":      "02.01.06 15:04",
		"query.max_buckets":      100000,
		"query.default_name":     "",
		"source.format":          SourceEvents,
		"source.path":            "",
		"source.proto_file":      "",
		"source.message":         "",
		"source.timestamp_field": "",
		"queries.dir":            "./queries",
		"queries.require":        false,
		"queries.worker_count":   4,
		"queries.interval":       "",
		"output.path":            "-",
		"output.indent":          true,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("REGRAPH_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "REGRAPH_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repo, err := savedquery.NewFileSystemRepository(cfg.Queries.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load saved queries: %w", err)
	}
	if cfg.Queries.Require && len(repo.Definitions()) == 0 {
		return nil, fmt.Errorf("no saved queries found in %q", cfg.Queries.Dir)
	}
	cfg.SavedQueries = repo

	return &cfg, nil
}
