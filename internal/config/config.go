// Package config loads and validates the trader's YAML configuration.
// Enumerated type tags (feed, venue, store backends) are checked here,
// once, so the rest of the system only sees known variants.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dgrah50/rx-trader-sub002/internal/strategy"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Timeseries backends.
const (
	TimeseriesNone       = "none"
	TimeseriesMemory     = "memory"
	TimeseriesClickHouse = "clickhouse"
)

// Feed types.
const (
	FeedWebsocket  = "websocket"
	FeedRandomWalk = "randomwalk"
)

// Venue types.
const (
	VenuePaper = "paper"
)

// Duration decodes YAML duration strings like "30s" or "1m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level trader configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Timeseries TimeseriesConfig `yaml:"timeseries"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Bindings   []BindingConfig  `yaml:"bindings"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"` // listen address, empty disables the server
}

// StoreConfig selects and configures the event store backend.
type StoreConfig struct {
	Backend     string `yaml:"backend"`     // memory or postgres
	PostgresDSN string `yaml:"postgresDsn"` // required for postgres
}

// TimeseriesConfig selects the portfolio equity-curve sink.
type TimeseriesConfig struct {
	Backend       string `yaml:"backend"`       // none, memory or clickhouse
	ClickHouseDSN string `yaml:"clickhouseDsn"` // required for clickhouse
	Database      string `yaml:"database"`      // optional clickhouse database override
}

// SnapshotConfig controls periodic portfolio checkpoints.
type SnapshotConfig struct {
	Every Duration `yaml:"every"` // zero disables the periodic loop
}

// PipelineConfig tunes the controller.
type PipelineConfig struct {
	QueueDepth int         `yaml:"queueDepth"` // per-symbol tick queue bound
	Retry      RetryConfig `yaml:"retry"`
}

// RetryConfig bounds append retries against a failing store.
type RetryConfig struct {
	MaxAttempts int      `yaml:"maxAttempts"`
	BaseDelay   Duration `yaml:"baseDelay"`
	MaxDelay    Duration `yaml:"maxDelay"`
}

// BindingConfig wires one feed through one strategy into one venue.
type BindingConfig struct {
	Name     string          `yaml:"name"`
	Symbols  []string        `yaml:"symbols"`
	Qty      float64         `yaml:"qty"` // order quantity per signal
	Feed     FeedConfig      `yaml:"feed"`
	Strategy strategy.Config `yaml:"strategy"`
	Venue    VenueConfig     `yaml:"venue"`
}

// FeedConfig configures a market data source.
type FeedConfig struct {
	Type     string `yaml:"type"` // websocket or randomwalk
	Endpoint string `yaml:"endpoint"`

	// Random walk parameters.
	Start    float64  `yaml:"start"`    // initial price, default 100
	VolBps   float64  `yaml:"volBps"`   // per-tick move bound in bps
	Seed     int64    `yaml:"seed"`     // rng seed, 0 seeds from time
	Count    int      `yaml:"count"`    // ticks to emit, 0 means unbounded
	Interval Duration `yaml:"interval"` // gap between ticks
}

// VenueConfig configures an execution venue.
type VenueConfig struct {
	Type            string  `yaml:"type"`   // paper
	FeeBps          float64 `yaml:"feeBps"` // taker fee in bps
	RateLimitPerSec float64 `yaml:"rateLimitPerSec"`
	RejectRate      float64 `yaml:"rejectRate"` // simulated reject probability [0,1)
	SlipBps         float64 `yaml:"slipBps"`    // simulated slippage bound in bps
	Seed            int64   `yaml:"seed"`       // friction rng seed
}

// Default returns a self-contained demo configuration: one random-walk
// feed trading a momentum crossover on a paper venue over the in-memory
// store.
func Default() *Config {
	return &Config{
		Server:     ServerConfig{Addr: ":8080"},
		Store:      StoreConfig{Backend: StoreMemory},
		Timeseries: TimeseriesConfig{Backend: TimeseriesNone},
		Snapshot:   SnapshotConfig{Every: Duration(30 * time.Second)},
		Bindings: []BindingConfig{{
			Name:    "sim-momentum",
			Symbols: []string{"SIM"},
			Qty:     1,
			Feed: FeedConfig{
				Type:     FeedRandomWalk,
				Start:    100,
				VolBps:   25,
				Interval: Duration(250 * time.Millisecond),
			},
			Strategy: strategy.Config{
				Type:       strategy.TypeMomentum,
				FastWindow: 5,
				SlowWindow: 20,
			},
			Venue: VenueConfig{Type: VenuePaper, FeeBps: 10},
		}},
	}
}

// Load reads, parses, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = StoreMemory
	}
	if c.Timeseries.Backend == "" {
		c.Timeseries.Backend = TimeseriesNone
	}
	for i := range c.Bindings {
		b := &c.Bindings[i]
		if b.Feed.Type == FeedRandomWalk && b.Feed.Start == 0 {
			b.Feed.Start = 100
		}
		if b.Venue.Type == "" {
			b.Venue.Type = VenuePaper
		}
	}
}

// Validate checks every enumerated tag and required field. Strategy
// parameters are validated by constructing the strategy once.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store: postgres backend needs postgresDsn")
		}
	default:
		return fmt.Errorf("store: unknown backend %q", c.Store.Backend)
	}

	switch c.Timeseries.Backend {
	case TimeseriesNone, TimeseriesMemory:
	case TimeseriesClickHouse:
		if c.Timeseries.ClickHouseDSN == "" {
			return fmt.Errorf("timeseries: clickhouse backend needs clickhouseDsn")
		}
	default:
		return fmt.Errorf("timeseries: unknown backend %q", c.Timeseries.Backend)
	}

	if len(c.Bindings) == 0 {
		return fmt.Errorf("no bindings configured")
	}
	names := make(map[string]bool, len(c.Bindings))
	for _, b := range c.Bindings {
		if b.Name == "" {
			return fmt.Errorf("binding with empty name")
		}
		if names[b.Name] {
			return fmt.Errorf("binding %s: duplicate name", b.Name)
		}
		names[b.Name] = true

		if len(b.Symbols) == 0 {
			return fmt.Errorf("binding %s: no symbols", b.Name)
		}
		if b.Qty <= 0 {
			return fmt.Errorf("binding %s: qty must be positive", b.Name)
		}

		switch b.Feed.Type {
		case FeedWebsocket:
			if b.Feed.Endpoint == "" {
				return fmt.Errorf("binding %s: websocket feed needs endpoint", b.Name)
			}
		case FeedRandomWalk:
			if b.Feed.Start <= 0 {
				return fmt.Errorf("binding %s: random walk needs a positive start price", b.Name)
			}
		default:
			return fmt.Errorf("binding %s: unknown feed type %q", b.Name, b.Feed.Type)
		}

		if _, err := strategy.FromConfig(b.Strategy); err != nil {
			return fmt.Errorf("binding %s: %w", b.Name, err)
		}

		switch b.Venue.Type {
		case VenuePaper:
			if b.Venue.RejectRate < 0 || b.Venue.RejectRate >= 1 {
				return fmt.Errorf("binding %s: rejectRate must be in [0,1)", b.Name)
			}
		default:
			return fmt.Errorf("binding %s: unknown venue type %q", b.Name, b.Venue.Type)
		}
	}
	return nil
}
