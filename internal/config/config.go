// Package config handles application configuration: environment variables
// with sensible defaults, optionally overridden by a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
)

// Config holds application configuration.
type Config struct {
	Addr      string  `yaml:"addr"`       // NPA_ADDR, default ":8080"
	DBPath    string  `yaml:"db"`         // NPA_DB, default "npanalytics.db"
	AuthToken string  `yaml:"auth_token"` // NPA_AUTH_TOKEN, optional
	Cadence   Cadence `yaml:"cadence"`
}

// Cadence is the single canonical set of thresholds for the cadence
// pipeline. It is built once and passed by value into every component; there
// is no ambient mutable state.
type Cadence struct {
	// RollingDays is the event-window length feeding cadence computation.
	RollingDays int `yaml:"rolling_days"`
	// LapseCyclesThreshold is how many missed cycles count as lapsed.
	LapseCyclesThreshold int `yaml:"lapse_cycles_threshold"`
	// MinSamples is the sample count below which giving defaults to
	// on-track in the weekly snapshot.
	MinSamples int `yaml:"min_samples"`
	// InactivityDays is the no-longer-attends dormancy threshold.
	InactivityDays int `yaml:"inactivity_days_for_drop"`
	// Signals selects which signals cadence rebuilds compute.
	Signals []domain.Signal `yaml:"signals"`
}

// BucketDays returns the expected period in days for a bucket. Unknown and
// non-cadence buckets return 9999, which effectively disables missed-cycle
// accrual. Monthly is 30 days, canonically.
func (c Cadence) BucketDays(b domain.Bucket) int {
	switch b {
	case domain.BucketWeekly:
		return 7
	case domain.BucketBiweekly:
		return 14
	case domain.BucketMonthly:
		return 30
	case domain.BucketSixWeekly:
		return 42
	}
	return 9999
}

// DefaultCadence returns the canonical cadence thresholds.
func DefaultCadence() Cadence {
	return Cadence{
		RollingDays:          180,
		LapseCyclesThreshold: 3,
		MinSamples:           2,
		InactivityDays:       90,
		Signals:              []domain.Signal{domain.SignalGive, domain.SignalAttend, domain.SignalGroup},
	}
}

// Load reads configuration from environment variables with sensible
// defaults. If NPA_CONFIG points at a YAML file, its values override the
// environment.
func Load() (Config, error) {
	cfg := Config{
		Addr:      envOr("NPA_ADDR", ":8080"),
		DBPath:    envOr("NPA_DB", "npanalytics.db"),
		AuthToken: os.Getenv("NPA_AUTH_TOKEN"),
		Cadence:   DefaultCadence(),
	}

	if v := os.Getenv("NPA_ROLLING_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parsing NPA_ROLLING_DAYS: %w", err)
		}
		cfg.Cadence.RollingDays = n
	}
	if v := os.Getenv("NPA_INACTIVITY_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parsing NPA_INACTIVITY_DAYS: %w", err)
		}
		cfg.Cadence.InactivityDays = n
	}

	if path := os.Getenv("NPA_CONFIG"); path != "" {
		loaded, err := LoadFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}

	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a YAML config file over the given base configuration.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	c := cfg.Cadence
	if c.RollingDays < 30 || c.RollingDays > 730 {
		return fmt.Errorf("rolling_days must be in [30, 730], got %d", c.RollingDays)
	}
	if c.LapseCyclesThreshold < 1 {
		return fmt.Errorf("lapse_cycles_threshold must be >= 1, got %d", c.LapseCyclesThreshold)
	}
	if c.MinSamples < 2 {
		return fmt.Errorf("min_samples must be >= 2, got %d", c.MinSamples)
	}
	if c.InactivityDays < 7 {
		return fmt.Errorf("inactivity_days_for_drop must be >= 7, got %d", c.InactivityDays)
	}
	for _, s := range c.Signals {
		if _, ok := domain.ParseSignal(string(s)); !ok {
			return fmt.Errorf("unknown signal %q", s)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
