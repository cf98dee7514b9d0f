// Package config loads engine-wide tunables (page size, pool capacity,
// victim policy selection, FSM thresholds) from env vars and an
// optional config file, the way bunbase/pkg/config layers viper over a
// typed struct.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ReplacerKind is the external string-form victim policy selector from
// spec.md §6: "clock" or "lruk".
type ReplacerKind string

const (
	ReplacerClock ReplacerKind = "clock"
	ReplacerLRUK  ReplacerKind = "lruk"
)

// Config is the full set of engine tunables. Zero value is invalid;
// use Default() and override.
type Config struct {
	// PageSize is the fixed page size in bytes, >= 1 KiB.
	PageSize int `mapstructure:"page_size"`

	// BufferPoolCapacity is the number of frames in the pool.
	BufferPoolCapacity int `mapstructure:"buffer_pool_capacity"`

	// Replacer selects the victim policy: "clock" or "lruk".
	Replacer ReplacerKind `mapstructure:"replacer"`
	// ReplacerK is the K parameter for LRU-K, ignored for CLOCK. >= 2.
	ReplacerK int `mapstructure:"replacer_k"`

	// FSMThresholds is the ascending, deduplicated bucket boundary
	// vector used by the Free Space Manager.
	FSMThresholds []int `mapstructure:"fsm_thresholds"`

	// BaseDir is the directory segment files live under.
	BaseDir string `mapstructure:"base_dir"`

	// LoaderReportEvery is how many rows the loader CLI processes
	// between progress log lines.
	LoaderReportEvery int `mapstructure:"loader_report_every"`
}

// Default returns the engine's out-of-the-box configuration: an 8 KiB
// page, a 64-frame pool, LRU-K(2) eviction, and the threshold vector
// used throughout spec.md's worked examples.
func Default() Config {
	return Config{
		PageSize:           8192,
		BufferPoolCapacity: 64,
		Replacer:           ReplacerLRUK,
		ReplacerK:          2,
		FSMThresholds:      []int{128, 512, 1024, 4096},
		BaseDir:            "./data",
		LoaderReportEvery:  10000,
	}
}

// Load layers an optional config file and SLOTDB_-prefixed environment
// variables on top of Default(), the way bunbase/pkg/config.Load layers
// viper over a struct.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("SLOTDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only consults keys viper already knows, so register each
	// one for its SLOTDB_ env var to be picked up without a config file.
	v.SetDefault("page_size", cfg.PageSize)
	v.SetDefault("buffer_pool_capacity", cfg.BufferPoolCapacity)
	v.SetDefault("replacer", string(cfg.Replacer))
	v.SetDefault("replacer_k", cfg.ReplacerK)
	v.SetDefault("fsm_thresholds", cfg.FSMThresholds)
	v.SetDefault("base_dir", cfg.BaseDir)
	v.SetDefault("loader_report_every", cfg.LoaderReportEvery)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks the invariants spec.md assumes hold before the
// engine is constructed from this config.
func (c Config) Validate() error {
	if c.PageSize < 1024 {
		return fmt.Errorf("page_size must be >= 1024, got %d", c.PageSize)
	}
	if c.BufferPoolCapacity <= 0 {
		return fmt.Errorf("buffer_pool_capacity must be > 0, got %d", c.BufferPoolCapacity)
	}
	switch c.Replacer {
	case ReplacerClock, ReplacerLRUK:
	default:
		return fmt.Errorf("replacer must be %q or %q, got %q", ReplacerClock, ReplacerLRUK, c.Replacer)
	}
	if c.Replacer == ReplacerLRUK && c.ReplacerK < 2 {
		return fmt.Errorf("replacer_k must be >= 2, got %d", c.ReplacerK)
	}
	return nil
}
