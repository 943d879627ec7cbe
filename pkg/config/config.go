// Package config holds the process-wide settings of the buffer pool. The
// values are read once when the pool is constructed and never change
// afterwards.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	dberror "storecore/pkg/error"
	"storecore/pkg/logging"
)

const (
	// DefaultPageSize is the size of each page in bytes (4KB)
	DefaultPageSize = 4096

	// DefaultCapacity is the default number of pages the buffer pool caches.
	DefaultCapacity = 50

	// MinPageSize is the smallest page a table file can be formatted with.
	MinPageSize = 64

	// MaxPageSize is the largest page whose slots stay addressable for
	// one-byte tuples.
	MaxPageSize = 64 * 1024
)

// EvictionPolicy selects the order in which clean pages are considered for
// eviction. Dirty pages are never evicted regardless of policy.
type EvictionPolicy string

const (
	// EvictFIFO considers pages in cache insertion order.
	EvictFIFO EvictionPolicy = "fifo"

	// EvictLRU considers pages in least-recently-used order.
	EvictLRU EvictionPolicy = "lru"
)

// Config is the buffer pool configuration.
type Config struct {
	// PageSize is the size in bytes of every page of every table file.
	PageSize int `yaml:"page_size"`

	// Capacity is the maximum number of pages resident in the cache.
	Capacity int `yaml:"capacity"`

	// EvictionPolicy is "fifo" (default) or "lru".
	EvictionPolicy EvictionPolicy `yaml:"eviction_policy"`

	// FlushBytesPerSec throttles FlushAllPages. Zero means unlimited.
	FlushBytesPerSec int64 `yaml:"flush_bytes_per_sec"`

	Logging logging.Config `yaml:"logging"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		PageSize:       DefaultPageSize,
		Capacity:       DefaultCapacity,
		EvictionPolicy: EvictFIFO,
		Logging: logging.Config{
			Level:  logging.LevelInfo,
			Format: "text",
		},
	}
}

// Validate checks the configuration and normalizes the eviction policy.
func (c *Config) Validate() error {
	if c.PageSize < MinPageSize {
		return dberror.Newf(dberror.ErrInvalidArgument, "Validate", "Config",
			"page_size must be at least %d, got %d", MinPageSize, c.PageSize)
	}

	if c.PageSize > MaxPageSize {
		return dberror.Newf(dberror.ErrInvalidArgument, "Validate", "Config",
			"page_size must be at most %d, got %d", MaxPageSize, c.PageSize)
	}

	if c.Capacity <= 0 {
		return dberror.Newf(dberror.ErrInvalidArgument, "Validate", "Config",
			"capacity must be positive, got %d", c.Capacity)
	}

	if c.FlushBytesPerSec < 0 {
		return dberror.Newf(dberror.ErrInvalidArgument, "Validate", "Config",
			"flush_bytes_per_sec cannot be negative, got %d", c.FlushBytesPerSec)
	}

	switch EvictionPolicy(strings.ToLower(string(c.EvictionPolicy))) {
	case "", EvictFIFO:
		c.EvictionPolicy = EvictFIFO
	case EvictLRU:
		c.EvictionPolicy = EvictLRU
	default:
		return dberror.Newf(dberror.ErrInvalidArgument, "Validate", "Config",
			"unknown eviction_policy %q", c.EvictionPolicy)
	}

	return nil
}

// Load reads a YAML file on top of Default and validates the result.
// Fields missing from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
