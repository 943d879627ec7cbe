package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dberror "storecore/pkg/error"
	"storecore/pkg/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, DefaultCapacity, cfg.Capacity)
	assert.Equal(t, EvictFIFO, cfg.EvictionPolicy)
}

func TestValidate_MaxPageSize(t *testing.T) {
	cfg := Default()
	cfg.PageSize = MaxPageSize
	assert.NoError(t, cfg.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
page_size: 1024
capacity: 8
eviction_policy: LRU
flush_bytes_per_sec: 65536
logging:
  level: DEBUG
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.PageSize)
	assert.Equal(t, 8, cfg.Capacity)
	assert.Equal(t, EvictLRU, cfg.EvictionPolicy)
	assert.Equal(t, int64(65536), cfg.FlushBytesPerSec)
	assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "capacity: 3\n"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Capacity)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, EvictFIFO, cfg.EvictionPolicy)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "capacity: [1, 2"))
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tiny page", func(c *Config) { c.PageSize = 16 }},
		{"page with unaddressable slots", func(c *Config) { c.PageSize = 73728 }},
		{"page just over max", func(c *Config) { c.PageSize = MaxPageSize + 1 }},
		{"zero capacity", func(c *Config) { c.Capacity = 0 }},
		{"negative flush rate", func(c *Config) { c.FlushBytesPerSec = -1 }},
		{"unknown policy", func(c *Config) { c.EvictionPolicy = "clock" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, dberror.ErrInvalidArgument))
		})
	}
}
