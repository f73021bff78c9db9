// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"rewind/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per
// test and an ephemeral API bind.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Store.Bind = "127.0.0.1:0"
	cfg.Store.SDKKey = "test-key"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithSDKKey overrides the SDK key on the test config.
func WithSDKKey(key string) ConfigOption {
	return func(c *config.Config) {
		c.Store.SDKKey = key
	}
}

// WithCompression toggles snapshot payload compression.
func WithCompression(enabled bool) ConfigOption {
	return func(c *config.Config) {
		c.Capture.Compress = enabled
	}
}
