package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rewind/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if cfg.BatchSize() != 200 {
		t.Fatalf("unexpected default batch size: %d", cfg.BatchSize())
	}
	if got := cfg.FlushInterval().Seconds(); got != 15 {
		t.Fatalf("unexpected default flush interval: %vs", got)
	}
	if got := cfg.SessionTimeout().Minutes(); got != 30 {
		t.Fatalf("unexpected default session timeout: %vm", got)
	}
	if got := cfg.InactivityTimeout().Seconds(); got != 30 {
		t.Fatalf("unexpected default inactivity timeout: %vs", got)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[capture]
batch_size = 25
flush_interval = 2

[store]
url = "http://store.example.com:9000/"
sdk_key = " key-123 "
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.BatchSize() != 25 {
		t.Fatalf("batch size not applied: %d", cfg.BatchSize())
	}
	if cfg.Store.URL != "http://store.example.com:9000" {
		t.Fatalf("store url not normalized: %q", cfg.Store.URL)
	}
	if cfg.Store.SDKKey != "key-123" {
		t.Fatalf("sdk key not trimmed: %q", cfg.Store.SDKKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad format", func(c *config.Config) { c.Logging.Format = "yaml" }, "logging.format"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad url", func(c *config.Config) { c.Store.URL = "not a url" }, "store.url"},
		{"empty data dir", func(c *config.Config) { c.Paths.DataDir = "" }, "paths.data_dir"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[capture]") {
		t.Fatal("sample missing [capture] section")
	}
}
