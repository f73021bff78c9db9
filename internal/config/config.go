package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration shared by the CLI, the capture
// simulator, and the store daemon.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Store contains configuration for the session store: the daemon bind
// address and the client-side target used by the uploader and the replay
// loader.
type Store struct {
	Bind   string `toml:"bind"`
	URL    string `toml:"url"`
	SDKKey string `toml:"sdk_key"`
}

// Capture contains tunables for the capture controller and uploader.
// Intervals are seconds unless the field name says otherwise.
type Capture struct {
	BatchSize              int  `toml:"batch_size"`
	FlushInterval          int  `toml:"flush_interval"`
	CheckoutInterval       int  `toml:"checkout_interval"`
	SnapshotAckTimeout     int  `toml:"snapshot_ack_timeout"`
	SessionTimeoutMinutes  int  `toml:"session_timeout_minutes"`
	InactivityTimeout      int  `toml:"inactivity_timeout"`
	Compress               bool `toml:"compress"`
	RequestTimeout         int  `toml:"request_timeout"`
	MaskInputs             bool `toml:"mask_inputs"`
	ScrollSampleIntervalMS int  `toml:"scroll_sample_interval_ms"`
}

// Replay contains tunables for the reconstructor and player.
type Replay struct {
	CursorScanWindow int `toml:"cursor_scan_window"`
	CursorTickMS     int `toml:"cursor_tick_ms"`
	InactivityGap    int `toml:"inactivity_gap"`
	SkipSpeed        int `toml:"skip_speed"`
	MinDurationMS    int `toml:"min_duration_ms"`
	RequestTimeout   int `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for rewind.
//
// Sections by subsystem:
//   - Paths: data and log directories
//   - Store: daemon bind address, client target URL, SDK key
//   - Capture: controller batching, gating, and watchdog timing
//   - Replay: reconstructor and synthetic-cursor timing
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Store   Store   `toml:"store"`
	Capture Capture `toml:"capture"`
	Replay  Replay  `toml:"replay"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/rewind/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file existed at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("rewind.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories required for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// BatchSize returns the maximum number of records per delivered batch.
func (c *Config) BatchSize() int {
	return c.Capture.BatchSize
}

// FlushInterval returns the time-triggered flush interval.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Capture.FlushInterval) * time.Second
}

// CheckoutInterval returns how often the engine is asked for periodic full
// snapshots while streaming.
func (c *Config) CheckoutInterval() time.Duration {
	return time.Duration(c.Capture.CheckoutInterval) * time.Second
}

// SnapshotAckTimeout returns how long the controller waits for the initial
// full-snapshot upload to be acknowledged before degrading.
func (c *Config) SnapshotAckTimeout() time.Duration {
	return time.Duration(c.Capture.SnapshotAckTimeout) * time.Second
}

// SessionTimeout returns the persisted-session expiry window.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Capture.SessionTimeoutMinutes) * time.Minute
}

// InactivityTimeout returns the watchdog window after which an idle session
// is ended.
func (c *Config) InactivityTimeout() time.Duration {
	return time.Duration(c.Capture.InactivityTimeout) * time.Second
}

// UploadTimeout returns the per-request timeout for uploader deliveries.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Capture.RequestTimeout) * time.Second
}

// CursorTick returns the synthetic-cursor refresh interval.
func (c *Config) CursorTick() time.Duration {
	return time.Duration(c.Replay.CursorTickMS) * time.Millisecond
}

// InactivityGap returns the minimum event gap treated as an inactive period
// during playback.
func (c *Config) InactivityGap() time.Duration {
	return time.Duration(c.Replay.InactivityGap) * time.Second
}

// MinDuration returns the placeholder timeline duration for degenerate
// sessions.
func (c *Config) MinDuration() time.Duration {
	return time.Duration(c.Replay.MinDurationMS) * time.Millisecond
}

// ReplayRequestTimeout returns the per-request timeout for replay fetches.
func (c *Config) ReplayRequestTimeout() time.Duration {
	return time.Duration(c.Replay.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
