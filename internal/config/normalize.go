package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeCapture()
	c.normalizeReplay()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Bind = strings.TrimSpace(c.Store.Bind)
	c.Store.URL = strings.TrimRight(strings.TrimSpace(c.Store.URL), "/")
	c.Store.SDKKey = strings.TrimSpace(c.Store.SDKKey)
}

func (c *Config) normalizeCapture() {
	if c.Capture.BatchSize <= 0 {
		c.Capture.BatchSize = defaultBatchSize
	}
	if c.Capture.FlushInterval <= 0 {
		c.Capture.FlushInterval = defaultFlushInterval
	}
	if c.Capture.CheckoutInterval <= 0 {
		c.Capture.CheckoutInterval = defaultCheckoutInterval
	}
	if c.Capture.SnapshotAckTimeout <= 0 {
		c.Capture.SnapshotAckTimeout = defaultSnapshotAckTimeout
	}
	if c.Capture.SessionTimeoutMinutes <= 0 {
		c.Capture.SessionTimeoutMinutes = defaultSessionTimeoutMinutes
	}
	if c.Capture.InactivityTimeout <= 0 {
		c.Capture.InactivityTimeout = defaultInactivityTimeout
	}
	if c.Capture.RequestTimeout <= 0 {
		c.Capture.RequestTimeout = defaultUploadRequestTimeout
	}
	if c.Capture.ScrollSampleIntervalMS <= 0 {
		c.Capture.ScrollSampleIntervalMS = defaultScrollSampleIntervalMS
	}
}

func (c *Config) normalizeReplay() {
	if c.Replay.CursorScanWindow <= 0 {
		c.Replay.CursorScanWindow = defaultCursorScanWindow
	}
	if c.Replay.CursorTickMS <= 0 {
		c.Replay.CursorTickMS = defaultCursorTickMS
	}
	if c.Replay.InactivityGap <= 0 {
		c.Replay.InactivityGap = defaultInactivityGap
	}
	if c.Replay.SkipSpeed <= 0 {
		c.Replay.SkipSpeed = defaultSkipSpeed
	}
	if c.Replay.MinDurationMS <= 0 {
		c.Replay.MinDurationMS = defaultMinDurationMS
	}
	if c.Replay.RequestTimeout <= 0 {
		c.Replay.RequestTimeout = defaultReplayRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
