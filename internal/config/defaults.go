package config

const (
	defaultDataDir = "~/.local/share/rewind/data"
	defaultLogDir  = "~/.local/share/rewind/logs"

	defaultStoreBind = "127.0.0.1:8787"
	defaultStoreURL  = "http://127.0.0.1:8787"

	defaultBatchSize              = 200
	defaultFlushInterval          = 15
	defaultCheckoutInterval       = 10
	defaultSnapshotAckTimeout     = 5
	defaultSessionTimeoutMinutes  = 30
	defaultInactivityTimeout      = 30
	defaultUploadRequestTimeout   = 10
	defaultScrollSampleIntervalMS = 300

	defaultCursorScanWindow     = 200
	defaultCursorTickMS         = 100
	defaultInactivityGap        = 3
	defaultSkipSpeed            = 12
	defaultMinDurationMS        = 1000
	defaultReplayRequestTimeout = 30

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Store: Store{
			Bind: defaultStoreBind,
			URL:  defaultStoreURL,
		},
		Capture: Capture{
			BatchSize:              defaultBatchSize,
			FlushInterval:          defaultFlushInterval,
			CheckoutInterval:       defaultCheckoutInterval,
			SnapshotAckTimeout:     defaultSnapshotAckTimeout,
			SessionTimeoutMinutes:  defaultSessionTimeoutMinutes,
			InactivityTimeout:      defaultInactivityTimeout,
			Compress:               true,
			RequestTimeout:         defaultUploadRequestTimeout,
			MaskInputs:             true,
			ScrollSampleIntervalMS: defaultScrollSampleIntervalMS,
		},
		Replay: Replay{
			CursorScanWindow: defaultCursorScanWindow,
			CursorTickMS:     defaultCursorTickMS,
			InactivityGap:    defaultInactivityGap,
			SkipSpeed:        defaultSkipSpeed,
			MinDurationMS:    defaultMinDurationMS,
			RequestTimeout:   defaultReplayRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
