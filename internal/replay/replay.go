// Package replay reconstructs stored sessions into seekable timelines.
// It fetches batches from the store, repairs what storage and old capture
// versions did to them, and drives a replay runtime with play, pause,
// seek, and speed control.
package replay

import "errors"

// Terminal errors. Both mean the caller should leave the player and go
// back to the session list instead of rendering a broken viewport.
var (
	// ErrNoFullSnapshot marks a session with no full snapshot anywhere in
	// its record set. Nothing can anchor reconstruction.
	ErrNoFullSnapshot = errors.New("session has no full snapshot")
	// ErrTooShort marks a session with fewer than two usable records.
	ErrTooShort = errors.New("session has too few records to replay")
)
