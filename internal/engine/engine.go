// Package engine defines the boundary to the visual capture engine, the
// component that observes a document tree and emits records. The engine
// itself is a black box; the capture controller only depends on this
// contract.
package engine

import (
	"errors"

	"rewind/internal/record"
)

// ErrUnavailable is returned by Start when no engine can run in the
// current environment. The capture controller degrades to event-only
// capture instead of failing the session.
var ErrUnavailable = errors.New("capture engine unavailable")

// EmitFunc receives records as the engine produces them. Called from the
// engine's own goroutine; implementations must be safe for that.
type EmitFunc func(record.Record)

// StopFunc tears the engine down. Idempotent.
type StopFunc func()

// Checkpointer is implemented by engines that can emit a fresh full
// snapshot on demand, resetting the incremental baseline.
type Checkpointer interface {
	Checkout()
}

// Options tunes engine behavior at start.
type Options struct {
	// MaskInputs replaces typed text with asterisks before records leave
	// the engine.
	MaskInputs bool
	// ScrollSampleIntervalMS throttles scroll records.
	ScrollSampleIntervalMS int
}

// Engine observes a root and streams records through emit until the
// returned StopFunc is called. The first record emitted must be a full
// snapshot.
type Engine interface {
	Start(root string, opts Options, emit EmitFunc) (StopFunc, error)
}
