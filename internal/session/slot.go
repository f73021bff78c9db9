package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Slot persists the active session id so that a restarted capture process
// within the session timeout resumes the same session instead of minting
// a new one. Concurrent processes coordinate through a file lock: whoever
// holds the lock reads, decides, and writes atomically, so two capturers
// starting at once converge on a single id.
type Slot struct {
	path     string
	lockPath string
	timeout  time.Duration
}

type slotState struct {
	SessionID string    `json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

const slotLockWait = 2 * time.Second

// NewSlot creates a slot rooted in dataDir. timeout is how stale the
// persisted id may be before it is discarded.
func NewSlot(dataDir string, timeout time.Duration) *Slot {
	return &Slot{
		path:     filepath.Join(dataDir, "session.json"),
		lockPath: filepath.Join(dataDir, "session.lock"),
		timeout:  timeout,
	}
}

// Claim returns the persisted session id if it is still fresh, otherwise
// mints a new one. Either way the slot timestamp is refreshed under the
// lock. The boolean reports whether an existing session was resumed.
func (s *Slot) Claim(ctx context.Context) (string, bool, error) {
	var id string
	var resumed bool
	err := s.withLock(ctx, func() error {
		state, err := s.read()
		now := time.Now().UTC()
		if err == nil && state.SessionID != "" && now.Sub(state.UpdatedAt) < s.timeout {
			id = state.SessionID
			resumed = true
		} else {
			id = NewID()
			resumed = false
		}
		return s.write(slotState{SessionID: id, UpdatedAt: now})
	})
	if err != nil {
		return "", false, err
	}
	return id, resumed, nil
}

// Refresh bumps the slot timestamp for the given session. A slot that has
// moved on to a different session is left alone.
func (s *Slot) Refresh(ctx context.Context, sessionID string) error {
	return s.withLock(ctx, func() error {
		state, err := s.read()
		if err != nil || state.SessionID != sessionID {
			return nil
		}
		return s.write(slotState{SessionID: sessionID, UpdatedAt: time.Now().UTC()})
	})
}

// Clear removes the persisted slot. Called when a session ends so the
// next capture run starts fresh.
func (s *Slot) Clear(ctx context.Context) error {
	return s.withLock(ctx, func() error {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove session slot: %w", err)
		}
		return nil
	})
}

func (s *Slot) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure slot directory: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, slotLockWait)
	defer cancel()

	lock := flock.New(s.lockPath)
	locked, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if !locked {
		return errors.New("acquire slot lock: timed out")
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}

func (s *Slot) read() (slotState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return slotState{}, err
	}
	var state slotState
	if err := json.Unmarshal(data, &state); err != nil {
		return slotState{}, fmt.Errorf("decode session slot: %w", err)
	}
	return state, nil
}

func (s *Slot) write(state slotState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session slot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session slot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session slot: %w", err)
	}
	return nil
}
