// Package session handles session identity: minting ids, describing the
// capturing device, and persisting the resumable session slot that lets a
// restarted capture process continue the same session.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is the unit of capture and replay: one contiguous run of
// activity under a single id.
type Session struct {
	ID             string         `json:"id"`
	ProjectID      int64          `json:"project_id,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	DurationMS     int64          `json:"duration_ms,omitempty"`
	Device         DeviceInfo     `json:"device"`
	UserProperties map[string]any `json:"user_properties,omitempty"`
	HasVideo       bool           `json:"has_video,omitempty"`
	VideoURL       string         `json:"video_url,omitempty"`
}

// NewID mints a session identifier. The sess_ prefix makes ids
// recognizable in logs and URLs.
func NewID() string {
	return "sess_" + uuid.NewString()
}

// Active reports whether the session has not been ended.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// Duration returns the recorded duration, falling back to the activity
// span for sessions that were never explicitly ended.
func (s *Session) Duration() time.Duration {
	if s.DurationMS > 0 {
		return time.Duration(s.DurationMS) * time.Millisecond
	}
	if s.LastActivityAt.After(s.StartedAt) {
		return s.LastActivityAt.Sub(s.StartedAt)
	}
	return 0
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (started %s)", s.ID, s.StartedAt.Format(time.RFC3339))
}
