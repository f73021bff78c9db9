package store

import (
	"encoding/json"
	"time"
)

// Project groups sessions captured under one SDK key.
type Project struct {
	ID        int64     `json:"id"`
	SDKKey    string    `json:"sdk_key"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionRow is a stored session.
type SessionRow struct {
	RowID          int64           `json:"-"`
	ProjectID      int64           `json:"project_id"`
	SessionID      string          `json:"id"`
	DeviceInfo     json.RawMessage `json:"device,omitempty"`
	UserProperties json.RawMessage `json:"user_properties,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
	EndedAt        *time.Time      `json:"ended_at,omitempty"`
	DurationMS     int64           `json:"duration_ms"`
	HasVideo       bool            `json:"has_video,omitempty"`
	VideoURL       string          `json:"video_url,omitempty"`
	BatchCount     int             `json:"batch_count,omitempty"`
	EventCount     int             `json:"event_count,omitempty"`
}

// Ack is what ingest returns to the uploader.
type Ack struct {
	SessionID string `json:"session_id"`
	ProjectID int64  `json:"project_id"`
}

// SnapshotIngest is one incoming snapshot batch. Snapshots holds the
// payload exactly as the uploader sent it: a JSON array or a compressed
// JSON string.
type SnapshotIngest struct {
	SDKKey            string          `json:"sdk_key"`
	SessionID         string          `json:"session_id"`
	Snapshots         json.RawMessage `json:"snapshots"`
	SnapshotCount     int             `json:"snapshot_count"`
	IsInitialSnapshot bool            `json:"is_initial_snapshot"`
}

// EventIngest is one incoming event batch.
type EventIngest struct {
	SDKKey         string          `json:"sdk_key"`
	SessionID      string          `json:"session_id"`
	Events         json.RawMessage `json:"events"`
	DeviceInfo     json.RawMessage `json:"device_info,omitempty"`
	UserProperties json.RawMessage `json:"user_properties,omitempty"`
}
