package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Recording modes for a stored session.
const (
	RecordingDOM   = "dom"
	RecordingVideo = "video"
)

// SessionSummary describes a stored session in a transport-friendly
// format.
type SessionSummary struct {
	SessionID      string `json:"sessionId"`
	ProjectID      int64  `json:"projectId"`
	StartedAt      string `json:"startedAt,omitempty"`
	LastActivityAt string `json:"lastActivityAt,omitempty"`
	EndedAt        string `json:"endedAt,omitempty"`
	Duration       string `json:"duration"`
	DurationMS     int64  `json:"durationMs"`
	Active         bool   `json:"active"`
	Recording      string `json:"recording"`
	Device         string `json:"device,omitempty"`
	BatchCount     int    `json:"batchCount"`
	EventCount     int    `json:"eventCount"`
}

// SessionDetail extends a summary with everything the show and timeline
// views render.
type SessionDetail struct {
	SessionSummary
	VideoURL       string          `json:"videoUrl,omitempty"`
	DeviceInfo     json.RawMessage `json:"deviceInfo,omitempty"`
	UserProperties json.RawMessage `json:"userProperties,omitempty"`
	Activity       []ActivityEntry `json:"activity,omitempty"`
}

// ActivityEntry is one classified timeline row.
type ActivityEntry struct {
	Offset string `json:"offset"`
	Label  string `json:"label"`
	Bucket string `json:"bucket"`
	Detail string `json:"detail,omitempty"`
}

// ProjectSummary describes a project for listing.
type ProjectSummary struct {
	ID           int64  `json:"id"`
	SDKKey       string `json:"sdkKey"`
	Name         string `json:"name,omitempty"`
	SessionCount int    `json:"sessionCount"`
}

// StoreOverview aggregates store totals for the status surface.
type StoreOverview struct {
	Projects int64 `json:"projects"`
	Sessions int64 `json:"sessions"`
	Batches  int64 `json:"batches"`
}

// SessionListResponse wraps a collection of sessions for API responses.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}
