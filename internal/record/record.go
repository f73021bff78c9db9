// Package record defines the wire model shared by the capture pipeline,
// the store, and the replay reconstructor.
//
// Records carry a numeric type tag and an opaque JSON payload. The type
// numbering is fixed by the wire contract and must never be renumbered:
// stored sessions depend on it.
package record

import (
	"encoding/json"
	"fmt"
)

// Type tags the top-level shape of a record.
type Type int

const (
	// TypeFullSnapshot is a complete serialized document tree. Every
	// playable session starts with one.
	TypeFullSnapshot Type = 2
	// TypeIncremental is a delta against the preceding state: a mutation,
	// an interaction, a scroll, or an input change.
	TypeIncremental Type = 3
	// TypeMeta carries page metadata such as the URL and viewport size.
	TypeMeta Type = 4
	// TypeCustom wraps application events: page views, tracked errors,
	// session boundaries.
	TypeCustom Type = 5
)

// Source tags the subsystem that produced an incremental record.
type Source int

const (
	SourceMutation         Source = 0
	SourceMouseMove        Source = 1
	SourceMouseInteraction Source = 2
	SourceScroll           Source = 3
	SourceInput            Source = 5
)

// Mouse interaction subtypes carried in incremental payloads.
const (
	InteractionMouseUp     = 0
	InteractionMouseDown   = 1
	InteractionDoubleClick = 2
	InteractionContextMenu = 3
	InteractionFocus       = 6
)

// Custom event tags emitted by the capture controller.
const (
	TagSessionEnd = "session_end"
	TagPageView   = "page_view"
	TagError      = "error"
)

// Record is one captured observation. Timestamp is Unix milliseconds; the
// payload layout depends on Type.
type Record struct {
	Type      Type            `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Point is a viewport coordinate pair.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IncrementalData is the decoded payload of an incremental record. Only
// the fields relevant to the record's source are populated.
type IncrementalData struct {
	Source    Source  `json:"source"`
	Type      int     `json:"type,omitempty"`
	ID        int     `json:"id,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Positions []Point `json:"positions,omitempty"`
	Text      string  `json:"text,omitempty"`
	IsChecked bool    `json:"isChecked,omitempty"`
}

// CustomData is the decoded payload of a custom record.
type CustomData struct {
	Tag     string          `json:"tag"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SnapshotData is the decoded payload of a full snapshot. The serialized
// node tree stays opaque; only the structure needed for validation and
// reconstruction is surfaced.
type SnapshotData struct {
	Node          json.RawMessage `json:"node,omitempty"`
	InitialOffset *Point          `json:"initialOffset,omitempty"`
}

// MetaData is the decoded payload of a meta record.
type MetaData struct {
	Href   string `json:"href"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// SessionEndPayload is the payload of the session_end custom event.
type SessionEndPayload struct {
	SessionID  string `json:"session_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason"`
}

// PageViewPayload is the payload of the page_view custom event.
type PageViewPayload struct {
	URL      string `json:"url"`
	Referrer string `json:"referrer,omitempty"`
	Title    string `json:"title,omitempty"`
}

// ErrorPayload is the payload of the error custom event.
type ErrorPayload struct {
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// New builds a record with the payload marshaled through the cycle-safe
// encoder. A payload that cannot be encoded at all degrades to a record
// with no data rather than failing capture.
func New(typ Type, timestamp int64, payload any) Record {
	rec := Record{Type: typ, Timestamp: timestamp}
	if payload == nil {
		return rec
	}
	data, err := MarshalSafe(payload)
	if err != nil {
		return rec
	}
	rec.Data = data
	return rec
}

// NewCustom builds a custom record for the given tag.
func NewCustom(timestamp int64, tag string, payload any) Record {
	var raw json.RawMessage
	if payload != nil {
		if data, err := MarshalSafe(payload); err == nil {
			raw = data
		}
	}
	return New(TypeCustom, timestamp, CustomData{Tag: tag, Payload: raw})
}

// Incremental decodes the payload of an incremental record.
func (r Record) Incremental() (IncrementalData, error) {
	if r.Type != TypeIncremental {
		return IncrementalData{}, fmt.Errorf("decode incremental: record type is %d", r.Type)
	}
	var data IncrementalData
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return IncrementalData{}, fmt.Errorf("decode incremental: %w", err)
	}
	return data, nil
}

// Custom decodes the payload of a custom record.
func (r Record) Custom() (CustomData, error) {
	if r.Type != TypeCustom {
		return CustomData{}, fmt.Errorf("decode custom: record type is %d", r.Type)
	}
	var data CustomData
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return CustomData{}, fmt.Errorf("decode custom: %w", err)
	}
	return data, nil
}

// Snapshot decodes the payload of a full snapshot record.
func (r Record) Snapshot() (SnapshotData, error) {
	if r.Type != TypeFullSnapshot {
		return SnapshotData{}, fmt.Errorf("decode snapshot: record type is %d", r.Type)
	}
	var data SnapshotData
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return SnapshotData{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return data, nil
}

// Meta decodes the payload of a meta record.
func (r Record) Meta() (MetaData, error) {
	if r.Type != TypeMeta {
		return MetaData{}, fmt.Errorf("decode meta: record type is %d", r.Type)
	}
	var data MetaData
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return MetaData{}, fmt.Errorf("decode meta: %w", err)
	}
	return data, nil
}

// IsFullSnapshot reports whether the record resets reconstruction state.
func (r Record) IsFullSnapshot() bool {
	return r.Type == TypeFullSnapshot
}

func (t Type) String() string {
	switch t {
	case TypeFullSnapshot:
		return "full_snapshot"
	case TypeIncremental:
		return "incremental"
	case TypeMeta:
		return "meta"
	case TypeCustom:
		return "custom"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

func (s Source) String() string {
	switch s {
	case SourceMutation:
		return "mutation"
	case SourceMouseMove:
		return "mousemove"
	case SourceMouseInteraction:
		return "interaction"
	case SourceScroll:
		return "scroll"
	case SourceInput:
		return "input"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}
