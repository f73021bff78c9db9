// Package timeline classifies captured records into the human-readable
// activity entries shown alongside replay. Classification is total: every
// record maps to exactly one entry, so the sidebar count always matches
// the record count.
package timeline

import (
	"encoding/json"
	"time"

	"rewind/internal/record"
)

// Bucket is the filter view an entry belongs to. The three buckets are
// mutually exclusive.
type Bucket string

const (
	BucketEvents   Bucket = "events"
	BucketGestures Bucket = "gestures"
	BucketScreens  Bucket = "screens"
)

// Entry is one classified activity item.
type Entry struct {
	Label     string
	Bucket    Bucket
	Timestamp int64

	// Pointer coordinates when the source record carries them.
	X, Y   float64
	HasXY  bool
	NodeID int
	Text   string
}

// Classify maps a record to its activity entry by structural shape alone.
// Malformed payloads land in the generic bucket rather than erroring.
func Classify(rec record.Record) Entry {
	switch rec.Type {
	case record.TypeFullSnapshot:
		return Entry{Label: "Page Loaded", Bucket: BucketScreens, Timestamp: rec.Timestamp}
	case record.TypeIncremental:
		return classifyIncremental(rec)
	case record.TypeMeta:
		return classifyMeta(rec)
	case record.TypeCustom:
		return classifyCustom(rec)
	}
	return fallback(rec)
}

func classifyIncremental(rec record.Record) Entry {
	data, err := rec.Incremental()
	if err != nil {
		return fallback(rec)
	}
	switch data.Source {
	case record.SourceMutation:
		return Entry{Label: "Page Changed", Bucket: BucketEvents, Timestamp: rec.Timestamp}
	case record.SourceMouseMove:
		entry := Entry{Label: "Mouse Moved", Bucket: BucketGestures, Timestamp: rec.Timestamp}
		if n := len(data.Positions); n > 0 {
			entry.X = data.Positions[n-1].X
			entry.Y = data.Positions[n-1].Y
			entry.HasXY = true
		}
		return entry
	case record.SourceMouseInteraction:
		return classifyInteraction(rec, data)
	case record.SourceScroll:
		return Entry{Label: "Scrolled", Bucket: BucketGestures, Timestamp: rec.Timestamp, NodeID: data.ID}
	case record.SourceInput:
		label := "Input Changed"
		if data.Text != "" {
			label = "User typed in input"
		}
		return Entry{
			Label:     label,
			Bucket:    BucketEvents,
			Timestamp: rec.Timestamp,
			NodeID:    data.ID,
			Text:      data.Text,
		}
	}
	return fallback(rec)
}

func classifyInteraction(rec record.Record, data record.IncrementalData) Entry {
	entry := Entry{
		Bucket:    BucketGestures,
		Timestamp: rec.Timestamp,
		X:         data.X,
		Y:         data.Y,
		HasXY:     true,
		NodeID:    data.ID,
	}
	switch data.Type {
	case record.InteractionMouseUp, record.InteractionMouseDown:
		entry.Label = "Clicked Element"
	case record.InteractionDoubleClick:
		entry.Label = "Double Clicked Element"
	case record.InteractionContextMenu:
		entry.Label = "Right Clicked Element"
	case record.InteractionFocus:
		entry.Label = "Element Focused"
		entry.Bucket = BucketEvents
		entry.HasXY = false
	default:
		entry.Label = "Mouse Interaction"
	}
	return entry
}

func classifyMeta(rec record.Record) Entry {
	entry := Entry{Label: "Page Navigation", Bucket: BucketEvents, Timestamp: rec.Timestamp}
	if meta, err := rec.Meta(); err == nil {
		entry.Text = meta.Href
	}
	return entry
}

func classifyCustom(rec record.Record) Entry {
	data, err := rec.Custom()
	if err != nil {
		return fallback(rec)
	}
	entry := Entry{Bucket: BucketEvents, Timestamp: rec.Timestamp}
	switch data.Tag {
	case record.TagPageView:
		entry.Label = "Page View"
		var page record.PageViewPayload
		if json.Unmarshal(data.Payload, &page) == nil {
			entry.Text = page.URL
		}
	case "button_click":
		entry.Label = "Button Clicked"
	case "form_submit":
		entry.Label = "Form Submitted"
	case record.TagSessionEnd:
		entry.Label = "Session Ended"
	case record.TagError:
		entry.Label = "Error Tracked"
		var payload record.ErrorPayload
		if json.Unmarshal(data.Payload, &payload) == nil {
			entry.Text = payload.Message
		}
	default:
		entry.Label = "Custom Event"
		entry.Text = data.Tag
	}
	return entry
}

// fallback catches unknown shapes. Coordinates and node ids survive when
// a loose probe finds them, so even unrecognized records stay useful.
func fallback(rec record.Record) Entry {
	entry := Entry{Label: "Activity", Bucket: BucketEvents, Timestamp: rec.Timestamp}
	var probe struct {
		X  *float64 `json:"x"`
		Y  *float64 `json:"y"`
		ID int      `json:"id"`
	}
	if json.Unmarshal(rec.Data, &probe) == nil {
		if probe.X != nil && probe.Y != nil {
			entry.X = *probe.X
			entry.Y = *probe.Y
			entry.HasXY = true
		}
		entry.NodeID = probe.ID
	}
	return entry
}

// Activity is the classified view of a full record stream.
type Activity struct {
	Entries []Entry

	start int64
}

// Build classifies every record in order. The entry count always equals
// the record count.
func Build(records []record.Record) Activity {
	activity := Activity{Entries: make([]Entry, 0, len(records))}
	for i, rec := range records {
		if i == 0 || rec.Timestamp < activity.start {
			activity.start = rec.Timestamp
		}
		activity.Entries = append(activity.Entries, Classify(rec))
	}
	return activity
}

// Filter returns the entries in one bucket, recomputed on each call so a
// view switch never works from a stale slice.
func (a Activity) Filter(bucket Bucket) []Entry {
	var out []Entry
	for _, entry := range a.Entries {
		if entry.Bucket == bucket {
			out = append(out, entry)
		}
	}
	return out
}

// SeekOffset maps an entry back to its playback offset, for handing to a
// player seek.
func (a Activity) SeekOffset(entry Entry) time.Duration {
	if entry.Timestamp <= a.start {
		return 0
	}
	return time.Duration(entry.Timestamp-a.start) * time.Millisecond
}
