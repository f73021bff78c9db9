package replay

import (
	"rewind/internal/record"
)

// CursorTracker reconstructs pointer position during playback. Position
// is only implicitly present inside mouse-bearing incrementals, so the
// tracker scans backward from the playhead over a bounded window and
// holds the last known position when the window has nothing to offer.
type CursorTracker struct {
	records []record.Record
	window  int

	last    record.Point
	hasLast bool
}

// NewCursorTracker builds a tracker over normalized records. window
// bounds the backward scan per update.
func NewCursorTracker(records []record.Record, window int) *CursorTracker {
	if window <= 0 {
		window = 200
	}
	return &CursorTracker{records: records, window: window}
}

// Update scans backward from the given record index and returns the
// cursor position to draw. The boolean reports whether any position has
// ever been seen.
func (c *CursorTracker) Update(index int) (record.Point, bool) {
	if index >= len(c.records) {
		index = len(c.records) - 1
	}
	floor := index - c.window
	if floor < 0 {
		floor = -1
	}
	for i := index; i > floor; i-- {
		if point, ok := cursorPoint(c.records[i]); ok {
			c.last = point
			c.hasLast = true
			break
		}
	}
	return c.last, c.hasLast
}

// Position returns the last known cursor position without scanning.
func (c *CursorTracker) Position() (record.Point, bool) {
	return c.last, c.hasLast
}

// cursorPoint extracts a pointer position from a record: the final entry
// of a mouse-move position trail, or the coordinates of a mouse
// interaction.
func cursorPoint(rec record.Record) (record.Point, bool) {
	if rec.Type != record.TypeIncremental {
		return record.Point{}, false
	}
	data, err := rec.Incremental()
	if err != nil {
		return record.Point{}, false
	}
	switch data.Source {
	case record.SourceMouseMove:
		if len(data.Positions) > 0 {
			return data.Positions[len(data.Positions)-1], true
		}
		if data.X != 0 || data.Y != 0 {
			return record.Point{X: data.X, Y: data.Y}, true
		}
	case record.SourceMouseInteraction:
		if data.X != 0 || data.Y != 0 {
			return record.Point{X: data.X, Y: data.Y}, true
		}
	}
	return record.Point{}, false
}
