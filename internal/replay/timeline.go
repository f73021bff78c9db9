package replay

import (
	"sort"
	"time"

	"rewind/internal/record"
)

// Timeline is the derived, playback-ready view of a session: normalized
// records plus the duration math the player and the activity sidebar
// share. Rebuilt from stored batches every time a session loads.
type Timeline struct {
	Records  []record.Record
	Duration time.Duration

	start int64
}

// Gap is a stretch of playback with no recorded activity.
type Gap struct {
	Start time.Duration
	End   time.Duration
}

// NewTimeline normalizes records into a timeline. minDuration is the
// placeholder applied when the record set spans no measurable time.
func NewTimeline(records []record.Record, minDuration time.Duration) (*Timeline, error) {
	normalized, err := Normalize(records)
	if err != nil {
		return nil, err
	}
	return newTimelineUnchecked(normalized, minDuration), nil
}

func newTimelineUnchecked(normalized []record.Record, minDuration time.Duration) *Timeline {
	start := normalized[0].Timestamp
	end := normalized[0].Timestamp
	for _, rec := range normalized {
		if rec.Timestamp > end {
			end = rec.Timestamp
		}
		if rec.Timestamp < start {
			start = rec.Timestamp
		}
	}

	duration := time.Duration(end-start) * time.Millisecond
	if duration <= 0 {
		duration = minDuration
	}
	return &Timeline{Records: normalized, Duration: duration, start: start}
}

// Offset converts an absolute record timestamp into a playback offset.
func (t *Timeline) Offset(timestamp int64) time.Duration {
	if timestamp <= t.start {
		return 0
	}
	return time.Duration(timestamp-t.start) * time.Millisecond
}

// IndexAt returns the index of the last record at or before the given
// playback offset.
func (t *Timeline) IndexAt(offset time.Duration) int {
	target := t.start + offset.Milliseconds()
	idx := sort.Search(len(t.Records), func(i int) bool {
		return t.Records[i].Timestamp > target
	})
	if idx == 0 {
		return 0
	}
	return idx - 1
}

// Gaps returns every stretch between consecutive records longer than
// threshold, in playback order. Players fast-forward through these.
func (t *Timeline) Gaps(threshold time.Duration) []Gap {
	if threshold <= 0 {
		return nil
	}
	var gaps []Gap
	for i := 1; i < len(t.Records); i++ {
		delta := time.Duration(t.Records[i].Timestamp-t.Records[i-1].Timestamp) * time.Millisecond
		if delta > threshold {
			gaps = append(gaps, Gap{
				Start: t.Offset(t.Records[i-1].Timestamp),
				End:   t.Offset(t.Records[i].Timestamp),
			})
		}
	}
	return gaps
}

// GapAt returns the gap containing the given offset, if any.
func (t *Timeline) GapAt(offset time.Duration, threshold time.Duration) (Gap, bool) {
	for _, gap := range t.Gaps(threshold) {
		if offset >= gap.Start && offset < gap.End {
			return gap, true
		}
	}
	return Gap{}, false
}
