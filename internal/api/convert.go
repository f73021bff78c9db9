package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rewind/internal/store"
	"rewind/internal/timeline"
)

// FromSessionRow converts a stored session into its summary DTO.
func FromSessionRow(row *store.SessionRow) SessionSummary {
	if row == nil {
		return SessionSummary{}
	}
	summary := SessionSummary{
		SessionID:  row.SessionID,
		ProjectID:  row.ProjectID,
		Duration:   FormatDuration(row.DurationMS),
		DurationMS: row.DurationMS,
		Active:     row.EndedAt == nil,
		Recording:  RecordingDOM,
		Device:     DeviceSummary(row.DeviceInfo),
		BatchCount: row.BatchCount,
		EventCount: row.EventCount,
	}
	if row.HasVideo {
		summary.Recording = RecordingVideo
	}
	if !row.StartedAt.IsZero() {
		summary.StartedAt = row.StartedAt.Format(dateTimeFormat)
	}
	if !row.LastActivityAt.IsZero() {
		summary.LastActivityAt = row.LastActivityAt.Format(dateTimeFormat)
	}
	if row.EndedAt != nil && !row.EndedAt.IsZero() {
		summary.EndedAt = row.EndedAt.Format(dateTimeFormat)
	}
	return summary
}

// FromSessionRows converts a list of stored sessions, preserving order.
func FromSessionRows(rows []*store.SessionRow) []SessionSummary {
	if len(rows) == 0 {
		return nil
	}
	summaries := make([]SessionSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, FromSessionRow(row))
	}
	return summaries
}

// FromActivity converts classified activity into display rows, offsets
// formatted relative to session start.
func FromActivity(activity timeline.Activity) []ActivityEntry {
	if len(activity.Entries) == 0 {
		return nil
	}
	entries := make([]ActivityEntry, 0, len(activity.Entries))
	for _, entry := range activity.Entries {
		entries = append(entries, ActivityEntry{
			Offset: FormatOffset(activity.SeekOffset(entry)),
			Label:  entry.Label,
			Bucket: string(entry.Bucket),
			Detail: activityDetail(entry),
		})
	}
	return entries
}

func activityDetail(entry timeline.Entry) string {
	var parts []string
	if entry.Text != "" {
		parts = append(parts, entry.Text)
	}
	if entry.HasXY {
		parts = append(parts, fmt.Sprintf("(%d, %d)", int(entry.X), int(entry.Y)))
	}
	if entry.NodeID != 0 {
		parts = append(parts, fmt.Sprintf("node %d", entry.NodeID))
	}
	return strings.Join(parts, " ")
}

// FormatDuration renders a millisecond duration as "1h 2m 3s".
func FormatDuration(ms int64) string {
	if ms <= 0 {
		return "0s"
	}
	d := time.Duration(ms) * time.Millisecond
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	case seconds > 0:
		return fmt.Sprintf("%ds", seconds)
	default:
		return "<1s"
	}
}

// FormatOffset renders a playback offset as "m:ss" ("h:mm:ss" past an
// hour), the shape players use for scrub positions.
func FormatOffset(offset time.Duration) string {
	if offset < 0 {
		offset = 0
	}
	total := int(offset.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// DeviceSummary condenses stored device info into one display string.
func DeviceSummary(deviceJSON json.RawMessage) string {
	if len(deviceJSON) == 0 {
		return ""
	}
	var device struct {
		UserAgent string `json:"user_agent"`
		Platform  string `json:"platform"`
		Language  string `json:"language"`
	}
	if err := json.Unmarshal(deviceJSON, &device); err != nil {
		return ""
	}
	var parts []string
	if device.Platform != "" {
		parts = append(parts, device.Platform)
	}
	if device.Language != "" {
		parts = append(parts, device.Language)
	}
	if len(parts) == 0 && device.UserAgent != "" {
		return device.UserAgent
	}
	return strings.Join(parts, " / ")
}
