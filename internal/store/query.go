package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rewind/internal/record"
)

// ErrNotFound is returned for lookups of sessions or projects that do
// not exist.
var ErrNotFound = errors.New("not found")

const sessionColumns = `s.id, s.project_id, s.session_id, s.device_info, s.user_properties,
    s.started_at, s.last_activity_at, s.ended_at, s.duration_ms, s.has_video, s.video_url,
    (SELECT COUNT(1) FROM snapshot_batches b WHERE b.session_rowid = s.id),
    (SELECT COUNT(1) FROM events e WHERE e.session_rowid = s.id)`

// Session fetches one stored session.
func (s *Store) Session(ctx context.Context, projectID int64, sessionID string) (*SessionRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.project_id = ? AND s.session_id = ?`,
		projectID, sessionID)
	return scanSession(row)
}

// ListSessions returns a project's sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context, projectID int64) ([]*SessionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.project_id = ? ORDER BY s.last_activity_at DESC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*SessionRow
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// SnapshotRecords decodes and concatenates every stored snapshot batch
// for a session, in storage order.
func (s *Store) SnapshotRecords(ctx context.Context, sessionRowID int64) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM snapshot_batches WHERE session_rowid = ? ORDER BY id`,
		sessionRowID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot batches: %w", err)
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan snapshot batch: %w", err)
		}
		decoded, err := record.DecodeRecords(json.RawMessage(payload))
		if err != nil {
			return nil, fmt.Errorf("decode snapshot batch: %w", err)
		}
		records = append(records, decoded...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot batches: %w", err)
	}
	return records, nil
}

// EventRecords decodes and concatenates every stored event batch for a
// session, in storage order.
func (s *Store) EventRecords(ctx context.Context, sessionRowID int64) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE session_rowid = ? ORDER BY id`,
		sessionRowID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan events: %w", err)
		}
		decoded, err := record.DecodeRecords(json.RawMessage(payload))
		if err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		records = append(records, decoded...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// ProjectBySDKKey resolves a project from its SDK key.
func (s *Store) ProjectBySDKKey(ctx context.Context, sdkKey string) (*Project, error) {
	var p Project
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sdk_key, COALESCE(name, ''), created_at FROM projects WHERE sdk_key = ?`,
		sdkKey).Scan(&p.ID, &p.SDKKey, &p.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project for key %q: %w", sdkKey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("look up project: %w", err)
	}
	p.CreatedAt = parseStoredTime(created)
	return &p, nil
}

// ListProjects returns every known project.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sdk_key, COALESCE(name, ''), created_at FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		var created string
		if err := rows.Scan(&p.ID, &p.SDKKey, &p.Name, &created); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.CreatedAt = parseStoredTime(created)
		projects = append(projects, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// DeleteSession removes a session and everything stored under it.
func (s *Store) DeleteSession(ctx context.Context, projectID int64, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE project_id = ? AND session_id = ?`,
		projectID, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// Counts reports store totals for the status surface.
func (s *Store) Counts(ctx context.Context) (projects, sessions, batches int64, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects`).Scan(&projects); err != nil {
		return 0, 0, 0, fmt.Errorf("count projects: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions`).Scan(&sessions); err != nil {
		return 0, 0, 0, fmt.Errorf("count sessions: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM snapshot_batches`).Scan(&batches); err != nil {
		return 0, 0, 0, fmt.Errorf("count batches: %w", err)
	}
	return projects, sessions, batches, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRow, error) {
	var session SessionRow
	var device, props, videoURL sql.NullString
	var started, lastActivity string
	var ended sql.NullString
	var hasVideo int

	err := row.Scan(&session.RowID, &session.ProjectID, &session.SessionID,
		&device, &props, &started, &lastActivity, &ended,
		&session.DurationMS, &hasVideo, &videoURL,
		&session.BatchCount, &session.EventCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if device.Valid && device.String != "" {
		session.DeviceInfo = json.RawMessage(device.String)
	}
	if props.Valid && props.String != "" {
		session.UserProperties = json.RawMessage(props.String)
	}
	session.StartedAt = parseStoredTime(started)
	session.LastActivityAt = parseStoredTime(lastActivity)
	if ended.Valid && ended.String != "" {
		t := parseStoredTime(ended.String)
		session.EndedAt = &t
	}
	session.HasVideo = hasVideo != 0
	session.VideoURL = videoURL.String
	return &session, nil
}

func parseStoredTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
