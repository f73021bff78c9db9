package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rewind/internal/record"
)

// ErrBadIngest marks requests the store refuses outright rather than
// storing partially.
var ErrBadIngest = errors.New("invalid ingest request")

// IngestSnapshots stores one snapshot batch, creating the project and
// session on first contact. The payload is persisted verbatim.
func (s *Store) IngestSnapshots(ctx context.Context, req SnapshotIngest) (Ack, error) {
	if err := validateIngestKeys(req.SDKKey, req.SessionID); err != nil {
		return Ack{}, err
	}
	if len(bytes.TrimSpace(req.Snapshots)) == 0 {
		return Ack{}, fmt.Errorf("%w: empty snapshots payload", ErrBadIngest)
	}

	now := time.Now().UTC()
	projectID, err := s.findOrCreateProject(ctx, req.SDKKey, now)
	if err != nil {
		return Ack{}, err
	}
	sessionRowID, err := s.findOrCreateSession(ctx, projectID, req.SessionID, now)
	if err != nil {
		return Ack{}, err
	}

	count := req.SnapshotCount
	if count <= 0 {
		if records, decodeErr := record.DecodeRecords(req.Snapshots); decodeErr == nil {
			count = len(records)
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshot_batches (session_rowid, payload, record_count, is_initial, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		sessionRowID, string(req.Snapshots), count, boolToInt(req.IsInitialSnapshot), now.Format(time.RFC3339Nano))
	if err != nil {
		return Ack{}, fmt.Errorf("insert snapshot batch: %w", err)
	}

	if err := s.touchSession(ctx, sessionRowID, now); err != nil {
		return Ack{}, err
	}
	return Ack{SessionID: req.SessionID, ProjectID: projectID}, nil
}

// IngestEvents stores one event batch. Device info and user properties
// are recorded the first time they arrive for a session. A session_end
// event in the batch closes the session with its reported duration.
func (s *Store) IngestEvents(ctx context.Context, req EventIngest) (Ack, error) {
	if err := validateIngestKeys(req.SDKKey, req.SessionID); err != nil {
		return Ack{}, err
	}
	if len(bytes.TrimSpace(req.Events)) == 0 {
		return Ack{}, fmt.Errorf("%w: empty events payload", ErrBadIngest)
	}

	now := time.Now().UTC()
	projectID, err := s.findOrCreateProject(ctx, req.SDKKey, now)
	if err != nil {
		return Ack{}, err
	}
	sessionRowID, err := s.findOrCreateSession(ctx, projectID, req.SessionID, now)
	if err != nil {
		return Ack{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (session_rowid, payload, created_at) VALUES (?, ?, ?)`,
		sessionRowID, string(req.Events), now.Format(time.RFC3339Nano))
	if err != nil {
		return Ack{}, fmt.Errorf("insert events: %w", err)
	}

	if len(req.DeviceInfo) > 0 {
		_, err = s.db.ExecContext(ctx,
			`UPDATE sessions SET device_info = ? WHERE id = ? AND (device_info IS NULL OR device_info = '')`,
			string(req.DeviceInfo), sessionRowID)
		if err != nil {
			return Ack{}, fmt.Errorf("record device info: %w", err)
		}
	}
	if len(req.UserProperties) > 0 {
		_, err = s.db.ExecContext(ctx,
			`UPDATE sessions SET user_properties = ? WHERE id = ? AND (user_properties IS NULL OR user_properties = '')`,
			string(req.UserProperties), sessionRowID)
		if err != nil {
			return Ack{}, fmt.Errorf("record user properties: %w", err)
		}
	}

	if err := s.touchSession(ctx, sessionRowID, now); err != nil {
		return Ack{}, err
	}
	if err := s.applySessionEnd(ctx, sessionRowID, req.Events, now); err != nil {
		return Ack{}, err
	}
	return Ack{SessionID: req.SessionID, ProjectID: projectID}, nil
}

func validateIngestKeys(sdkKey, sessionID string) error {
	if strings.TrimSpace(sdkKey) == "" {
		return fmt.Errorf("%w: missing sdk_key", ErrBadIngest)
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: missing session_id", ErrBadIngest)
	}
	return nil
}

func (s *Store) findOrCreateProject(ctx context.Context, sdkKey string, now time.Time) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM projects WHERE sdk_key = ?`, sdkKey).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("look up project: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (sdk_key, created_at) VALUES (?, ?)
         ON CONFLICT(sdk_key) DO NOTHING`,
		sdkKey, now.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("create project: %w", err)
	}
	if inserted, _ := res.RowsAffected(); inserted > 0 {
		return res.LastInsertId()
	}
	// Lost the race to a concurrent ingest; the row exists now.
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM projects WHERE sdk_key = ?`, sdkKey).Scan(&id); err != nil {
		return 0, fmt.Errorf("reread project: %w", err)
	}
	return id, nil
}

func (s *Store) findOrCreateSession(ctx context.Context, projectID int64, sessionID string, now time.Time) (int64, error) {
	var rowID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM sessions WHERE project_id = ? AND session_id = ?`,
		projectID, sessionID).Scan(&rowID)
	if err == nil {
		return rowID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("look up session: %w", err)
	}

	timestamp := now.Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (project_id, session_id, started_at, last_activity_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(project_id, session_id) DO NOTHING`,
		projectID, sessionID, timestamp, timestamp)
	if err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}
	if inserted, _ := res.RowsAffected(); inserted > 0 {
		return res.LastInsertId()
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM sessions WHERE project_id = ? AND session_id = ?`,
		projectID, sessionID).Scan(&rowID); err != nil {
		return 0, fmt.Errorf("reread session: %w", err)
	}
	return rowID, nil
}

func (s *Store) touchSession(ctx context.Context, sessionRowID int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano), sessionRowID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// applySessionEnd scans an incoming event batch for the session_end
// custom event and closes the session with the reported duration.
func (s *Store) applySessionEnd(ctx context.Context, sessionRowID int64, events json.RawMessage, now time.Time) error {
	records, err := record.DecodeRecords(events)
	if err != nil {
		// Undecodable events are stored as-is; they just cannot close the
		// session.
		return nil
	}
	for _, rec := range records {
		custom, err := rec.Custom()
		if err != nil || custom.Tag != record.TagSessionEnd {
			continue
		}
		var payload record.SessionEndPayload
		_ = json.Unmarshal(custom.Payload, &payload)
		_, err = s.db.ExecContext(ctx,
			`UPDATE sessions SET ended_at = ?, duration_ms = ? WHERE id = ? AND ended_at IS NULL`,
			now.Format(time.RFC3339Nano), payload.DurationMS, sessionRowID)
		if err != nil {
			return fmt.Errorf("close session: %w", err)
		}
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
