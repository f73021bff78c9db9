package api

import (
	"context"
	"sort"

	"rewind/internal/record"
	"rewind/internal/store"
	"rewind/internal/timeline"
)

// SessionReader abstracts the store interactions the API queries need.
type SessionReader interface {
	ListProjects(ctx context.Context) ([]*store.Project, error)
	ListSessions(ctx context.Context, projectID int64) ([]*store.SessionRow, error)
	Session(ctx context.Context, projectID int64, sessionID string) (*store.SessionRow, error)
	SnapshotRecords(ctx context.Context, sessionRowID int64) ([]record.Record, error)
	EventRecords(ctx context.Context, sessionRowID int64) ([]record.Record, error)
	DeleteSession(ctx context.Context, projectID int64, sessionID string) error
	Counts(ctx context.Context) (projects, sessions, batches int64, err error)
}

// SessionService exposes read-side session operations returning API DTOs.
type SessionService struct {
	store SessionReader
}

// NewSessionService constructs a SessionService around the provided reader.
func NewSessionService(store SessionReader) *SessionService {
	if store == nil {
		return nil
	}
	return &SessionService{store: store}
}

// List returns a project's sessions, most recently active first.
func (s *SessionService) List(ctx context.Context, projectID int64) ([]SessionSummary, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	rows, err := s.store.ListSessions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return FromSessionRows(rows), nil
}

// Projects lists every known project with its session count.
func (s *SessionService) Projects(ctx context.Context) ([]ProjectSummary, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]ProjectSummary, 0, len(projects))
	for _, project := range projects {
		sessions, err := s.store.ListSessions(ctx, project.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ProjectSummary{
			ID:           project.ID,
			SDKKey:       project.SDKKey,
			Name:         project.Name,
			SessionCount: len(sessions),
		})
	}
	return summaries, nil
}

// Describe fetches one session with its classified activity timeline.
// Snapshot and event records are merged in timestamp order before
// classification so the timeline reads the way the session happened.
func (s *SessionService) Describe(ctx context.Context, projectID int64, sessionID string) (*SessionDetail, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	row, err := s.store.Session(ctx, projectID, sessionID)
	if err != nil {
		return nil, err
	}

	detail := &SessionDetail{
		SessionSummary: FromSessionRow(row),
		VideoURL:       row.VideoURL,
		DeviceInfo:     row.DeviceInfo,
		UserProperties: row.UserProperties,
	}

	snapshots, err := s.store.SnapshotRecords(ctx, row.RowID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.EventRecords(ctx, row.RowID)
	if err != nil {
		return nil, err
	}

	merged := append(snapshots, events...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	detail.Activity = FromActivity(timeline.Build(merged))
	return detail, nil
}

// Remove deletes a session and everything stored under it.
func (s *SessionService) Remove(ctx context.Context, projectID int64, sessionID string) error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.DeleteSession(ctx, projectID, sessionID)
}

// Overview reports store totals.
func (s *SessionService) Overview(ctx context.Context) (StoreOverview, error) {
	if s == nil || s.store == nil {
		return StoreOverview{}, nil
	}
	projects, sessions, batches, err := s.store.Counts(ctx)
	if err != nil {
		return StoreOverview{}, err
	}
	return StoreOverview{Projects: projects, Sessions: sessions, Batches: batches}, nil
}
