package api

import (
	"context"
	"testing"
	"time"

	"rewind/internal/record"
	"rewind/internal/store"
)

type fakeReader struct {
	projects  []*store.Project
	sessions  map[int64][]*store.SessionRow
	snapshots map[int64][]record.Record
	events    map[int64][]record.Record
	removed   []string
}

func (f *fakeReader) ListProjects(ctx context.Context) ([]*store.Project, error) {
	return f.projects, nil
}

func (f *fakeReader) ListSessions(ctx context.Context, projectID int64) ([]*store.SessionRow, error) {
	return f.sessions[projectID], nil
}

func (f *fakeReader) Session(ctx context.Context, projectID int64, sessionID string) (*store.SessionRow, error) {
	for _, row := range f.sessions[projectID] {
		if row.SessionID == sessionID {
			return row, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeReader) SnapshotRecords(ctx context.Context, rowID int64) ([]record.Record, error) {
	return f.snapshots[rowID], nil
}

func (f *fakeReader) EventRecords(ctx context.Context, rowID int64) ([]record.Record, error) {
	return f.events[rowID], nil
}

func (f *fakeReader) DeleteSession(ctx context.Context, projectID int64, sessionID string) error {
	f.removed = append(f.removed, sessionID)
	return nil
}

func (f *fakeReader) Counts(ctx context.Context) (int64, int64, int64, error) {
	return 1, 2, 3, nil
}

func TestSessionServiceDescribeMergesActivity(t *testing.T) {
	reader := &fakeReader{
		sessions: map[int64][]*store.SessionRow{
			1: {{
				RowID:      10,
				ProjectID:  1,
				SessionID:  "sess_1",
				StartedAt:  time.Now(),
				DurationMS: 5000,
			}},
		},
		snapshots: map[int64][]record.Record{
			10: {
				record.New(record.TypeFullSnapshot, 1000, record.SnapshotData{}),
				record.New(record.TypeIncremental, 3000, record.IncrementalData{Source: record.SourceScroll}),
			},
		},
		events: map[int64][]record.Record{
			10: {record.NewCustom(2000, record.TagPageView, record.PageViewPayload{URL: "https://example.com"})},
		},
	}

	service := NewSessionService(reader)
	detail, err := service.Describe(context.Background(), 1, "sess_1")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if len(detail.Activity) != 3 {
		t.Fatalf("activity rows = %+v", detail.Activity)
	}

	// The 2000ms event interleaves between the two snapshot records.
	labels := []string{detail.Activity[0].Label, detail.Activity[1].Label, detail.Activity[2].Label}
	want := []string{"Page Loaded", "Page View", "Scrolled"}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels = %v, want %v", labels, want)
		}
	}
}

func TestSessionServiceDescribeMissing(t *testing.T) {
	service := NewSessionService(&fakeReader{})
	if _, err := service.Describe(context.Background(), 1, "sess_nope"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestSessionServiceRemoveAndOverview(t *testing.T) {
	reader := &fakeReader{}
	service := NewSessionService(reader)

	if err := service.Remove(context.Background(), 1, "sess_1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(reader.removed) != 1 || reader.removed[0] != "sess_1" {
		t.Fatalf("removed = %v", reader.removed)
	}

	overview, err := service.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if overview.Projects != 1 || overview.Sessions != 2 || overview.Batches != 3 {
		t.Fatalf("overview = %+v", overview)
	}
}

func TestSessionServiceProjects(t *testing.T) {
	reader := &fakeReader{
		projects: []*store.Project{{ID: 1, SDKKey: "key-a", Name: "Checkout"}},
		sessions: map[int64][]*store.SessionRow{
			1: {{SessionID: "sess_1"}, {SessionID: "sess_2"}},
		},
	}
	service := NewSessionService(reader)
	projects, err := service.Projects(context.Background())
	if err != nil {
		t.Fatalf("Projects: %v", err)
	}
	if len(projects) != 1 || projects[0].SessionCount != 2 || projects[0].SDKKey != "key-a" {
		t.Fatalf("projects = %+v", projects)
	}
}
