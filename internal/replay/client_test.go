package replay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rewind/internal/record"
)

func serveSession(t *testing.T, session SessionInfo, snapshots, events any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"session":   session,
			"snapshots": snapshots,
			"events":    events,
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
}

func TestLoadBuildsTimeline(t *testing.T) {
	records := []record.Record{
		fullSnapshot(1000),
		inc(2000, record.SourceScroll),
		inc(3000, record.SourceMouseMove),
	}
	server := serveSession(t, SessionInfo{SessionID: "sess_1", ProjectID: 1}, records, []record.Record{})
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	loaded, err := client.Load(context.Background(), 1, "sess_1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Media != nil {
		t.Fatal("unexpected media contract")
	}
	if loaded.Timeline == nil || len(loaded.Timeline.Records) != 3 {
		t.Fatalf("timeline = %+v", loaded.Timeline)
	}
	if loaded.Timeline.Duration != 2*time.Second {
		t.Fatalf("duration = %v", loaded.Timeline.Duration)
	}
}

func TestLoadHandlesSnapshotsAsString(t *testing.T) {
	records := []record.Record{fullSnapshot(100), inc(700, record.SourceInput)}
	raw, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	server := serveSession(t, SessionInfo{SessionID: "sess_1"}, string(raw), nil)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	loaded, err := client.Load(context.Background(), 1, "sess_1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Timeline.Records) != 2 {
		t.Fatalf("string snapshots not decoded: %+v", loaded.Timeline.Records)
	}
}

func TestLoadVideoFallbackSkipsReconstruction(t *testing.T) {
	session := SessionInfo{
		SessionID:  "sess_vid",
		HasVideo:   true,
		VideoURL:   "https://cdn.example.com/sess_vid.mp4",
		DurationMS: 42000,
	}
	// Snapshots would be unplayable; the video path must never look.
	server := serveSession(t, session, []record.Record{}, nil)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	loaded, err := client.Load(context.Background(), 1, "sess_vid")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Media == nil || loaded.Media.URL != session.VideoURL || loaded.Media.DurationMS != 42000 {
		t.Fatalf("media = %+v", loaded.Media)
	}
	if loaded.Timeline != nil {
		t.Fatal("video session built a timeline")
	}
}

func TestLoadSurfacesTerminalErrors(t *testing.T) {
	cases := []struct {
		name      string
		snapshots []record.Record
		want      error
	}{
		{"no snapshot", []record.Record{inc(1, record.SourceScroll), inc(2, record.SourceInput)}, ErrNoFullSnapshot},
		{"too short", []record.Record{fullSnapshot(1)}, ErrTooShort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := serveSession(t, SessionInfo{SessionID: "sess_x"}, tc.snapshots, nil)
			defer server.Close()

			client := NewClient(ClientOptions{BaseURL: server.URL})
			if _, err := client.Load(context.Background(), 1, "sess_x"); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoadReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	_, err := client.Load(context.Background(), 9, "sess_missing")
	if err == nil {
		t.Fatal("expected error on 404")
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("err = %v", err)
	}
}
