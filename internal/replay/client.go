package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rewind/internal/logging"
	"rewind/internal/record"
)

// SessionInfo is the stored session metadata as the retrieval endpoint
// returns it.
type SessionInfo struct {
	SessionID      string          `json:"id"`
	ProjectID      int64           `json:"project_id"`
	DeviceInfo     json.RawMessage `json:"device,omitempty"`
	UserProperties json.RawMessage `json:"user_properties,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
	EndedAt        *time.Time      `json:"ended_at,omitempty"`
	DurationMS     int64           `json:"duration_ms"`
	HasVideo       bool            `json:"has_video,omitempty"`
	VideoURL       string          `json:"video_url,omitempty"`
}

// MediaContract is the video fallback: sessions recorded as time-coded
// video instead of DOM records skip reconstruction and hand the caller a
// media source to seek directly.
type MediaContract struct {
	URL        string
	DurationMS int64
}

// Loaded is a session ready for playback. Exactly one of Timeline and
// Media is set.
type Loaded struct {
	Session  SessionInfo
	Timeline *Timeline
	Media    *MediaContract
	Events   []record.Record
}

// ClientOptions configures a replay Client.
type ClientOptions struct {
	BaseURL     string
	Timeout     time.Duration
	MinDuration time.Duration
	Logger      *slog.Logger
}

// Client loads sessions from the store for replay.
type Client struct {
	baseURL     string
	http        *http.Client
	minDuration time.Duration
	logger      *slog.Logger
}

func NewClient(opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	minDuration := opts.MinDuration
	if minDuration <= 0 {
		minDuration = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		http:        &http.Client{Timeout: timeout},
		minDuration: minDuration,
		logger:      logging.WithComponent(logger, "replay"),
	}
}

type sessionEnvelope struct {
	Session   SessionInfo     `json:"session"`
	Snapshots json.RawMessage `json:"snapshots"`
	Events    json.RawMessage `json:"events"`
}

// Load fetches and reconstructs one session. ErrNoFullSnapshot and
// ErrTooShort come back unwrapped so callers can redirect on them.
func (c *Client) Load(ctx context.Context, projectID int64, sessionID string) (*Loaded, error) {
	url := fmt.Sprintf("%s/api/sessions/%d/%s", c.baseURL, projectID, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch session %s: %w", sessionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch session %s: status %d: %s", sessionID, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var envelope sessionEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}

	return c.assemble(envelope)
}

func (c *Client) assemble(envelope sessionEnvelope) (*Loaded, error) {
	loaded := &Loaded{
		Session: envelope.Session,
		Events:  DecodeLenient(envelope.Events),
	}

	if envelope.Session.HasVideo && envelope.Session.VideoURL != "" {
		loaded.Media = &MediaContract{
			URL:        envelope.Session.VideoURL,
			DurationMS: envelope.Session.DurationMS,
		}
		c.logger.Info("session uses video recording, skipping reconstruction",
			logging.String("session", envelope.Session.SessionID))
		return loaded, nil
	}

	records := DecodeLenient(envelope.Snapshots)
	timeline, err := NewTimeline(records, c.minDuration)
	if err != nil {
		return nil, err
	}
	loaded.Timeline = timeline
	return loaded, nil
}
