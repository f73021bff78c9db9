// Package uploader delivers captured record batches to the session store
// over HTTP. It owns payload shaping, outgoing validation, optional
// compression, and the teardown beacon path. Retry policy lives with the
// caller: a failed upload returns an error and the untouched records.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rewind/internal/logging"
	"rewind/internal/record"
	"rewind/internal/session"
)

// ErrInvalidSnapshot is returned when an initial snapshot batch has no
// structurally valid full snapshot. The session start must be retried
// with a usable snapshot; there is nothing to deliver.
var ErrInvalidSnapshot = errors.New("initial snapshot has no structural content")

// Ack is the store's acknowledgment of an ingest request.
type Ack struct {
	SessionID string `json:"session_id"`
	ProjectID int64  `json:"project_id"`
}

// SnapshotBatch is one delivery of snapshot-stream records.
type SnapshotBatch struct {
	SessionID string
	Records   []record.Record
	IsInitial bool
}

// EventBatch is one delivery of application events. Device and
// UserProperties ride along on the first batch of a session only.
type EventBatch struct {
	SessionID      string
	Records        []record.Record
	Device         *session.DeviceInfo
	UserProperties map[string]any
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	SDKKey   string
	Compress bool
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Client uploads batches to a single store.
type Client struct {
	baseURL  string
	sdkKey   string
	compress bool
	http     *http.Client
	logger   *slog.Logger
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		sdkKey:   opts.SDKKey,
		compress: opts.Compress,
		http:     &http.Client{Timeout: timeout},
		logger:   logging.WithComponent(logger, "uploader"),
	}
}

type snapshotPayload struct {
	SDKKey            string          `json:"sdk_key"`
	SessionID         string          `json:"session_id"`
	Snapshots         json.RawMessage `json:"snapshots"`
	SnapshotCount     int             `json:"snapshot_count"`
	IsInitialSnapshot bool            `json:"is_initial_snapshot,omitempty"`
}

type eventPayload struct {
	SDKKey         string              `json:"sdk_key"`
	SessionID      string              `json:"session_id"`
	Events         json.RawMessage     `json:"events"`
	DeviceInfo     *session.DeviceInfo `json:"device_info,omitempty"`
	UserProperties map[string]any      `json:"user_properties,omitempty"`
}

// UploadSnapshots validates, encodes, and posts a snapshot batch. The
// error covers the whole batch; callers requeue the original records.
func (c *Client) UploadSnapshots(ctx context.Context, batch SnapshotBatch) (Ack, error) {
	valid, dropped := record.FilterValid(batch.Records)
	if dropped > 0 {
		c.logger.Warn("dropping invalid records from batch",
			logging.Int("dropped", dropped),
			logging.String("session", batch.SessionID))
	}
	if batch.IsInitial && !hasFullSnapshot(valid) {
		return Ack{}, ErrInvalidSnapshot
	}
	if len(valid) == 0 {
		return Ack{SessionID: batch.SessionID}, nil
	}

	encoded, err := record.EncodeRecords(valid, c.compress)
	if err != nil {
		return Ack{}, fmt.Errorf("encode snapshot batch: %w", err)
	}

	return c.post(ctx, "/api/snapshots/ingest", snapshotPayload{
		SDKKey:            c.sdkKey,
		SessionID:         batch.SessionID,
		Snapshots:         encoded,
		SnapshotCount:     len(valid),
		IsInitialSnapshot: batch.IsInitial,
	})
}

// UploadEvents posts an event batch. Events are never compressed; they
// are small and the store indexes them individually.
func (c *Client) UploadEvents(ctx context.Context, batch EventBatch) (Ack, error) {
	valid, dropped := record.FilterValid(batch.Records)
	if dropped > 0 {
		c.logger.Warn("dropping invalid records from batch",
			logging.Int("dropped", dropped),
			logging.String("session", batch.SessionID))
	}
	if len(valid) == 0 {
		return Ack{SessionID: batch.SessionID}, nil
	}

	encoded, err := record.EncodeRecords(valid, false)
	if err != nil {
		return Ack{}, fmt.Errorf("encode event batch: %w", err)
	}

	return c.post(ctx, "/api/events/ingest", eventPayload{
		SDKKey:         c.sdkKey,
		SessionID:      batch.SessionID,
		Events:         encoded,
		DeviceInfo:     batch.Device,
		UserProperties: batch.UserProperties,
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) (Ack, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Ack{}, fmt.Errorf("marshal ingest payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Ack{}, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Ack{}, fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var ack Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		// Some store deployments return an empty body. The upload still
		// succeeded; only the ack enrichment is missing.
		return Ack{}, nil
	}
	return ack, nil
}

func hasFullSnapshot(records []record.Record) bool {
	for _, rec := range records {
		if rec.IsFullSnapshot() {
			return true
		}
	}
	return false
}
