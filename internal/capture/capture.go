// Package capture owns the session lifecycle on the recording side: it
// wraps the visual capture engine, enforces the full-snapshot-first
// delivery invariant, batches records onto two independent queues, and
// ends sessions on inactivity or teardown.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rewind/internal/config"
	"rewind/internal/engine"
	"rewind/internal/logging"
	"rewind/internal/record"
	"rewind/internal/session"
	"rewind/internal/uploader"
)

// State is the controller's lifecycle position. The gate question "may
// incrementals be enqueued" is exactly state == StateActiveStreaming.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActiveBlocked
	StateActiveStreaming
	StateEnding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActiveBlocked:
		return "active_blocked"
	case StateActiveStreaming:
		return "active_streaming"
	case StateEnding:
		return "ending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Uploader is the delivery dependency. Satisfied by *uploader.Client.
type Uploader interface {
	UploadSnapshots(ctx context.Context, batch uploader.SnapshotBatch) (uploader.Ack, error)
	UploadEvents(ctx context.Context, batch uploader.EventBatch) (uploader.Ack, error)
}

// TeardownSender is the fire-and-forget delivery path used when the
// process is going away. Satisfied by *uploader.Beacon.
type TeardownSender interface {
	SendSnapshots(batch uploader.SnapshotBatch)
	SendEvents(batch uploader.EventBatch)
}

// Options configures a Controller.
type Options struct {
	Engine        engine.Engine
	EngineOptions engine.Options
	Root          string

	Uploader Uploader
	Beacon   TeardownSender

	// Slot persists the session id for resumption. Nil means every start
	// mints a fresh id.
	Slot      *session.Slot
	Collector session.Collector

	UserProperties map[string]any

	BatchSize          int
	FlushInterval      time.Duration
	CheckoutInterval   time.Duration
	SnapshotAckTimeout time.Duration
	InactivityTimeout  time.Duration

	Logger *slog.Logger
}

// OptionsFromConfig lifts the tunables out of application config. The
// caller still wires the engine and delivery dependencies.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		EngineOptions: engine.Options{
			MaskInputs:             cfg.Capture.MaskInputs,
			ScrollSampleIntervalMS: cfg.Capture.ScrollSampleIntervalMS,
		},
		BatchSize:          cfg.BatchSize(),
		FlushInterval:      cfg.FlushInterval(),
		CheckoutInterval:   cfg.CheckoutInterval(),
		SnapshotAckTimeout: cfg.SnapshotAckTimeout(),
		InactivityTimeout:  cfg.InactivityTimeout(),
	}
}

// Controller is the capture state machine. One instance owns one session
// at a time; all mutation happens under a single mutex, mirroring the
// single logical owner the queues require.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	state State

	sessionID string
	projectID int64
	resumed   bool
	startedAt time.Time
	device    session.DeviceInfo

	engineless   bool
	degraded     bool
	initialAcked bool
	deviceSent   bool
	stopEngine   engine.StopFunc

	snapshotQueue []record.Record
	eventQueue    []record.Record
	droppedGated  int

	snapshotFlushing bool
	eventFlushing    bool

	snapshotTimer *time.Timer
	eventTimer    *time.Timer
	checkoutTimer *time.Timer
	watchdog      *time.Timer
}

func New(opts Options) (*Controller, error) {
	if opts.Uploader == nil {
		return nil, errors.New("capture controller requires an uploader")
	}
	def := config.Default()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize()
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = def.FlushInterval()
	}
	if opts.SnapshotAckTimeout <= 0 {
		opts.SnapshotAckTimeout = def.SnapshotAckTimeout()
	}
	if opts.InactivityTimeout <= 0 {
		opts.InactivityTimeout = def.InactivityTimeout()
	}
	if opts.Collector == nil {
		opts.Collector = session.HostCollector{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		opts:   opts,
		logger: logging.WithComponent(logger, "capture"),
		state:  StateIdle,
	}, nil
}

// Start claims or mints a session id, captures device info, registers the
// engine, and arms the timers. An unavailable engine degrades to
// event-only capture rather than failing.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("capture already active in state %s", c.state)
	}
	c.state = StateStarting
	c.mu.Unlock()

	id := session.NewID()
	resumed := false
	if c.opts.Slot != nil {
		claimed, wasResumed, err := c.opts.Slot.Claim(ctx)
		if err != nil {
			// No persisted slot just means no resumption.
			c.logger.Warn("session slot unavailable, starting fresh", logging.Error(err))
		} else {
			id = claimed
			resumed = wasResumed
		}
	}

	device := c.opts.Collector.Collect()

	c.mu.Lock()
	c.sessionID = id
	c.resumed = resumed
	c.startedAt = time.Now()
	c.device = device
	c.initialAcked = false
	c.deviceSent = false
	c.degraded = false
	c.engineless = false
	c.droppedGated = 0
	c.snapshotQueue = nil
	c.eventQueue = nil
	c.armWatchdogLocked()
	c.armSnapshotTimerLocked()
	c.armEventTimerLocked()
	c.mu.Unlock()

	if c.opts.Engine == nil {
		c.enterEventOnly(errors.New("no engine configured"))
		return nil
	}

	stop, err := c.opts.Engine.Start(c.opts.Root, c.opts.EngineOptions, c.handleRecord)
	if err != nil {
		if errors.Is(err, engine.ErrUnavailable) {
			c.enterEventOnly(err)
			return nil
		}
		c.mu.Lock()
		c.state = StateIdle
		c.stopTimersLocked()
		c.mu.Unlock()
		return fmt.Errorf("start capture engine: %w", err)
	}

	c.mu.Lock()
	c.stopEngine = stop
	c.armCheckoutTimerLocked()
	c.mu.Unlock()

	c.logger.Info("capture started",
		logging.String("session", id),
		logging.Bool("resumed", resumed))
	return nil
}

func (c *Controller) enterEventOnly(cause error) {
	c.mu.Lock()
	c.engineless = true
	c.state = StateActiveStreaming
	id := c.sessionID
	c.mu.Unlock()
	c.logger.Warn("capture engine unavailable, tracking events only",
		logging.Error(cause),
		logging.String("session", id))
}

// handleRecord is the engine emit hook. Incrementals and metas are
// dropped until the initial full snapshot has been dealt with; only the
// streaming state may enqueue them.
func (c *Controller) handleRecord(rec record.Record) {
	c.mu.Lock()

	if qualifiesAsActivity(rec) {
		c.armWatchdogLocked()
	}

	switch c.state {
	case StateStarting:
		if rec.IsFullSnapshot() {
			c.state = StateActiveBlocked
			id := c.sessionID
			c.mu.Unlock()
			go c.uploadInitialSnapshot(id, rec)
			return
		}
		c.droppedGated++
		c.mu.Unlock()

	case StateActiveBlocked:
		c.droppedGated++
		c.mu.Unlock()

	case StateActiveStreaming:
		c.snapshotQueue = append(c.snapshotQueue, rec)
		full := len(c.snapshotQueue) >= c.opts.BatchSize
		c.mu.Unlock()
		if full {
			go c.flushSnapshots()
		}

	default:
		c.mu.Unlock()
	}
}

// uploadInitialSnapshot delivers the held-aside full snapshot out of
// band. Success opens the gate normally; timeout or failure opens it in
// degraded mode with the snapshot requeued at the front, so the next
// flush retries it ahead of everything else.
func (c *Controller) uploadInitialSnapshot(sessionID string, snapshot record.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.SnapshotAckTimeout)
	defer cancel()

	ack, err := c.opts.Uploader.UploadSnapshots(ctx, uploader.SnapshotBatch{
		SessionID: sessionID,
		Records:   []record.Record{snapshot},
		IsInitial: true,
	})

	c.mu.Lock()
	dropped := c.droppedGated
	c.droppedGated = 0
	if err != nil {
		c.degraded = true
		c.snapshotQueue = append([]record.Record{snapshot}, c.snapshotQueue...)
	} else {
		c.initialAcked = true
		if ack.ProjectID != 0 {
			c.projectID = ack.ProjectID
		}
	}
	if c.state == StateActiveBlocked {
		c.state = StateActiveStreaming
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("initial snapshot upload failed, continuing degraded",
			logging.Error(err),
			logging.String("session", sessionID),
			logging.Int("dropped_while_gated", dropped))
		return
	}
	c.logger.Info("initial snapshot acknowledged",
		logging.String("session", sessionID),
		logging.Int64("project", ack.ProjectID),
		logging.Int("dropped_while_gated", dropped))
}

// TrackEvent appends a custom event. Allowed in every active state; the
// event stream is not gated by the snapshot ack.
func (c *Controller) TrackEvent(tag string, payload any) {
	rec := record.NewCustom(time.Now().UnixMilli(), tag, payload)
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateEnding {
		c.mu.Unlock()
		return
	}
	c.eventQueue = append(c.eventQueue, rec)
	full := len(c.eventQueue) >= c.opts.BatchSize
	c.mu.Unlock()
	if full {
		go c.flushEvents()
	}
}

// TrackPageView records a navigation.
func (c *Controller) TrackPageView(url, referrer, title string) {
	c.TrackEvent(record.TagPageView, record.PageViewPayload{URL: url, Referrer: referrer, Title: title})
}

// TrackError records a host application error. Capture must never throw
// back at the host, so this is the whole error surface.
func (c *Controller) TrackError(message, source, stack string) {
	c.TrackEvent(record.TagError, record.ErrorPayload{Message: message, Source: source, Stack: stack})
}

// NotifyHidden ends the session early when the captured surface goes
// away from the user.
func (c *Controller) NotifyHidden(ctx context.Context) {
	_ = c.End(ctx, "hidden")
}

// State reports the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the active session id, empty when idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ProjectID returns the project the store resolved for this session, 0
// until the first acknowledged upload.
func (c *Controller) ProjectID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectID
}

// QueueDepths reports pending record counts, snapshots then events.
func (c *Controller) QueueDepths() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snapshotQueue), len(c.eventQueue)
}

func qualifiesAsActivity(rec record.Record) bool {
	if rec.Type != record.TypeIncremental {
		return false
	}
	data, err := rec.Incremental()
	if err != nil {
		return false
	}
	switch data.Source {
	case record.SourceMouseMove, record.SourceMouseInteraction, record.SourceScroll, record.SourceInput:
		return true
	default:
		return false
	}
}
