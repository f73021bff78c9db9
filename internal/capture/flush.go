package capture

import (
	"context"
	"time"

	"rewind/internal/engine"
	"rewind/internal/logging"
	"rewind/internal/record"
	"rewind/internal/session"
	"rewind/internal/uploader"
)

// Timer management. Each queue has one debounced timer that re-arms only
// after its flush completes, so a slow upload cannot stack flushes.

func (c *Controller) armSnapshotTimerLocked() {
	if c.snapshotTimer != nil {
		c.snapshotTimer.Stop()
	}
	c.snapshotTimer = time.AfterFunc(c.opts.FlushInterval, c.flushSnapshots)
}

func (c *Controller) armEventTimerLocked() {
	if c.eventTimer != nil {
		c.eventTimer.Stop()
	}
	c.eventTimer = time.AfterFunc(c.opts.FlushInterval, c.flushEvents)
}

func (c *Controller) armCheckoutTimerLocked() {
	if c.opts.CheckoutInterval <= 0 {
		return
	}
	if _, ok := c.opts.Engine.(engine.Checkpointer); !ok {
		return
	}
	if c.checkoutTimer != nil {
		c.checkoutTimer.Stop()
	}
	c.checkoutTimer = time.AfterFunc(c.opts.CheckoutInterval, c.requestCheckout)
}

func (c *Controller) armWatchdogLocked() {
	if c.watchdog != nil {
		c.watchdog.Stop()
	}
	c.watchdog = time.AfterFunc(c.opts.InactivityTimeout, c.onInactivity)
}

func (c *Controller) stopTimersLocked() {
	for _, t := range []*time.Timer{c.snapshotTimer, c.eventTimer, c.checkoutTimer, c.watchdog} {
		if t != nil {
			t.Stop()
		}
	}
	c.snapshotTimer, c.eventTimer, c.checkoutTimer, c.watchdog = nil, nil, nil, nil
}

func (c *Controller) requestCheckout() {
	c.mu.Lock()
	streaming := c.state == StateActiveStreaming
	if streaming || c.state == StateActiveBlocked {
		c.armCheckoutTimerLocked()
	}
	c.mu.Unlock()
	if !streaming {
		return
	}
	if cp, ok := c.opts.Engine.(engine.Checkpointer); ok {
		cp.Checkout()
	}
}

func (c *Controller) onInactivity() {
	c.logger.Info("inactivity timeout reached", logging.String("session", c.SessionID()))
	_ = c.End(context.Background(), "inactivity")
}

// flushSnapshots drains up to one batch from the snapshot queue. On
// failure the batch is pushed back to the queue front so the next flush
// retries the same records in original order.
func (c *Controller) flushSnapshots() {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateEnding || c.snapshotFlushing {
		c.mu.Unlock()
		return
	}
	if len(c.snapshotQueue) == 0 {
		c.armSnapshotTimerLocked()
		c.mu.Unlock()
		return
	}
	n := len(c.snapshotQueue)
	if n > c.opts.BatchSize {
		n = c.opts.BatchSize
	}
	batch := append([]record.Record(nil), c.snapshotQueue[:n]...)
	c.snapshotQueue = append([]record.Record(nil), c.snapshotQueue[n:]...)
	c.snapshotFlushing = true
	sessionID := c.sessionID
	isInitial := !c.initialAcked && containsFullSnapshot(batch)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.FlushInterval)
	ack, err := c.opts.Uploader.UploadSnapshots(ctx, uploader.SnapshotBatch{
		SessionID: sessionID,
		Records:   batch,
		IsInitial: isInitial,
	})
	cancel()

	c.mu.Lock()
	c.snapshotFlushing = false
	if err != nil {
		c.snapshotQueue = append(batch, c.snapshotQueue...)
	} else {
		if isInitial {
			c.initialAcked = true
		}
		if ack.ProjectID != 0 {
			c.projectID = ack.ProjectID
		}
	}
	if c.state != StateIdle && c.state != StateEnding {
		c.armSnapshotTimerLocked()
	}
	remaining := len(c.snapshotQueue)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("snapshot flush failed, batch requeued",
			logging.Error(err),
			logging.String("session", sessionID),
			logging.Int("batch", len(batch)))
		return
	}
	c.logger.Debug("snapshot batch delivered",
		logging.String("session", sessionID),
		logging.Int("batch", len(batch)),
		logging.Int("remaining", remaining))
}

// flushEvents mirrors flushSnapshots for the event queue. Device info
// rides along until one event upload has been acknowledged.
func (c *Controller) flushEvents() {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateEnding || c.eventFlushing {
		c.mu.Unlock()
		return
	}
	if len(c.eventQueue) == 0 {
		c.armEventTimerLocked()
		c.mu.Unlock()
		return
	}
	n := len(c.eventQueue)
	if n > c.opts.BatchSize {
		n = c.opts.BatchSize
	}
	batch := append([]record.Record(nil), c.eventQueue[:n]...)
	c.eventQueue = append([]record.Record(nil), c.eventQueue[n:]...)
	c.eventFlushing = true
	sessionID := c.sessionID
	var device *session.DeviceInfo
	if !c.deviceSent {
		d := c.device
		device = &d
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.FlushInterval)
	ack, err := c.opts.Uploader.UploadEvents(ctx, uploader.EventBatch{
		SessionID:      sessionID,
		Records:        batch,
		Device:         device,
		UserProperties: c.opts.UserProperties,
	})
	cancel()

	c.mu.Lock()
	c.eventFlushing = false
	if err != nil {
		c.eventQueue = append(batch, c.eventQueue...)
	} else {
		c.deviceSent = true
		if ack.ProjectID != 0 {
			c.projectID = ack.ProjectID
		}
	}
	if c.state != StateIdle && c.state != StateEnding {
		c.armEventTimerLocked()
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("event flush failed, batch requeued",
			logging.Error(err),
			logging.String("session", sessionID),
			logging.Int("batch", len(batch)))
	}
}

// End closes the session: stops the engine and timers, drains both
// queues, appends the session_end event, and clears the persisted slot.
// Idempotent; a second call while nothing is active is a no-op.
func (c *Controller) End(ctx context.Context, reason string) error {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateEnding {
		c.mu.Unlock()
		return nil
	}
	c.state = StateEnding
	c.stopTimersLocked()
	stop := c.stopEngine
	c.stopEngine = nil

	sessionID := c.sessionID
	duration := time.Since(c.startedAt)
	endEvent := record.NewCustom(time.Now().UnixMilli(), record.TagSessionEnd, record.SessionEndPayload{
		SessionID:  sessionID,
		DurationMS: duration.Milliseconds(),
		Reason:     reason,
	})
	snapshots := c.snapshotQueue
	events := append(c.eventQueue, endEvent)
	c.snapshotQueue = nil
	c.eventQueue = nil
	var device *session.DeviceInfo
	if !c.deviceSent {
		d := c.device
		device = &d
	}
	c.mu.Unlock()

	if stop != nil {
		stop()
	}

	var firstErr error
	if len(snapshots) > 0 {
		if _, err := c.opts.Uploader.UploadSnapshots(ctx, uploader.SnapshotBatch{
			SessionID: sessionID,
			Records:   snapshots,
		}); err != nil {
			firstErr = err
			c.logger.Warn("final snapshot flush failed",
				logging.Error(err),
				logging.String("session", sessionID))
		}
	}
	if _, err := c.opts.Uploader.UploadEvents(ctx, uploader.EventBatch{
		SessionID:      sessionID,
		Records:        events,
		Device:         device,
		UserProperties: c.opts.UserProperties,
	}); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		c.logger.Warn("final event flush failed",
			logging.Error(err),
			logging.String("session", sessionID))
	}

	if c.opts.Slot != nil {
		if err := c.opts.Slot.Clear(ctx); err != nil {
			c.logger.Warn("clear session slot failed", logging.Error(err))
		}
	}

	c.mu.Lock()
	c.state = StateIdle
	c.sessionID = ""
	c.mu.Unlock()

	c.logger.Info("capture ended",
		logging.String("session", sessionID),
		logging.String("reason", reason),
		logging.Duration("duration", duration))
	return firstErr
}

// Teardown is the unload path: everything still queued goes out through
// the beacon, detached from this call. Falls back to End when no beacon
// is wired.
func (c *Controller) Teardown() {
	if c.opts.Beacon == nil {
		_ = c.End(context.Background(), "teardown")
		return
	}

	c.mu.Lock()
	if c.state == StateIdle || c.state == StateEnding {
		c.mu.Unlock()
		return
	}
	c.state = StateEnding
	c.stopTimersLocked()
	stop := c.stopEngine
	c.stopEngine = nil

	sessionID := c.sessionID
	duration := time.Since(c.startedAt)
	endEvent := record.NewCustom(time.Now().UnixMilli(), record.TagSessionEnd, record.SessionEndPayload{
		SessionID:  sessionID,
		DurationMS: duration.Milliseconds(),
		Reason:     "teardown",
	})
	snapshots := c.snapshotQueue
	events := append(c.eventQueue, endEvent)
	c.snapshotQueue = nil
	c.eventQueue = nil
	c.state = StateIdle
	c.sessionID = ""
	c.mu.Unlock()

	if stop != nil {
		stop()
	}

	if len(snapshots) > 0 {
		c.opts.Beacon.SendSnapshots(uploader.SnapshotBatch{SessionID: sessionID, Records: snapshots})
	}
	c.opts.Beacon.SendEvents(uploader.EventBatch{SessionID: sessionID, Records: events})

	if c.opts.Slot != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.opts.Slot.Clear(ctx)
	}

	c.logger.Info("capture torn down",
		logging.String("session", sessionID),
		logging.Duration("duration", duration))
}

func containsFullSnapshot(records []record.Record) bool {
	for _, rec := range records {
		if rec.IsFullSnapshot() {
			return true
		}
	}
	return false
}
