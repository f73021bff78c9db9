package capture

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"rewind/internal/engine"
	"rewind/internal/record"
	"rewind/internal/session"
	"rewind/internal/uploader"
)

type fakeUploader struct {
	mu            sync.Mutex
	snapshotCalls []uploader.SnapshotBatch
	eventCalls    []uploader.EventBatch
	failSnapshots int
	failEvents    int
	gate          chan struct{}
	ack           uploader.Ack
}

func (f *fakeUploader) UploadSnapshots(ctx context.Context, batch uploader.SnapshotBatch) (uploader.Ack, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return uploader.Ack{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSnapshots > 0 {
		f.failSnapshots--
		return uploader.Ack{}, errors.New("injected snapshot failure")
	}
	f.snapshotCalls = append(f.snapshotCalls, batch)
	return f.ack, nil
}

func (f *fakeUploader) UploadEvents(ctx context.Context, batch uploader.EventBatch) (uploader.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEvents > 0 {
		f.failEvents--
		return uploader.Ack{}, errors.New("injected event failure")
	}
	f.eventCalls = append(f.eventCalls, batch)
	return f.ack, nil
}

func (f *fakeUploader) snapshots() []uploader.SnapshotBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uploader.SnapshotBatch(nil), f.snapshotCalls...)
}

func (f *fakeUploader) events() []uploader.EventBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uploader.EventBatch(nil), f.eventCalls...)
}

type fakeBeacon struct {
	mu            sync.Mutex
	snapshotSends []uploader.SnapshotBatch
	eventSends    []uploader.EventBatch
}

func (f *fakeBeacon) SendSnapshots(batch uploader.SnapshotBatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotSends = append(f.snapshotSends, batch)
}

func (f *fakeBeacon) SendEvents(batch uploader.EventBatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventSends = append(f.eventSends, batch)
}

func incremental(ts int64, source record.Source) record.Record {
	return record.New(record.TypeIncremental, ts, record.IncrementalData{Source: source, X: 1, Y: 2})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newController(t *testing.T, opts Options) *Controller {
	t.Helper()
	if opts.FlushInterval == 0 {
		opts.FlushInterval = time.Hour
	}
	if opts.InactivityTimeout == 0 {
		opts.InactivityTimeout = time.Hour
	}
	if opts.SnapshotAckTimeout == 0 {
		opts.SnapshotAckTimeout = time.Second
	}
	if opts.Collector == nil {
		opts.Collector = session.HostCollector{AppName: "test"}
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSnapshotGateOrderingInvariant(t *testing.T) {
	up := &fakeUploader{gate: make(chan struct{}), ack: uploader.Ack{ProjectID: 3}}
	eng := &engine.Scripted{Records: []record.Record{engine.NewSnapshotRecord(100)}}
	c := newController(t, Options{Engine: eng, Uploader: up, BatchSize: 10})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "gate to close", func() bool { return c.State() == StateActiveBlocked })

	// Incrementals during the gate must vanish, not queue.
	for i := 0; i < 50; i++ {
		eng.Emit(incremental(int64(200+i), record.SourceMouseMove))
	}
	if snaps, _ := c.QueueDepths(); snaps != 0 {
		t.Fatalf("gated queue depth = %d, want 0", snaps)
	}

	close(up.gate)
	waitFor(t, "gate to open", func() bool { return c.State() == StateActiveStreaming })
	if c.ProjectID() != 3 {
		t.Fatalf("project id = %d", c.ProjectID())
	}

	eng.Emit(incremental(900, record.SourceScroll))
	c.flushSnapshots()

	calls := up.snapshots()
	if len(calls) != 2 {
		t.Fatalf("expected initial + one batch, got %d calls", len(calls))
	}
	first := calls[0]
	if !first.IsInitial || len(first.Records) != 1 || !first.Records[0].IsFullSnapshot() {
		t.Fatalf("first delivery is not the lone full snapshot: %+v", first)
	}
	second := calls[1]
	if second.IsInitial || containsFullSnapshot(second.Records) {
		t.Fatalf("full snapshot delivered twice: %+v", second)
	}
}

func TestRequeueKeepsOriginalOrder(t *testing.T) {
	up := &fakeUploader{}
	eng := &engine.Scripted{Records: []record.Record{engine.NewSnapshotRecord(100)}}
	c := newController(t, Options{Engine: eng, Uploader: up, BatchSize: 100})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "streaming", func() bool { return c.State() == StateActiveStreaming })

	for _, ts := range []int64{201, 202, 203} {
		eng.Emit(incremental(ts, record.SourceScroll))
	}

	up.mu.Lock()
	up.failSnapshots = 1
	up.mu.Unlock()
	c.flushSnapshots()

	if snaps, _ := c.QueueDepths(); snaps != 3 {
		t.Fatalf("failed batch not requeued: depth = %d", snaps)
	}

	eng.Emit(incremental(204, record.SourceScroll))
	c.flushSnapshots()

	calls := up.snapshots()
	if len(calls) != 2 {
		t.Fatalf("got %d successful deliveries", len(calls))
	}
	retried := calls[1]
	want := []int64{201, 202, 203, 204}
	if len(retried.Records) != len(want) {
		t.Fatalf("retried batch has %d records", len(retried.Records))
	}
	for i, ts := range want {
		if retried.Records[i].Timestamp != ts {
			t.Fatalf("record %d timestamp = %d, want %d", i, retried.Records[i].Timestamp, ts)
		}
	}
}

func TestSizeTriggeredFlushLeavesRemainder(t *testing.T) {
	up := &fakeUploader{}
	eng := &engine.Scripted{Records: []record.Record{engine.NewSnapshotRecord(100)}}
	c := newController(t, Options{Engine: eng, Uploader: up, BatchSize: 200})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "streaming", func() bool { return c.State() == StateActiveStreaming })

	for i := 0; i < 205; i++ {
		eng.Emit(incremental(int64(1000+i), record.SourceMouseMove))
	}

	waitFor(t, "size-triggered flush", func() bool { return len(up.snapshots()) == 2 })
	calls := up.snapshots()
	if len(calls[1].Records) != 200 {
		t.Fatalf("size-triggered batch = %d records", len(calls[1].Records))
	}
	waitFor(t, "remainder to settle", func() bool {
		snaps, _ := c.QueueDepths()
		return snaps == 5
	})
}

func TestInitialSnapshotTimeoutDegrades(t *testing.T) {
	up := &fakeUploader{gate: make(chan struct{})}
	eng := &engine.Scripted{Records: []record.Record{engine.NewSnapshotRecord(100)}}
	c := newController(t, Options{
		Engine:             eng,
		Uploader:           up,
		BatchSize:          10,
		SnapshotAckTimeout: 30 * time.Millisecond,
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "degraded streaming", func() bool { return c.State() == StateActiveStreaming })

	// The unacknowledged snapshot must be back at the queue head so the
	// next flush retries it first.
	snaps, _ := c.QueueDepths()
	if snaps != 1 {
		t.Fatalf("queue depth = %d, want requeued snapshot", snaps)
	}

	close(up.gate)
	c.flushSnapshots()
	calls := up.snapshots()
	if len(calls) != 1 || !calls[0].IsInitial || !calls[0].Records[0].IsFullSnapshot() {
		t.Fatalf("retry did not deliver initial snapshot: %+v", calls)
	}
}

func TestEndIsIdempotentAndEmitsSessionEnd(t *testing.T) {
	up := &fakeUploader{}
	eng := &engine.Scripted{Records: []record.Record{engine.NewSnapshotRecord(100)}}
	c := newController(t, Options{Engine: eng, Uploader: up, BatchSize: 10})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "streaming", func() bool { return c.State() == StateActiveStreaming })
	id := c.SessionID()

	if err := c.End(context.Background(), "test"); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := c.End(context.Background(), "test"); err != nil {
		t.Fatalf("second End: %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("state after end = %s", c.State())
	}

	events := up.events()
	if len(events) != 1 {
		t.Fatalf("expected exactly one final event batch, got %d", len(events))
	}
	last := events[0].Records[len(events[0].Records)-1]
	custom, err := last.Custom()
	if err != nil || custom.Tag != record.TagSessionEnd {
		t.Fatalf("last event is not session_end: %+v (%v)", last, err)
	}
	var payload record.SessionEndPayload
	if err := json.Unmarshal(custom.Payload, &payload); err != nil {
		t.Fatalf("decode session_end payload: %v", err)
	}
	if payload.SessionID != id {
		t.Fatalf("session_end for %q, want %q", payload.SessionID, id)
	}
}

func TestInactivityEndsSessionAndClearsSlot(t *testing.T) {
	up := &fakeUploader{}
	eng := &engine.Scripted{Records: []record.Record{engine.NewSnapshotRecord(100)}}
	slot := session.NewSlot(t.TempDir(), 30*time.Minute)
	c := newController(t, Options{
		Engine:            eng,
		Uploader:          up,
		BatchSize:         10,
		InactivityTimeout: 60 * time.Millisecond,
		Slot:              slot,
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "streaming", func() bool { return c.State() == StateActiveStreaming })
	id := c.SessionID()

	waitFor(t, "inactivity auto-end", func() bool { return c.State() == StateIdle })

	events := up.events()
	if len(events) == 0 {
		t.Fatal("no final event batch delivered")
	}
	last := events[len(events)-1].Records
	custom, err := last[len(last)-1].Custom()
	if err != nil || custom.Tag != record.TagSessionEnd {
		t.Fatalf("session did not end with session_end: %v", err)
	}

	fresh, resumed, err := slot.Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if resumed || fresh == id {
		t.Fatal("slot was not cleared on auto-end")
	}
}

func TestActivityResetsWatchdog(t *testing.T) {
	up := &fakeUploader{}
	eng := &engine.Scripted{Records: []record.Record{engine.NewSnapshotRecord(100)}}
	c := newController(t, Options{
		Engine:            eng,
		Uploader:          up,
		BatchSize:         500,
		InactivityTimeout: 80 * time.Millisecond,
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "streaming", func() bool { return c.State() == StateActiveStreaming })

	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		eng.Emit(incremental(int64(i), record.SourceInput))
	}
	if c.State() != StateActiveStreaming {
		t.Fatal("activity did not keep the session alive")
	}

	waitFor(t, "auto-end once activity stops", func() bool { return c.State() == StateIdle })
}

func TestEngineUnavailableFallsBackToEvents(t *testing.T) {
	up := &fakeUploader{}
	eng := &engine.Scripted{Unavailable: true}
	c := newController(t, Options{Engine: eng, Uploader: up, BatchSize: 10})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start should degrade, not fail: %v", err)
	}
	if c.State() != StateActiveStreaming {
		t.Fatalf("state = %s", c.State())
	}

	c.TrackPageView("https://example.com/checkout", "", "Checkout")
	if err := c.End(context.Background(), "test"); err != nil {
		t.Fatalf("End: %v", err)
	}

	events := up.events()
	if len(events) != 1 {
		t.Fatalf("got %d event batches", len(events))
	}
	if len(up.snapshots()) != 0 {
		t.Fatal("event-only session delivered snapshots")
	}
	first, err := events[0].Records[0].Custom()
	if err != nil || first.Tag != record.TagPageView {
		t.Fatalf("page view not delivered: %v", err)
	}
	if events[0].Device == nil {
		t.Fatal("device info missing from first event batch")
	}
}

func TestTeardownGoesThroughBeacon(t *testing.T) {
	up := &fakeUploader{}
	beacon := &fakeBeacon{}
	eng := &engine.Scripted{Records: []record.Record{engine.NewSnapshotRecord(100)}}
	c := newController(t, Options{Engine: eng, Uploader: up, Beacon: beacon, BatchSize: 100})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "streaming", func() bool { return c.State() == StateActiveStreaming })
	eng.Emit(incremental(500, record.SourceScroll))

	c.Teardown()

	beacon.mu.Lock()
	defer beacon.mu.Unlock()
	if len(beacon.snapshotSends) != 1 {
		t.Fatalf("queued snapshots not beaconed: %d", len(beacon.snapshotSends))
	}
	if len(beacon.eventSends) != 1 {
		t.Fatalf("session_end not beaconed: %d", len(beacon.eventSends))
	}
	if c.State() != StateIdle {
		t.Fatalf("state after teardown = %s", c.State())
	}
}

func TestStartRejectsDoubleStart(t *testing.T) {
	up := &fakeUploader{}
	eng := &engine.Scripted{Records: []record.Record{engine.NewSnapshotRecord(100)}}
	c := newController(t, Options{Engine: eng, Uploader: up, BatchSize: 10})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail while active")
	}
	_ = c.End(context.Background(), "test")
}
