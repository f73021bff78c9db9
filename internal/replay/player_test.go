package replay

import (
	"sync"
	"testing"
	"time"

	"rewind/internal/record"
)

type runtimeCall struct {
	op     string
	offset time.Duration
	speed  float64
}

type fakeRuntime struct {
	mu    sync.Mutex
	calls []runtimeCall
}

func (f *fakeRuntime) Play(offset time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runtimeCall{op: "play", offset: offset})
}

func (f *fakeRuntime) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runtimeCall{op: "pause"})
}

func (f *fakeRuntime) SetSpeed(multiplier float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runtimeCall{op: "speed", speed: multiplier})
}

func (f *fakeRuntime) snapshot() []runtimeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runtimeCall(nil), f.calls...)
}

// fakeClock is safe to advance while the player's tick loop reads it.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testTimeline(t *testing.T) *Timeline {
	t.Helper()
	timeline, err := NewTimeline([]record.Record{
		fullSnapshot(0),
		record.New(record.TypeIncremental, 1000, record.IncrementalData{Source: record.SourceMouseMove, Positions: []record.Point{{X: 50, Y: 60}}}),
		record.New(record.TypeIncremental, 2000, record.IncrementalData{Source: record.SourceMouseInteraction, Type: record.InteractionMouseDown, X: 70, Y: 80}),
		record.New(record.TypeIncremental, 10000, record.IncrementalData{Source: record.SourceScroll, Y: 500}),
	}, time.Second)
	if err != nil {
		t.Fatalf("NewTimeline: %v", err)
	}
	return timeline
}

func TestPlayerPlayPauseTracksOffset(t *testing.T) {
	rt := &fakeRuntime{}
	clock := &fakeClock{t: time.Unix(0, 0)}
	player := NewPlayer(testTimeline(t), rt, PlayerOptions{})
	player.now = clock.Now
	defer player.Close()

	player.Play()
	clock.Advance(2 * time.Second)
	if got := player.Offset(); got != 2*time.Second {
		t.Fatalf("offset while playing = %v", got)
	}

	player.Pause()
	clock.Advance(time.Minute)
	if got := player.Offset(); got != 2*time.Second {
		t.Fatalf("offset advanced while paused: %v", got)
	}

	calls := rt.snapshot()
	if len(calls) != 2 || calls[0].op != "play" || calls[0].offset != 0 || calls[1].op != "pause" {
		t.Fatalf("runtime calls = %+v", calls)
	}
}

func TestPlayerSpeedAppliesLive(t *testing.T) {
	rt := &fakeRuntime{}
	clock := &fakeClock{t: time.Unix(0, 0)}
	player := NewPlayer(testTimeline(t), rt, PlayerOptions{})
	player.now = clock.Now
	defer player.Close()

	player.Play()
	clock.Advance(time.Second)
	player.SetSpeed(2)
	clock.Advance(time.Second)

	// 1s at 1x then 1s at 2x.
	if got := player.Offset(); got != 3*time.Second {
		t.Fatalf("offset = %v", got)
	}
	if !player.Playing() {
		t.Fatal("speed change stopped playback")
	}

	calls := rt.snapshot()
	last := calls[len(calls)-1]
	if last.op != "speed" || last.speed != 2 {
		t.Fatalf("runtime calls = %+v", calls)
	}
}

func TestPlayerSeekPausesRebuildsResumes(t *testing.T) {
	rt := &fakeRuntime{}
	clock := &fakeClock{t: time.Unix(0, 0)}

	var cursorMu sync.Mutex
	var cursorSeen []record.Point
	player := NewPlayer(testTimeline(t), rt, PlayerOptions{
		OnCursor: func(p record.Point) {
			cursorMu.Lock()
			cursorSeen = append(cursorSeen, p)
			cursorMu.Unlock()
		},
	})
	player.now = clock.Now
	defer player.Close()

	player.Play()
	player.Seek(2500 * time.Millisecond)

	if got := player.Offset(); got != 2500*time.Millisecond {
		t.Fatalf("offset after seek = %v", got)
	}
	if !player.Playing() {
		t.Fatal("seek should resume when playback was running")
	}

	calls := rt.snapshot()
	var ops []string
	for _, call := range calls {
		ops = append(ops, call.op)
	}
	want := []string{"play", "pause", "play"}
	if len(ops) != len(want) {
		t.Fatalf("runtime ops = %v", ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("runtime ops = %v, want %v", ops, want)
		}
	}
	if calls[2].offset != 2500*time.Millisecond {
		t.Fatalf("resume offset = %v", calls[2].offset)
	}

	// At 2.5s the last pointer-bearing record is the interaction at 2s.
	cursorMu.Lock()
	defer cursorMu.Unlock()
	if len(cursorSeen) == 0 || cursorSeen[len(cursorSeen)-1] != (record.Point{X: 70, Y: 80}) {
		t.Fatalf("cursor = %+v", cursorSeen)
	}
}

func TestPlayerSeekWhilePausedStaysPaused(t *testing.T) {
	rt := &fakeRuntime{}
	player := NewPlayer(testTimeline(t), rt, PlayerOptions{})
	defer player.Close()

	player.Seek(time.Second)
	if player.Playing() {
		t.Fatal("seek started playback from paused state")
	}
	if got := player.Offset(); got != time.Second {
		t.Fatalf("offset = %v", got)
	}
	for _, call := range rt.snapshot() {
		if call.op == "play" {
			t.Fatal("seek while paused must not start the runtime")
		}
	}
}

func TestPlayerSeekClamps(t *testing.T) {
	rt := &fakeRuntime{}
	player := NewPlayer(testTimeline(t), rt, PlayerOptions{})
	defer player.Close()

	player.Seek(-time.Second)
	if got := player.Offset(); got != 0 {
		t.Fatalf("negative seek offset = %v", got)
	}
	player.Seek(time.Hour)
	if got := player.Offset(); got != player.timeline.Duration {
		t.Fatalf("overlong seek offset = %v", got)
	}
}

func TestPlayerSkipsInactiveGaps(t *testing.T) {
	// Activity resumes at 10s..11s so the gap ends before the timeline does.
	timeline, err := NewTimeline([]record.Record{
		fullSnapshot(0),
		inc(1000, record.SourceScroll),
		inc(2000, record.SourceInput),
		inc(10000, record.SourceScroll),
		inc(11000, record.SourceScroll),
	}, time.Second)
	if err != nil {
		t.Fatalf("NewTimeline: %v", err)
	}

	rt := &fakeRuntime{}
	clock := &fakeClock{t: time.Unix(0, 0)}
	player := NewPlayer(timeline, rt, PlayerOptions{
		SkipInactive:  true,
		InactivityGap: 3 * time.Second,
		SkipSpeed:     12,
	})
	player.now = clock.Now
	defer player.Close()

	player.Play()
	// Move inside the 2s..10s gap, then tick.
	clock.Advance(4 * time.Second)
	player.tick()

	calls := rt.snapshot()
	last := calls[len(calls)-1]
	if last.op != "speed" || last.speed != 12 {
		t.Fatalf("gap entry did not raise speed: %+v", calls)
	}

	// Half a second at 12x lands on the gap boundary; user speed returns.
	clock.Advance(500 * time.Millisecond)
	player.tick()
	calls = rt.snapshot()
	last = calls[len(calls)-1]
	if last.op != "speed" || last.speed != 1 {
		t.Fatalf("gap exit did not restore speed: %+v", calls)
	}
	if !player.Playing() {
		t.Fatal("player stopped at gap exit")
	}
}

func TestPlayerStopsAtEnd(t *testing.T) {
	rt := &fakeRuntime{}
	clock := &fakeClock{t: time.Unix(0, 0)}
	player := NewPlayer(testTimeline(t), rt, PlayerOptions{})
	player.now = clock.Now
	defer player.Close()

	player.Play()
	clock.Advance(time.Hour)
	player.tick()

	if player.Playing() {
		t.Fatal("player still playing past the end")
	}
	if got := player.Offset(); got != player.timeline.Duration {
		t.Fatalf("final offset = %v", got)
	}
}

func TestCursorTrackerScanBackAndHold(t *testing.T) {
	timeline := testTimeline(t)
	tracker := NewCursorTracker(timeline.Records, 200)

	if _, ok := tracker.Update(0); ok {
		t.Fatal("no position should be known at the snapshot")
	}

	point, ok := tracker.Update(1)
	if !ok || point != (record.Point{X: 50, Y: 60}) {
		t.Fatalf("mouse move trail position = %+v (%v)", point, ok)
	}

	// The scroll record carries no pointer; the last position holds.
	point, ok = tracker.Update(3)
	if !ok || point != (record.Point{X: 70, Y: 80}) {
		t.Fatalf("held position = %+v (%v)", point, ok)
	}
}

func TestCursorTrackerWindowBound(t *testing.T) {
	records := []record.Record{
		record.New(record.TypeIncremental, 0, record.IncrementalData{Source: record.SourceMouseMove, Positions: []record.Point{{X: 9, Y: 9}}}),
	}
	for i := 1; i <= 10; i++ {
		records = append(records, record.New(record.TypeIncremental, int64(i*100), record.IncrementalData{Source: record.SourceScroll, Y: float64(i)}))
	}

	tracker := NewCursorTracker(records, 2)
	// Index 10 minus a window of 2 never reaches the position at index 0.
	if _, ok := tracker.Update(10); ok {
		t.Fatal("window bound not honored")
	}

	wide := NewCursorTracker(records, 200)
	if point, ok := wide.Update(10); !ok || point != (record.Point{X: 9, Y: 9}) {
		t.Fatalf("wide window missed the position: %+v (%v)", point, ok)
	}
}
