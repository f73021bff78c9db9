package replay

import (
	"sync"
	"time"

	"rewind/internal/record"
)

// Runtime is the visual reconstruction engine driven in reverse: the
// player tells it where in the timeline to be and how fast to move, and
// it renders. It is a black box here, same as on the capture side.
type Runtime interface {
	Play(offset time.Duration)
	Pause()
	SetSpeed(multiplier float64)
}

// PlayerOptions tunes playback behavior.
type PlayerOptions struct {
	// SkipInactive fast-forwards through gaps longer than InactivityGap.
	SkipInactive  bool
	InactivityGap time.Duration
	SkipSpeed     float64

	CursorWindow int
	CursorTick   time.Duration

	// OnCursor is invoked from the tick loop with the reconstructed
	// pointer position.
	OnCursor func(record.Point)
}

// Player drives a Runtime across a Timeline with play, pause, seek, and
// live speed control. The playhead advances against the wall clock at
// the effective speed; the runtime is trusted to keep itself in step.
type Player struct {
	timeline *Timeline
	runtime  Runtime
	cursor   *CursorTracker
	opts     PlayerOptions

	mu         sync.Mutex
	playing    bool
	speed      float64
	skipping   bool
	baseOffset time.Duration
	playedAt   time.Time

	now  func() time.Time
	done chan struct{}
}

// NewPlayer builds a player over a loaded timeline.
func NewPlayer(timeline *Timeline, runtime Runtime, opts PlayerOptions) *Player {
	if opts.InactivityGap <= 0 {
		opts.InactivityGap = 3 * time.Second
	}
	if opts.SkipSpeed <= 0 {
		opts.SkipSpeed = 12
	}
	if opts.CursorTick <= 0 {
		opts.CursorTick = 100 * time.Millisecond
	}
	return &Player{
		timeline: timeline,
		runtime:  runtime,
		cursor:   NewCursorTracker(timeline.Records, opts.CursorWindow),
		opts:     opts,
		speed:    1,
		now:      time.Now,
	}
}

// Play starts or resumes playback and the cursor tick loop.
func (p *Player) Play() {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return
	}
	if p.baseOffset >= p.timeline.Duration {
		p.baseOffset = 0
	}
	p.playing = true
	p.playedAt = p.now()
	offset := p.baseOffset
	if p.done == nil {
		p.done = make(chan struct{})
		go p.tickLoop(p.done)
	}
	p.mu.Unlock()

	p.runtime.Play(offset)
}

// Pause freezes the playhead.
func (p *Player) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.baseOffset = p.offsetLocked(p.now())
	p.playing = false
	p.mu.Unlock()

	p.runtime.Pause()
}

// Seek moves the playhead. Playback pauses for the rebuild and resumes
// only if it was running; the cursor updates immediately either way.
func (p *Player) Seek(offset time.Duration) {
	if offset < 0 {
		offset = 0
	}
	if offset > p.timeline.Duration {
		offset = p.timeline.Duration
	}

	p.mu.Lock()
	wasPlaying := p.playing
	p.playing = false
	p.baseOffset = offset
	p.skipping = false
	p.mu.Unlock()

	p.runtime.Pause()
	p.updateCursor(offset)

	if wasPlaying {
		p.mu.Lock()
		p.playing = true
		p.playedAt = p.now()
		p.mu.Unlock()
		p.runtime.Play(offset)
	}
}

// SetSpeed changes playback speed live without restarting playback.
func (p *Player) SetSpeed(multiplier float64) {
	if multiplier <= 0 {
		return
	}
	p.mu.Lock()
	now := p.now()
	p.baseOffset = p.offsetLocked(now)
	p.playedAt = now
	p.speed = multiplier
	effective := p.effectiveSpeedLocked()
	p.mu.Unlock()

	p.runtime.SetSpeed(effective)
}

// Offset reports the current playhead position.
func (p *Player) Offset() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offsetLocked(p.now())
}

// Playing reports whether playback is running.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Speed reports the user-selected speed multiplier.
func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// Cursor returns the last reconstructed pointer position.
func (p *Player) Cursor() (record.Point, bool) {
	return p.cursor.Position()
}

// Close stops the tick loop. The runtime is left wherever it was.
func (p *Player) Close() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.playing = false
	p.mu.Unlock()
	if done != nil {
		close(done)
	}
}

func (p *Player) offsetLocked(now time.Time) time.Duration {
	if !p.playing {
		return p.baseOffset
	}
	elapsed := time.Duration(float64(now.Sub(p.playedAt)) * p.effectiveSpeedLocked())
	offset := p.baseOffset + elapsed
	if offset > p.timeline.Duration {
		return p.timeline.Duration
	}
	return offset
}

func (p *Player) effectiveSpeedLocked() float64 {
	if p.skipping {
		return p.speed * p.opts.SkipSpeed
	}
	return p.speed
}

// tickLoop drives cursor reconstruction and inactivity skipping on a
// fixed short interval rather than on record boundaries.
func (p *Player) tickLoop(done chan struct{}) {
	ticker := time.NewTicker(p.opts.CursorTick)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Player) tick() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	now := p.now()
	offset := p.offsetLocked(now)

	finished := offset >= p.timeline.Duration
	if finished {
		p.baseOffset = p.timeline.Duration
		p.playing = false
		p.skipping = false
		p.mu.Unlock()
		p.runtime.Pause()
		return
	}

	var speedChange float64
	if p.opts.SkipInactive {
		_, inGap := p.timeline.GapAt(offset, p.opts.InactivityGap)
		if inGap != p.skipping {
			p.baseOffset = offset
			p.playedAt = now
			p.skipping = inGap
			speedChange = p.effectiveSpeedLocked()
		}
	}
	p.mu.Unlock()

	if speedChange > 0 {
		p.runtime.SetSpeed(speedChange)
	}
	p.updateCursor(offset)
}

func (p *Player) updateCursor(offset time.Duration) {
	index := p.timeline.IndexAt(offset)
	point, ok := p.cursor.Update(index)
	if ok && p.opts.OnCursor != nil {
		p.opts.OnCursor(point)
	}
}
