package engine

import (
	"encoding/json"
	"sync"
	"time"

	"rewind/internal/record"
)

// Scripted is an engine that replays a fixed list of records. It exists
// for tests and for the record-simulate developer command; it also serves
// as the reference for how a real engine must behave at the boundary.
type Scripted struct {
	Records []record.Record
	// Unavailable makes Start fail with ErrUnavailable.
	Unavailable bool
	// HoldSnapshot suppresses the leading full snapshot, modeling an
	// engine that cannot serialize the tree.
	HoldSnapshot bool

	mu        sync.Mutex
	emit      EmitFunc
	stopped   bool
	checkouts int
}

var _ Engine = (*Scripted)(nil)
var _ Checkpointer = (*Scripted)(nil)

// Start emits the scripted records synchronously, then keeps the emit
// hook for later Emit and Checkout calls.
func (s *Scripted) Start(root string, opts Options, emit EmitFunc) (StopFunc, error) {
	if s.Unavailable {
		return nil, ErrUnavailable
	}

	s.mu.Lock()
	s.emit = emit
	s.stopped = false
	s.mu.Unlock()

	for _, rec := range s.Records {
		if s.HoldSnapshot && rec.IsFullSnapshot() {
			continue
		}
		emit(rec)
	}

	return s.stop, nil
}

// Emit delivers one more record, as a live engine would between Start and
// stop. Records emitted after stop are discarded.
func (s *Scripted) Emit(rec record.Record) {
	s.mu.Lock()
	emit := s.emit
	stopped := s.stopped
	s.mu.Unlock()
	if stopped || emit == nil {
		return
	}
	emit(rec)
}

// Checkout emits a fresh full snapshot and counts the request.
func (s *Scripted) Checkout() {
	s.mu.Lock()
	s.checkouts++
	emit := s.emit
	stopped := s.stopped
	s.mu.Unlock()
	if stopped || emit == nil {
		return
	}
	emit(NewSnapshotRecord(time.Now().UnixMilli()))
}

// Checkouts reports how many snapshot checkouts were requested.
func (s *Scripted) Checkouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkouts
}

func (s *Scripted) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// NewSnapshotRecord builds a minimal valid full snapshot for scripts and
// tests.
func NewSnapshotRecord(timestamp int64) record.Record {
	return record.Record{
		Type:      record.TypeFullSnapshot,
		Timestamp: timestamp,
		Data:      json.RawMessage(`{"node":{"type":0,"childNodes":[{"type":1,"tagName":"html"}]}}`),
	}
}
