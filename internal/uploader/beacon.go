package uploader

import (
	"context"
	"sync"
	"time"

	"rewind/internal/logging"
)

const beaconTimeout = 3 * time.Second

// Beacon delivers a batch without tying it to the caller's lifecycle: the
// request runs in its own goroutine with its own deadline, the result is
// logged and never returned. Used during teardown when the process is
// about to exit and a normal retrying upload would be cut off.
type Beacon struct {
	client *Client
	wg     sync.WaitGroup
}

func NewBeacon(client *Client) *Beacon {
	return &Beacon{client: client}
}

// SendSnapshots fires a snapshot delivery and returns immediately.
func (b *Beacon) SendSnapshots(batch SnapshotBatch) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
		defer cancel()
		if _, err := b.client.UploadSnapshots(ctx, batch); err != nil {
			b.client.logger.Warn("teardown snapshot delivery failed",
				logging.Error(err),
				logging.String("session", batch.SessionID))
		}
	}()
}

// SendEvents fires an event delivery and returns immediately.
func (b *Beacon) SendEvents(batch EventBatch) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
		defer cancel()
		if _, err := b.client.UploadEvents(ctx, batch); err != nil {
			b.client.logger.Warn("teardown event delivery failed",
				logging.Error(err),
				logging.String("session", batch.SessionID))
		}
	}()
}

// Wait blocks until in-flight beacons settle or the context expires.
// Callers that can afford a short grace period before exit use this to
// raise the odds of final batches landing.
func (b *Beacon) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
