package metadatastore

import (
	"context"
	"sync"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
)

// pendingWrite is one queued mutation, carried as the closure that applies
// it to the backend.
type pendingWrite struct {
	apply func() error
}

// writeBuffer is the bounded, backpressured async queue sitting in front
// of a Postgres-backed Backend, so a burst of applied commands doesn't
// each pay a synchronous round trip before the next log entry can apply.
// Grounded on internal/buffer/writebuffer.go's (teacher) buffer-per-key
// plus background flush loop, collapsed from byte-range coalescing (which
// a full-row metadata upsert has no use for) down to a plain bounded
// channel: Submit blocks once maxPending writes are queued, which is the
// backpressure Postgres-backed deployments need.
type writeBuffer struct {
	queue chan pendingWrite

	mu      sync.Mutex
	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func newWriteBuffer(maxPending, workers int) *writeBuffer {
	if maxPending <= 0 {
		maxPending = 256
	}
	if workers <= 0 {
		workers = 4
	}
	wb := &writeBuffer{
		queue:   make(chan pendingWrite, maxPending),
		workers: workers,
		stopCh:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		wb.wg.Add(1)
		go wb.worker()
	}
	return wb
}

func (wb *writeBuffer) worker() {
	defer wb.wg.Done()
	for {
		select {
		case <-wb.stopCh:
			return
		case pw := <-wb.queue:
			_ = pw.apply()
		}
	}
}

// Submit enqueues apply, blocking if the queue is full or ctx is cancelled.
func (wb *writeBuffer) Submit(ctx context.Context, apply func() error) error {
	select {
	case wb.queue <- pendingWrite{apply: apply}:
		return nil
	case <-ctx.Done():
		return kernelerrors.TimeoutErr("metadatastore", "write buffer submit: context cancelled")
	}
}

func (wb *writeBuffer) Close() error {
	close(wb.stopCh)
	wb.wg.Wait()
	return nil
}
