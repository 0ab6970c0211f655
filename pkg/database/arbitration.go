package database

import (
	"context"
	"sync"
)

// arbitrator coordinates the long-lived writer with short-lived HTTP
// connections using two counters and a condition variable. Short-lived
// acquisition increments the reader count and waits for no writer;
// long-lived acquisition waits for the reader count to reach zero. Readers
// never wait on each other, so the HTTP side cannot starve itself; the
// writer advances whenever no short-lived operation is mid-transaction.
type arbitrator struct {
	mu      sync.Mutex
	cond    *sync.Cond
	readers int
	writer  bool
}

func newArbitrator() *arbitrator {
	a := &arbitrator{}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// acquireShortLived registers a short-lived transaction. It returns once no
// long-lived write transaction is in flight, or when ctx is done.
func (a *arbitrator) acquireShortLived(ctx context.Context) error {
	a.mu.Lock()
	a.readers++
	for a.writer {
		if err := ctx.Err(); err != nil {
			a.readers--
			a.cond.Broadcast()
			a.mu.Unlock()
			return err
		}
		a.waitOrCancel(ctx)
	}
	a.mu.Unlock()
	return nil
}

// releaseShortLived unregisters a short-lived transaction.
func (a *arbitrator) releaseShortLived() {
	a.mu.Lock()
	a.readers--
	a.cond.Broadcast()
	a.mu.Unlock()
}

// acquireLongLived takes the writer slot. It returns once every short-lived
// transaction has drained and no other long-lived transaction is in flight.
func (a *arbitrator) acquireLongLived(ctx context.Context) error {
	a.mu.Lock()
	for a.readers > 0 || a.writer {
		if err := ctx.Err(); err != nil {
			a.mu.Unlock()
			return err
		}
		a.waitOrCancel(ctx)
	}
	a.writer = true
	a.mu.Unlock()
	return nil
}

// releaseLongLived frees the writer slot.
func (a *arbitrator) releaseLongLived() {
	a.mu.Lock()
	a.writer = false
	a.cond.Broadcast()
	a.mu.Unlock()
}

// waitOrCancel waits on the condition variable while remaining responsive
// to context cancellation. The watchdog goroutine wakes all waiters when
// ctx fires; spurious wakeups are handled by the callers' loops.
func (a *arbitrator) waitOrCancel(ctx context.Context) {
	if ctx.Done() == nil {
		a.cond.Wait()
		return
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.cond.Broadcast()
		case <-stop:
		}
	}()
	a.cond.Wait()
	close(stop)
}
