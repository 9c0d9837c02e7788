package engine

import (
	"context"
	"time"
)

// RunSweeper periodically expires stale leases so idle observer devices
// unlock within bounded time even with zero inbound traffic. The interval
// should be at most half the lease TTL. Blocks until ctx is cancelled.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.sweepExpired(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) sweepExpired(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.accounts))
	for id := range e.accounts {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		st := e.account(id)
		st.mu.Lock()
		e.expireLeaseLocked(ctx, st, id)
		st.mu.Unlock()
	}
}
