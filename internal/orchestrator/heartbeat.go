package orchestrator

import (
	"context"
	"sync"
	"time"

	"podingest/internal/logging"
)

// startHeartbeat launches a ticker that periodically records liveness for
// sourceID so a crashed worker's in-flight source can be reclaimed by
// ReclaimStaleProcessing. It returns a stop function that blocks until the
// loop has exited.
func (o *Orchestrator) startHeartbeat(ctx context.Context, sourceID int64) func() {
	interval := o.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	loopCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if err := o.Store.UpdateHeartbeat(ctx, sourceID); err != nil {
					logging.WithContext(ctx, o.Logger).Warn("heartbeat update failed",
						logging.Int64("source_id", sourceID), logging.Error(err))
				}
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}
