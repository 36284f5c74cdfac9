package monitorlock

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Heartbeat runs Extend on interval until ctx is cancelled or an extend
// fails, then closes lost and returns; lost is closed in both cases. Callers
// should treat a closed lost channel as "stop all work for this region
// immediately" (spec.md §4.2).
func Heartbeat(ctx context.Context, lock *RegionLock, region, owner string, interval time.Duration, log *zap.Logger) (lost <-chan struct{}) {
	lostCh := make(chan struct{})
	go func() {
		defer close(lostCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lock.Extend(ctx, region, owner); err != nil {
					log.Warn("lock heartbeat failed, surrendering region", zap.String("region", region), zap.Error(err))
					return
				}
			}
		}
	}()
	return lostCh
}
