package monitorscheduler

import "time"

// timeBudget tracks the monotonic wall-clock deadline for one tick
// (spec.md §4.2, "Time budget"). deadline = configured function timeout
// minus a safety buffer, computed once at tick start.
type timeBudget struct {
	deadline    time.Time
	minNewBatch time.Duration
}

func newTimeBudget(now time.Time, functionTimeout, safetyBuffer, minTimeForNewBatch time.Duration) *timeBudget {
	return &timeBudget{
		deadline:    now.Add(functionTimeout - safetyBuffer),
		minNewBatch: minTimeForNewBatch,
	}
}

func (b *timeBudget) remaining(now time.Time) time.Duration {
	return b.deadline.Sub(now)
}

// shouldStartWork reports whether there is enough budget left to launch
// another batch. In-flight work is always allowed to finish; this only
// gates the decision to start something new.
func (b *timeBudget) shouldStartWork(now time.Time) bool {
	return b.remaining(now) >= b.minNewBatch
}
