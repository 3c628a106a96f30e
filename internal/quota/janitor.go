package quota

import (
	"context"
	"time"
)

// Sweep evicts every bucket that has been quiescent for longer than idle and
// returns how many were removed. Eviction preserves quota state: a quiescent
// bucket is full, its key's limits are remembered, and a later Resolve
// recreates an identical full bucket. The one exception is a decision already
// in flight when its bucket is evicted; it lands on the orphaned bucket and
// its spend is not carried over to the recreated one. The compare-and-delete
// keeps a concurrent Configure's replacement bucket out of the sweep.
func (r *Registry) Sweep(idle time.Duration) int {
	now := r.now()
	evicted := 0
	r.buckets.Range(func(k, v any) bool {
		if v.(*Bucket).Quiescent(now, idle) {
			if r.buckets.CompareAndDelete(k, v) {
				r.size.Add(-1)
				evicted++
			}
		}
		return true
	})
	return evicted
}

// RunJanitor sweeps on every tick until ctx is cancelled. It blocks; run it
// on its own goroutine. swept, when non-nil, observes each sweep that evicted
// at least one bucket.
func (r *Registry) RunJanitor(ctx context.Context, every, idle time.Duration, swept func(evicted int)) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(idle); n > 0 && swept != nil {
				swept(n)
			}
		}
	}
}
