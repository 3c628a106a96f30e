// Package stats records per-key admission decisions. Prometheus carries the
// aggregate counters; this sink exists for the per-key detail that cannot
// live in metric labels without unbounded cardinality. Recording is
// best-effort: callers log failures and move on, they never fail a request
// over it.
package stats

import (
	"context"
	"time"
)

// Event is one admission decision.
type Event struct {
	Key     string
	Allowed bool
	Cost    uint32
	At      time.Time
}

// Recorder persists decision events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Noop discards every event. It is the default sink, so the hot path never
// has to check for a nil recorder.
type Noop struct{}

func (Noop) Record(context.Context, Event) error { return nil }
