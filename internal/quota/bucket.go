package quota

import (
	"errors"
	"math"
	"sync"
	"time"
)

// ErrInvalidLimits rejects configurations where refill can never happen or
// every request would be denied forever.
var ErrInvalidLimits = errors.New("refill rate and capacity must be positive")

// Limits is the fixed configuration of one bucket.
type Limits struct {
	Rate     float64 // tokens added per second
	Capacity float64 // maximum tokens held
}

func (l Limits) validate() error {
	if l.Rate <= 0 || l.Capacity <= 0 {
		return ErrInvalidLimits
	}
	return nil
}

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // 0 when allowed; otherwise the minimum wait, rounded up to a millisecond and saturating at maxWaitMS
	Remaining  float64       // tokens left after the decision (unchanged on denial)
}

// maxWaitMS is the largest wait a time.Duration can carry in milliseconds
// (about 292 years). A huge cost against a slow bucket can demand more;
// reporting anything negative would invite an instant retry, so the wait
// saturates here instead.
const maxWaitMS = math.MaxInt64 / int64(time.Millisecond)

// Snapshot reports a bucket's state at one instant. Taking a snapshot refills
// the bucket first so Tokens reflects the current time; it never consumes.
type Snapshot struct {
	Tokens      float64
	Rate        float64
	Capacity    float64
	SinceRefill time.Duration
}

// Bucket is a single token bucket. Tokens accrue continuously at Rate up to
// Capacity and are spent by Take. All methods are safe for concurrent use;
// the refill-then-decide step runs as one critical section so concurrent
// callers can never spend the same tokens twice.
type Bucket struct {
	mu         sync.Mutex
	rate       float64
	capacity   float64
	tokens     float64
	lastRefill time.Time
}

// NewBucket returns a full bucket with the given limits. The caller supplies
// the creation instant so clocks stay injectable.
func NewBucket(l Limits, now time.Time) (*Bucket, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	return newBucket(l, now), nil
}

// newBucket skips validation; limits must have been validated by the caller.
func newBucket(l Limits, now time.Time) *Bucket {
	return &Bucket{
		rate:       l.Rate,
		capacity:   l.Capacity,
		tokens:     l.Capacity,
		lastRefill: now,
	}
}

// refill credits tokens for the time elapsed since the last refill, capped at
// capacity. Must be called with b.mu held. Sub uses the monotonic reading, so
// wall-clock jumps cannot drain or overfill the bucket; a non-positive
// elapsed leaves the state untouched.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+elapsed.Seconds()*b.rate)
	b.lastRefill = now
}

// Take attempts to consume cost tokens. A cost of zero counts as one: every
// call is a real request, never a free peek. On denial the bucket is left
// untouched and RetryAfter reports how long until the missing tokens will
// have accrued, rounded up so callers never retry early.
func (b *Bucket) Take(cost uint32, now time.Time) Decision {
	if cost == 0 {
		cost = 1
	}
	need := float64(cost)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)

	if b.tokens >= need {
		b.tokens -= need
		return Decision{Allowed: true, Remaining: b.tokens}
	}

	missing := need - b.tokens
	waitMS := math.Ceil(missing * 1000 / b.rate)
	if waitMS > float64(maxWaitMS) {
		waitMS = float64(maxWaitMS)
	}
	return Decision{
		Allowed:    false,
		RetryAfter: time.Duration(waitMS) * time.Millisecond,
		Remaining:  b.tokens,
	}
}

// Snapshot refills, then reports the bucket's state. Safe to call arbitrarily
// often: refilling only ever adds tokens.
func (b *Bucket) Snapshot(now time.Time) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)

	since := now.Sub(b.lastRefill)
	if since < 0 {
		since = 0
	}
	return Snapshot{
		Tokens:      b.tokens,
		Rate:        b.rate,
		Capacity:    b.capacity,
		SinceRefill: since,
	}
}

// Quiescent reports whether the bucket has seen no traffic for longer than
// idle and holds (or would hold, once refilled) a full complement of tokens.
// A quiescent bucket is indistinguishable from a brand-new one, which makes
// it safe to evict. Unlike Snapshot this does not refill, so probing never
// disturbs the idle signal.
func (b *Bucket) Quiescent(now time.Time, idle time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill)
	if elapsed <= idle {
		return false
	}
	return b.tokens+elapsed.Seconds()*b.rate >= b.capacity
}
