package quota

import (
	"sync"
	"sync/atomic"
	"time"
)

// Status is a Snapshot for a named key.
type Status struct {
	Key string
	Snapshot
}

// Registry owns the full set of known keys and their buckets. Keys are
// discovered lazily: the first reference to a key creates a bucket with the
// default limits, and Configure installs (or replaces) a bucket with explicit
// limits. Distinct keys never contend with each other; the per-entry
// synchronization lives inside each Bucket.
type Registry struct {
	now  func() time.Time
	size atomic.Int64

	mu        sync.RWMutex // guards defaults and overrides
	defaults  Limits
	overrides map[string]Limits

	buckets sync.Map // key string -> *Bucket
}

// NewRegistry builds an empty registry. Lazily created buckets use defaults,
// which must be positive. A nil now falls back to time.Now; tests inject a
// fake clock here to make refill arithmetic exact.
func NewRegistry(defaults Limits, now func() time.Time) (*Registry, error) {
	if err := defaults.validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		now:       now,
		defaults:  defaults,
		overrides: make(map[string]Limits),
	}, nil
}

// Defaults returns the limits applied to keys that have never been configured.
func (r *Registry) Defaults() Limits {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// SetDefaults replaces the default limits for future lazy creations. Existing
// buckets keep the limits they were created with.
func (r *Registry) SetDefaults(l Limits) error {
	if err := l.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.defaults = l
	r.mu.Unlock()
	return nil
}

// limitsFor resolves the limits a fresh bucket for key would be created with:
// the configured override when one exists, the defaults otherwise.
func (r *Registry) limitsFor(key string) Limits {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.overrides[key]; ok {
		return l
	}
	return r.defaults
}

// Resolve returns the bucket for key, creating it if absent. Creation is
// insert-if-absent: concurrent resolves of a never-seen key end up sharing a
// single bucket, and a bucket installed by a racing Configure is never
// overwritten by the default.
func (r *Registry) Resolve(key string) *Bucket {
	if v, ok := r.buckets.Load(key); ok {
		return v.(*Bucket)
	}

	b := newBucket(r.limitsFor(key), r.now())
	if v, loaded := r.buckets.LoadOrStore(key, b); loaded {
		return v.(*Bucket)
	}
	r.size.Add(1)
	return b
}

// Configure validates l and installs a fresh, full bucket for key, replacing
// any existing one and discarding its token state. The override is remembered
// so the key keeps these limits even if the janitor later evicts the bucket.
// On validation failure nothing changes.
func (r *Registry) Configure(key string, l Limits) error {
	if err := l.validate(); err != nil {
		return err
	}

	b := newBucket(l, r.now())

	// Override and bucket are written under one lock so racing configures
	// cannot finish with the live bucket from one call and the remembered
	// limits from another. Replacement, not mutation: operations in flight
	// on the old bucket keep a valid reference, new lookups see the new one.
	r.mu.Lock()
	_, loaded := r.buckets.Swap(key, b)
	r.overrides[key] = l
	r.mu.Unlock()

	if !loaded {
		r.size.Add(1)
	}
	return nil
}

// Decide resolves the bucket for key and attempts to consume cost tokens.
func (r *Registry) Decide(key string, cost uint32) Decision {
	return r.Resolve(key).Take(cost, r.now())
}

// Describe resolves the bucket for key and reports its refreshed state.
func (r *Registry) Describe(key string) Status {
	return Status{Key: key, Snapshot: r.Resolve(key).Snapshot(r.now())}
}

// Len returns the number of keys currently holding a bucket.
func (r *Registry) Len() int {
	return int(r.size.Load())
}
