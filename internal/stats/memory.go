package stats

import (
	"context"
	"sync"
)

// Counters holds allowed/denied totals.
type Counters struct {
	Allowed int64
	Denied  int64
}

// Memory is an in-process Recorder for tests and single-node development.
// It never expires entries.
type Memory struct {
	mu    sync.Mutex
	total Counters
	byKey map[string]Counters
}

func NewMemory() *Memory {
	return &Memory{byKey: make(map[string]Counters)}
}

func (m *Memory) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.byKey[ev.Key]
	if ev.Allowed {
		m.total.Allowed++
		c.Allowed++
	} else {
		m.total.Denied++
		c.Denied++
	}
	m.byKey[ev.Key] = c
	return nil
}

// Total returns the cumulative counters across all keys.
func (m *Memory) Total() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// ByKey returns a copy of the per-key counters.
func (m *Memory) ByKey() map[string]Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Counters, len(m.byKey))
	for k, v := range m.byKey {
		out[k] = v
	}
	return out
}
