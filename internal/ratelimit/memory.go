package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int64
	started time.Time
	length  time.Duration
}

const pruneInterval = time.Minute

// MemoryLimiter is an in-process fixed-window limiter.
//
// It is safe for concurrent use by multiple goroutines, but its state is
// local to the process and is not shared across replicas. Use RedisLimiter
// when one global budget must cover multiple instances.
type MemoryLimiter struct {
	mu        sync.Mutex
	now       func() time.Time
	windows   map[string]*window
	lastPrune time.Time
}

// NewMemoryLimiter constructs a MemoryLimiter with empty state.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow counts one request for the client in the class's current window and
// rejects it once the window's budget is spent. Rolled-over windows are
// pruned at most once per pruneInterval, keeping the map bounded by the set
// of recently active clients.
func (m *MemoryLimiter) Allow(_ context.Context, clientKey string, class Class, limit Limit) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(now)
	key := string(class) + ":" + clientKey

	w, ok := m.windows[key]
	if !ok || now.Sub(w.started) >= limit.Window {
		w = &window{started: now, length: limit.Window}
		m.windows[key] = w
	}

	w.count++
	if w.count > limit.Requests {
		return Decision{
			Allow:      false,
			Remaining:  0,
			RetryAfter: limit.Window - now.Sub(w.started),
		}, nil
	}
	return Decision{
		Allow:     true,
		Remaining: limit.Requests - w.count,
	}, nil
}

func (m *MemoryLimiter) pruneLocked(now time.Time) {
	if now.Sub(m.lastPrune) < pruneInterval {
		return
	}
	m.lastPrune = now
	for key, w := range m.windows {
		if now.Sub(w.started) >= w.length {
			delete(m.windows, key)
		}
	}
}
