package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryLimiter_Allow(t *testing.T) {
	t.Parallel()

	limit := Limit{Requests: 3, Window: time.Minute}

	t.Run("counts down remaining", func(t *testing.T) {
		t.Parallel()
		limiter := NewMemoryLimiter()

		dec, err := limiter.Allow(context.Background(), "1.2.3.4", ClassGeneral, limit)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !dec.Allow {
			t.Fatal("expected first request allowed")
		}
		if dec.Remaining != 2 {
			t.Fatalf("expected 2 remaining, got %d", dec.Remaining)
		}
	})

	t.Run("denies once budget is spent", func(t *testing.T) {
		t.Parallel()
		limiter := NewMemoryLimiter()

		for i := 0; i < 3; i++ {
			dec, err := limiter.Allow(context.Background(), "1.2.3.4", ClassGeneral, limit)
			if err != nil {
				t.Fatalf("allow %d: %v", i, err)
			}
			if !dec.Allow {
				t.Fatalf("request %d unexpectedly denied", i)
			}
		}

		dec, err := limiter.Allow(context.Background(), "1.2.3.4", ClassGeneral, limit)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if dec.Allow {
			t.Fatal("expected fourth request denied")
		}
		if dec.RetryAfter <= 0 || dec.RetryAfter > time.Minute {
			t.Fatalf("expected retry-after within the window, got %v", dec.RetryAfter)
		}
	})

	t.Run("window expiry resets the budget", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
		limiter := NewMemoryLimiter()
		limiter.now = func() time.Time { return now }

		for i := 0; i < 3; i++ {
			limiter.Allow(context.Background(), "1.2.3.4", ClassGeneral, limit)
		}
		if dec, _ := limiter.Allow(context.Background(), "1.2.3.4", ClassGeneral, limit); dec.Allow {
			t.Fatal("expected denial before window rollover")
		}

		now = now.Add(time.Minute)
		dec, err := limiter.Allow(context.Background(), "1.2.3.4", ClassGeneral, limit)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !dec.Allow {
			t.Fatal("expected fresh window to admit")
		}
		if dec.Remaining != 2 {
			t.Fatalf("expected 2 remaining in fresh window, got %d", dec.Remaining)
		}
	})

	t.Run("classes have independent budgets", func(t *testing.T) {
		t.Parallel()
		limiter := NewMemoryLimiter()
		tight := Limit{Requests: 1, Window: time.Minute}

		if dec, _ := limiter.Allow(context.Background(), "1.2.3.4", ClassQueueOp, tight); !dec.Allow {
			t.Fatal("expected queue op allowed")
		}
		if dec, _ := limiter.Allow(context.Background(), "1.2.3.4", ClassQueueOp, tight); dec.Allow {
			t.Fatal("expected queue op budget spent")
		}
		if dec, _ := limiter.Allow(context.Background(), "1.2.3.4", ClassDropRead, tight); !dec.Allow {
			t.Fatal("expected drop read unaffected by queue op budget")
		}
	})

	t.Run("clients have independent budgets", func(t *testing.T) {
		t.Parallel()
		limiter := NewMemoryLimiter()
		tight := Limit{Requests: 1, Window: time.Minute}

		if dec, _ := limiter.Allow(context.Background(), "1.2.3.4", ClassGeneral, tight); !dec.Allow {
			t.Fatal("expected first client allowed")
		}
		if dec, _ := limiter.Allow(context.Background(), "5.6.7.8", ClassGeneral, tight); !dec.Allow {
			t.Fatal("expected second client allowed")
		}
	})
}

func TestMemoryLimiter_PrunesExpiredWindows(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter()
	limiter.now = func() time.Time { return now }
	limit := Limit{Requests: 5, Window: time.Minute}

	for _, client := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		limiter.Allow(context.Background(), client, ClassGeneral, limit)
	}
	if got := len(limiter.windows); got != 3 {
		t.Fatalf("expected 3 tracked windows, got %d", got)
	}

	// All three windows roll over; the next request past the prune interval
	// drops them and tracks only the caller's fresh window.
	now = now.Add(2 * time.Minute)
	limiter.Allow(context.Background(), "4.4.4.4", ClassGeneral, limit)

	limiter.mu.Lock()
	got := len(limiter.windows)
	limiter.mu.Unlock()
	if got != 1 {
		t.Fatalf("expected expired windows pruned down to 1, got %d", got)
	}
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryLimiter()
	limit := Limit{Requests: 50, Window: time.Minute}

	var wg sync.WaitGroup
	allowed := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := limiter.Allow(context.Background(), "1.2.3.4", ClassGeneral, limit)
			if err != nil {
				t.Errorf("allow: %v", err)
				return
			}
			allowed <- dec.Allow
		}()
	}
	wg.Wait()
	close(allowed)

	admitted := 0
	for ok := range allowed {
		if ok {
			admitted++
		}
	}
	if admitted != 50 {
		t.Fatalf("expected exactly 50 admitted, got %d", admitted)
	}
}
