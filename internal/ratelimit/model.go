package ratelimit

import (
	"context"
	"time"
)

// Class is an endpoint class with its own independent request budget.
type Class string

const (
	ClassGeneral       Class = "general"
	ClassDropRead      Class = "drop_read"
	ClassQueueOp       Class = "queue_op"
	ClassReservationOp Class = "reservation_op"
)

// Limit is a fixed-window budget: at most Requests calls per Window.
type Limit struct {
	Requests int64
	Window   time.Duration
}

// Decision is the outcome of one Allow call. RetryAfter is how long the
// caller must wait for the current window to roll over; it is zero when the
// request was allowed.
type Decision struct {
	Allow      bool
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, clientKey string, class Class, limit Limit) (Decision, error)
}
