package http

import (
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/smatracka/hotdrop/internal/config"
	"github.com/smatracka/hotdrop/internal/ratelimit"
)

// RateLimit enforces per-client request budgets. Routes are bucketed into
// endpoint classes so a burst of queue polling cannot starve reservation
// traffic. When the limiter itself fails, cfg.FailOpen decides whether
// requests pass or get a 503.
func RateLimit(limiter ratelimit.Limiter, cfg config.RateLimitConfig, logger *log.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		class, limit := classify(r, cfg)
		decision, err := limiter.Allow(r.Context(), clientKey(r), class, limit)
		if err != nil {
			logger.Printf("WARN: rate limiter: %v", err)
			if cfg.FailOpen {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusServiceUnavailable, codeLimiterUnavailable, "rate limiter unavailable")
			return
		}
		if !decision.Allow {
			seconds := int(decision.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// classify buckets a request into its endpoint class.
func classify(r *http.Request, cfg config.RateLimitConfig) (ratelimit.Class, ratelimit.Limit) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch parts[0] {
	case "drops":
		if len(parts) == 3 && parts[2] == "queue" && r.Method == http.MethodGet {
			return ratelimit.ClassDropRead, toLimit(cfg.DropRead)
		}
		if len(parts) == 4 && parts[2] == "queue" {
			return ratelimit.ClassQueueOp, toLimit(cfg.QueueOp)
		}
		if len(parts) == 3 && parts[2] == "cart-reservations" {
			return ratelimit.ClassReservationOp, toLimit(cfg.ReservationOp)
		}
	case "cart-reservations":
		if r.Method == http.MethodGet {
			return ratelimit.ClassDropRead, toLimit(cfg.DropRead)
		}
		return ratelimit.ClassReservationOp, toLimit(cfg.ReservationOp)
	}
	return ratelimit.ClassGeneral, toLimit(cfg.General)
}

func toLimit(cl config.ClassLimit) ratelimit.Limit {
	return ratelimit.Limit{
		Requests: cl.Requests,
		Window:   cl.Window(),
	}
}

// clientKey identifies the caller for limiting: the first X-Forwarded-For
// hop when present, otherwise the connection's remote host.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
