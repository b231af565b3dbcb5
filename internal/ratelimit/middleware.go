package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-sekolah/internal/branch"
	"github.com/noah-isme/backend-sekolah/internal/common"
)

// KeyFunc derives the bucket a request is counted against. An empty key
// skips limiting.
type KeyFunc func(*http.Request) string

// Handler enforces a ulule limiter before delegating to the next handler.
type Handler struct {
	Limiter *limiter.Limiter
	Key     KeyFunc
	OnError func(error)
	Now     func() time.Time
}

// Middleware counts the request and answers 429 once the bucket is spent.
// Store failures let the request through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil || h.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := h.Key(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		res, err := h.Limiter.Get(r.Context(), key)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))

		if res.Reached {
			now := time.Now
			if h.Now != nil {
				now = h.Now
			}
			retryAfter := res.Reset - now().Unix()
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many settlement attempts, try again shortly", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ByCashier buckets requests per branch and authenticated cashier, falling
// back to the client IP.
func ByCashier(r *http.Request) string {
	branchID, _ := branch.From(r.Context())
	if id, ok := common.CashierID(r.Context()); ok {
		return branch.Key(branchID, "cashier", id)
	}
	return branch.Key(branchID, "ip", common.ClientIP(r))
}
