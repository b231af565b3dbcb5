package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ReplayHeader marks a response served from the idempotency store.
const ReplayHeader = "Idempotent-Replayed"

// Idem provides an Idempotency-Key middleware backed by Redis.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

// idemRecord is what a key holds: a pending marker while the first request
// runs, then the response it produced.
type idemRecord struct {
	RequestHash string `json:"requestHash"`
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func hashKey(scope, key string) string {
	sum := sha256.Sum256([]byte(scope + "|" + key))
	return "idem:" + hex.EncodeToString(sum[:])
}

func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method + " " + r.URL.Path + "\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Middleware enforces idempotency semantics for write endpoints. Keys are
// scoped per cashier. The first successful response is stored and replayed
// for every retry with the same key and body. A request that fails (status
// >= 400) releases its key so the cashier can retry the same draft.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		var body []byte
		if r.Body != nil {
			var err error
			if body, err = io.ReadAll(r.Body); err != nil {
				JSONError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		scope, _ := CashierID(ctx)
		key := hashKey(scope, header)
		fingerprint := requestHash(r, body)
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}

		pending, _ := json.Marshal(idemRecord{RequestHash: fingerprint, Pending: true})
		claimed, err := i.R.SetNX(ctx, key, pending, ttl).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
			return
		}
		if !claimed {
			i.answerRetry(w, r, key, fingerprint)
			return
		}

		rec := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		store := context.WithoutCancel(ctx)
		if rec.status >= http.StatusBadRequest {
			_ = i.R.Del(store, key).Err()
			return
		}
		done, _ := json.Marshal(idemRecord{
			RequestHash: fingerprint,
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		_ = i.R.Set(store, key, done, ttl).Err()
	})
}

func (i Idem) answerRetry(w http.ResponseWriter, r *http.Request, key, fingerprint string) {
	raw, err := i.R.Get(r.Context(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		// the first attempt failed and released the key
		w.Header().Set("Retry-After", "1")
		JSONError(w, http.StatusConflict, "IDEMPOTENT_IN_FLIGHT", "request is still being processed, retry", nil)
		return
	}
	var prior idemRecord
	if err != nil || json.Unmarshal(raw, &prior) != nil {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
		return
	}
	if prior.RequestHash != fingerprint {
		JSONError(w, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "idempotency key was used for a different request", nil)
		return
	}
	if prior.Pending {
		w.Header().Set("Retry-After", "1")
		JSONError(w, http.StatusConflict, "IDEMPOTENT_IN_FLIGHT", "request is still being processed, retry", nil)
		return
	}
	if prior.ContentType != "" {
		w.Header().Set("Content-Type", prior.ContentType)
	}
	w.Header().Set(ReplayHeader, "true")
	w.WriteHeader(prior.Status)
	_, _ = w.Write(prior.Body)
}

// captureWriter records the status and a copy of the body.
type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
