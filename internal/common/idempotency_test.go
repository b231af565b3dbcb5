package common

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func idemRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", key)
	return req.WithContext(WithCashierID(req.Context(), "cashier-1"))
}

func TestIdemReplaysStoredResponse(t *testing.T) {
	idem := Idem{R: newRedis(t), TTL: time.Minute}
	calls := 0
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		JSON(w, http.StatusCreated, map[string]string{"receiptRef": "RCPT-20260601-00000001"})
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idemRequest("abc", `{"enrollmentId":"enr-1"}`))
	require.Equal(t, http.StatusCreated, first.Code)
	require.Empty(t, first.Header().Get(ReplayHeader))

	again := httptest.NewRecorder()
	handler.ServeHTTP(again, idemRequest("abc", `{"enrollmentId":"enr-1"}`))
	require.Equal(t, http.StatusCreated, again.Code)
	require.Equal(t, "true", again.Header().Get(ReplayHeader))
	require.Equal(t, "application/json", again.Header().Get("Content-Type"))
	require.JSONEq(t, first.Body.String(), again.Body.String())
	require.Equal(t, 1, calls)
}

func TestIdemRejectsKeyReuseWithDifferentBody(t *testing.T) {
	idem := Idem{R: newRedis(t), TTL: time.Minute}
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, idemRequest("k1", `{"enrollmentId":"enr-1"}`))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, idemRequest("k1", `{"enrollmentId":"enr-2"}`))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "IDEMPOTENCY_KEY_REUSED")
}

func TestIdemRejectsConcurrentDuplicate(t *testing.T) {
	idem := Idem{R: newRedis(t), TTL: time.Minute}
	var inner *httptest.ResponseRecorder
	var handler http.Handler
	handler = idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inner == nil {
			inner = httptest.NewRecorder()
			handler.ServeHTTP(inner, idemRequest("busy", `{}`))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, idemRequest("busy", `{}`))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, http.StatusConflict, inner.Code)
	require.Contains(t, inner.Body.String(), "IDEMPOTENT_IN_FLIGHT")
	require.Equal(t, "1", inner.Header().Get("Retry-After"))
}

func TestIdemReleasesKeyOnFailure(t *testing.T) {
	idem := Idem{R: newRedis(t), TTL: time.Minute}
	status := http.StatusBadGateway
	calls := 0
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements", nil)
		req.Header.Set("Idempotency-Key", "retry-me")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusBadGateway, send())
	status = http.StatusCreated
	require.Equal(t, http.StatusCreated, send())
	require.Equal(t, 2, calls)
}

func TestIdemScopesKeysPerCashier(t *testing.T) {
	require.NotEqual(t, hashKey("a", "k"), hashKey("b", "k"))
}
