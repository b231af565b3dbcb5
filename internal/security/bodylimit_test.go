package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func echoBody(t *testing.T, captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		*captured = string(data)
		w.WriteHeader(http.StatusOK)
	})
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements/preview", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return req
}

func TestBodyLimitPassesDraftThrough(t *testing.T) {
	var captured string
	handler := BodyLimit{Max: 64, RequireJSON: true}.Middleware(echoBody(t, &captured))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, jsonRequest(`{"method":"CASH"}`))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `{"method":"CASH"}`, captured)
}

func TestBodyLimitRejectsOversizedDraft(t *testing.T) {
	var captured string
	handler := BodyLimit{Max: 8}.Middleware(echoBody(t, &captured))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, jsonRequest(`{"draft":{"selected":["a","b"]}}`))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), `"PAYLOAD_TOO_LARGE"`)
	require.Empty(t, captured)
}

func TestBodyLimitRejectsChunkedOverflow(t *testing.T) {
	var captured string
	handler := BodyLimit{Max: 4}.Middleware(echoBody(t, &captured))

	req := jsonRequest(`{"x":1}`)
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestBodyLimitRequiresJSONOnWrites(t *testing.T) {
	var captured string
	handler := BodyLimit{Max: 64, RequireJSON: true}.Middleware(echoBody(t, &captured))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/enrollments/e1/book-fee", strings.NewReader("amount=450"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	require.Contains(t, rr.Body.String(), `"UNSUPPORTED_MEDIA_TYPE"`)

	get := httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, get)
	require.Equal(t, http.StatusOK, rr.Code)
}
