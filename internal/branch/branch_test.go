package branch_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sekolah/internal/branch"
)

func TestResolverPrefersHeader(t *testing.T) {
	r := branch.NewResolver("", "school.test", "main")
	req := httptest.NewRequest(http.MethodGet, "http://north.school.test/api", nil)
	req.Header.Set(branch.DefaultHeader, "south")
	require.Equal(t, "south", r.Resolve(req))

	req.Header.Del(branch.DefaultHeader)
	require.Equal(t, "north", r.Resolve(req))

	req = httptest.NewRequest(http.MethodGet, "http://school.test:8080/api", nil)
	require.Equal(t, "", r.Resolve(req))
}

func TestMiddlewareFallsBackToDefault(t *testing.T) {
	r := branch.NewResolver("X-Branch-ID", "", "main")
	var seen string
	h := r.Middleware(branch.Require(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen, _ = branch.From(req.Context())
	})))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "main", seen)
}

func TestRequireRejectsMissingBranch(t *testing.T) {
	r := branch.NewResolver("", "", "")
	h := r.Middleware(branch.Require(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("handler must not run")
	})))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "BRANCH_REQUIRED")
}

func TestKey(t *testing.T) {
	require.Equal(t, "b1:fees:e9", branch.Key("b1", "fees", "e9"))
	require.Equal(t, "fees:e9", branch.Key("", "fees", "e9"))
}
