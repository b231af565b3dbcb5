// Package branch resolves the school branch (tenant) a request acts for.
// The resolved identifier is read once by handlers and passed explicitly to
// services; nothing below the HTTP layer reads it from the context.
package branch

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const branchContextKey contextKey = "branch.id"

// DefaultHeader carries the branch identifier when no subdomain is used.
const DefaultHeader = "X-Branch-ID"

// Resolver resolves branch identifiers from HTTP requests using either headers or subdomains.
type Resolver struct {
	HeaderName    string
	RootDomain    string
	DefaultBranch string
}

// NewResolver returns a resolver configured with the provided header name, root domain, and default branch.
func NewResolver(headerName, rootDomain, defaultBranch string) *Resolver {
	if strings.TrimSpace(headerName) == "" {
		headerName = DefaultHeader
	}
	return &Resolver{
		HeaderName:    headerName,
		RootDomain:    strings.ToLower(strings.TrimSpace(rootDomain)),
		DefaultBranch: strings.TrimSpace(defaultBranch),
	}
}

// Middleware resolves the branch and injects it into the downstream context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := r.Resolve(req)
		if id == "" {
			id = r.DefaultBranch
		}
		if id != "" {
			req = req.WithContext(With(req.Context(), id))
		}
		next.ServeHTTP(w, req)
	})
}

// Resolve looks at the configured header first, then the request subdomain.
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if id := strings.TrimSpace(req.Header.Get(r.HeaderName)); id != "" {
		return id
	}
	host := hostWithoutPort(req.Host)
	if host == "" || r.RootDomain == "" {
		return ""
	}
	host = strings.ToLower(host)
	suffix := "." + r.RootDomain
	if host == r.RootDomain || !strings.HasSuffix(host, suffix) {
		return ""
	}
	sub := strings.TrimSuffix(host, suffix)
	if idx := strings.LastIndex(sub, "."); idx >= 0 {
		sub = sub[idx+1:]
	}
	return strings.TrimSpace(sub)
}

// Require rejects requests without a resolved branch.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := From(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BRANCH_REQUIRED","message":"branch is required"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// With stores the branch identifier inside the context.
func With(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, branchContextKey, id)
}

// From extracts the branch identifier from the context if available.
func From(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(branchContextKey).(string)
	if !ok {
		return "", false
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

// Key namespaces a cache or lock key per branch.
func Key(branchID string, parts ...string) string {
	key := strings.Join(parts, ":")
	if branchID == "" {
		return key
	}
	return branchID + ":" + key
}

func hostWithoutPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.Trim(h, "[]")
	}
	return strings.Trim(hostport, "[]")
}
