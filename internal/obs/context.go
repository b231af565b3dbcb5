package obs

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

type routePatternKey struct{}

type tagsKey struct{}

// requestTags collects attributes learned deep in the handler chain
// (branch, cashier) so outer middleware can report them after the
// request completes.
type requestTags struct {
	mu     sync.Mutex
	values map[string]string
}

// WithRoutePattern pins the route label for requests served outside chi.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RequestScope installs the per-request tag set. It must run before the
// logging, tracing and metrics middleware.
func RequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), tagsKey{}, &requestTags{values: map[string]string{}})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Tag records key=value on the current request scope. It is a no-op when no
// scope is installed.
func Tag(ctx context.Context, key, value string) {
	if ctx == nil || value == "" {
		return
	}
	tags, ok := ctx.Value(tagsKey{}).(*requestTags)
	if !ok {
		return
	}
	tags.mu.Lock()
	tags.values[key] = value
	tags.mu.Unlock()
}

func tagValue(ctx context.Context, key string) string {
	tags, ok := ctx.Value(tagsKey{}).(*requestTags)
	if !ok {
		return ""
	}
	tags.mu.Lock()
	defer tags.mu.Unlock()
	return tags.values[key]
}

// routeOf resolves the matched chi pattern. chi fills its route context while
// routing, so outer middleware must call this after the handler returns.
func routeOf(r *http.Request, fallback string) string {
	if v, ok := r.Context().Value(routePatternKey{}).(string); ok && v != "" {
		return v
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && pattern != "/*" {
			return pattern
		}
	}
	return fallback
}
