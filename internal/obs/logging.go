package obs

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-sekolah/internal/branch"
	"github.com/noah-isme/backend-sekolah/internal/common"
)

// NewLogger configures a zerolog logger using the provided format and level.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Str("service", "backend-sekolah").Logger()
}

// ContextLogger attaches a request scoped logger carrying the request id
// and branch so handlers and services can log through zerolog.Ctx. The
// branch is also tagged on the request scope for the access log.
func ContextLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lc := base.With().Str("request_id", middleware.GetReqID(r.Context()))
			if branchID, ok := branch.From(r.Context()); ok {
				lc = lc.Str("branch_id", branchID)
				Tag(r.Context(), "branch_id", branchID)
			}
			logger := lc.Logger()
			next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
		})
	}
}

// RequestLogger writes one access log line per request.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)

		ctx := r.Context()
		level := zerolog.InfoLevel
		switch {
		case recorder.Status() >= http.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case recorder.Status() >= http.StatusBadRequest:
			level = zerolog.WarnLevel
		}
		evt := l.Logger.WithLevel(level).
			Str("method", r.Method).
			Str("route", routeOf(r, r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", recorder.Status()).
			Dur("duration", time.Since(start)).
			Int64("bytes", recorder.BytesWritten()).
			Str("request_id", middleware.GetReqID(ctx)).
			Str("client_ip", common.ClientIP(r))
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		if v := scoped(ctx, "cashier_id", common.CashierID); v != "" {
			evt = evt.Str("cashier_id", v)
		}
		if v := scoped(ctx, "branch_id", branch.From); v != "" {
			evt = evt.Str("branch_id", v)
		}
		if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}

// scoped prefers a value tagged by inner middleware and falls back to the
// request context.
func scoped(ctx context.Context, key string, fromCtx func(context.Context) (string, bool)) string {
	if v := tagValue(ctx, key); v != "" {
		return v
	}
	v, _ := fromCtx(ctx)
	return v
}
