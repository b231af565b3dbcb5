package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sekolah/internal/audit"
	"github.com/noah-isme/backend-sekolah/internal/auth"
	"github.com/noah-isme/backend-sekolah/internal/branch"
	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/common"
	"github.com/noah-isme/backend-sekolah/internal/health"
	"github.com/noah-isme/backend-sekolah/internal/obs"
	"github.com/noah-isme/backend-sekolah/internal/payment"
	"github.com/noah-isme/backend-sekolah/internal/ratelimit"
	"github.com/noah-isme/backend-sekolah/internal/security"
)

// RouterConfig collects handlers and middleware for the HTTP API.
type RouterConfig struct {
	Logger         zerolog.Logger
	Metrics        *obs.HTTPMetrics
	MetricsHandler http.Handler
	Tracing        bool

	CORSOrigins   []string
	Branches      *branch.Resolver
	BodyLimit     int64
	SecureHeaders bool

	Health      health.Handler
	Auth        auth.TokenParser
	Idempotency common.Idem
	RateLimit   ratelimit.Handler

	Fees     catalog.Handler
	Payments *payment.Handler
	Audit    audit.Handler
}

// NewRouter mounts the fee counter API.
func NewRouter(rc RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RequestScope)
	if rc.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if rc.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: rc.Metrics}.Middleware)
	}
	r.Use(rc.Branches.Middleware)
	r.Use(obs.RequestLogger{Logger: rc.Logger}.Middleware)
	r.Use(obs.ContextLogger(rc.Logger))
	r.Use(security.Headers{Enable: rc.SecureHeaders, EnableHSTS: rc.SecureHeaders}.Middleware)
	branchHeader := ""
	if rc.Branches != nil {
		branchHeader = rc.Branches.HeaderName
	}
	r.Use(security.CORS(rc.CORSOrigins, branchHeader))

	if rc.MetricsHandler != nil {
		r.Handle("/metrics", rc.MetricsHandler)
	}
	r.Get("/health/live", rc.Health.Live)
	r.Get("/health/ready", rc.Health.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: rc.BodyLimit, RequireJSON: true}.Middleware)
		v.Use(branch.Require)
		v.Use(auth.Middleware{Parser: rc.Auth}.RequireCashier)

		v.Route("/enrollments/{enrollmentId}", func(e chi.Router) {
			e.Get("/fees", rc.Fees.ListFees)
			e.With(rc.Idempotency.Middleware).Put("/book-fee", rc.Fees.UpdateBookFee)
			e.Get("/settlements", rc.Payments.List)
		})

		v.Post("/settlements/preview", rc.Payments.Preview)
		v.With(rc.RateLimit.Middleware, rc.Idempotency.Middleware).Post("/settlements", rc.Payments.Settle)

		v.Get("/audit", rc.Audit.List)
	})

	return r
}
