package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/backend-sekolah/internal/app"
	"github.com/noah-isme/backend-sekolah/internal/audit"
	"github.com/noah-isme/backend-sekolah/internal/branch"
	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/common"
	"github.com/noah-isme/backend-sekolah/internal/config"
	"github.com/noah-isme/backend-sekolah/internal/db"
	"github.com/noah-isme/backend-sekolah/internal/health"
	"github.com/noah-isme/backend-sekolah/internal/obs"
	"github.com/noah-isme/backend-sekolah/internal/payment"
	"github.com/noah-isme/backend-sekolah/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "sekolah-api",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      cfg.TracingExporter,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
			Branch:        cfg.DefaultBranch,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.MigrationsAuto {
		migrator, err := db.NewMigrator(cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open migrations")
		}
		if err := migrator.Up(); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		if err := migrator.Close(); err != nil {
			logger.Error().Err(err).Msg("close migrator")
		}
	}

	pool, err := db.Open(startCtx, cfg.DatabaseURL, "sekolah-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisClient, err := app.OpenRedis(startCtx, cfg.RedisURL, cfg.MetricsEnabled, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse asynq redis url")
	}
	tasks := asynq.NewClient(redisOpt)
	defer func() {
		if err := tasks.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	svc, err := app.NewServices(app.Dependencies{
		Config: cfg,
		Logger: logger,
		DB:     pool,
		Redis:  redisClient,
		Tasks:  tasks,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}

	var httpMetrics *obs.HTTPMetrics
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, buckets, nil)
		metricsHandler = promhttp.Handler()
	}

	router := app.NewRouter(app.RouterConfig{
		Logger:         logger,
		Metrics:        httpMetrics,
		MetricsHandler: metricsHandler,
		Tracing:        tracingEnabled,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		Branches:       branch.NewResolver(cfg.BranchHeader, cfg.BranchRootDomain, cfg.DefaultBranch),
		BodyLimit:      cfg.BodyLimitBytes,
		SecureHeaders:  true,
		Health: health.Handler{Probes: map[string]health.Probe{
			"db":    health.PostgresProbe(pool),
			"redis": health.RedisProbe(redisClient),
		}},
		Auth:        svc.Verifier,
		Idempotency: common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL},
		RateLimit: ratelimit.Handler{
			Limiter: svc.Limiter,
			Key:     ratelimit.ByCashier,
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate limit store") },
		},
		Fees:     catalog.Handler{Provider: svc.Fees, Adjuster: svc.BookFees, Locale: cfg.DisplayLocale},
		Payments: &payment.Handler{Svc: svc.Payments},
		Audit:    audit.Handler{Store: svc.AuditLog},
	})

	var handler http.Handler = router
	if user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", ""); user != "" {
		mux := http.NewServeMux()
		mux.Handle("/debug/pprof/", protectPprof(newPprofMux(), user, envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")))
		mux.Handle("/", router)
		handler = mux
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("submission_mode", cfg.SubmissionMode).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
