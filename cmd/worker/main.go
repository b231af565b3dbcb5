package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sekolah/internal/app"
	"github.com/noah-isme/backend-sekolah/internal/config"
	"github.com/noah-isme/backend-sekolah/internal/notify"
	"github.com/noah-isme/backend-sekolah/internal/obs"
	"github.com/noah-isme/backend-sekolah/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	redisClient, err := app.OpenRedis(startCtx, cfg.RedisURL, cfg.MetricsEnabled, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	sinks := notify.MultiSink{notify.LogSink{Logger: logger}}
	if cfg.NotifyWebhookURL != "" {
		sinks = append(sinks, notify.WebhookSink{
			Client: resilience.NewHTTPClient("notify-webhook", cfg.NotifyTimeout),
			URL:    cfg.NotifyWebhookURL,
			Secret: cfg.NotifyWebhookSecret,
			Source: "sekolah-worker",
		})
	}

	handler := &notify.EventHandler{
		Sink:   sinks,
		Dedupe: notify.RedisDeduper{Client: redisClient, TTL: cfg.NotifyReplayTTL},
		Locale: cfg.DisplayLocale,
		Logger: logger,
	}
	mux := asynq.NewServeMux()
	handler.Register(mux)

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse asynq redis url")
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{cfg.QueueName: 1},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return resilience.Backoff(2*time.Second, n, 0.2)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("topic", task.Type()).Msg("event handler failed")
		}),
		Logger:          asynqLogger{logger: logger},
		ShutdownTimeout: 15 * time.Second,
	})

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Str("queue", cfg.QueueName).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
