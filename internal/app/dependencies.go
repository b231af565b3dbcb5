package app

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-sekolah/internal/audit"
	"github.com/noah-isme/backend-sekolah/internal/auth"
	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/config"
	"github.com/noah-isme/backend-sekolah/internal/events"
	"github.com/noah-isme/backend-sekolah/internal/lock"
	"github.com/noah-isme/backend-sekolah/internal/payment"
	"github.com/noah-isme/backend-sekolah/internal/ratelimit"
	"github.com/noah-isme/backend-sekolah/internal/resilience"
	"github.com/noah-isme/backend-sekolah/internal/settlement"
)

// Dependencies enumerates the infrastructure shared by the API services.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Tasks  events.Enqueuer
}

// Services is the wired domain layer.
type Services struct {
	Fees     *catalog.CachedProvider
	BookFees *catalog.BookFeeAdjuster
	Payments *payment.Service
	AuditLog audit.Store
	Verifier *auth.Verifier
	Limiter  *limiter.Limiter
}

// NewServices builds every domain service from the shared infrastructure.
func NewServices(d Dependencies) (*Services, error) {
	if d.Config == nil {
		return nil, errors.New("app: config is required")
	}
	if d.DB == nil || d.Redis == nil {
		return nil, errors.New("app: database and redis are required")
	}
	cfg := d.Config

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		return nil, err
	}

	lim, err := ratelimit.NewRedisLimiter(d.Redis, cfg.SettlementRate, cfg.RateLimitKeyPrefix)
	if err != nil {
		return nil, err
	}

	auditStore := audit.PGStore{DB: d.DB}
	auditSvc := audit.Service{Store: auditStore, Enabled: cfg.AuditEnabled}

	bus := &events.Bus{Queue: d.Tasks, QueueName: cfg.QueueName, MaxRetry: cfg.QueueMaxRetry}

	catalogStore := catalog.NewStore(d.DB)
	fees := &catalog.CachedProvider{
		Source: catalogStore,
		Cache:  catalog.NewCache(d.Redis, cfg.FeeCacheTTL),
		Logger: d.Logger,
	}
	bookFees := &catalog.BookFeeAdjuster{
		Store:  catalogStore,
		Cache:  fees,
		Audit:  auditSvc,
		Events: bus,
		Logger: d.Logger,
	}

	settlements := payment.NewStore(d.DB)
	payments := &payment.Service{
		Catalog:     fees,
		Composer:    settlement.NewComposer(settlement.DefaultPolicy.WithCardRate(cfg.CardSurchargeRate)),
		Submitter:   NewSubmitter(cfg, settlements),
		Settlements: settlements,
		Locker:      lock.Locker{R: d.Redis},
		LockTTL:     cfg.SettlementLockTTL,
		Audit:       auditSvc,
		Events:      bus,
		Locale:      cfg.DisplayLocale,
		Logger:      d.Logger,
	}

	return &Services{
		Fees:     fees,
		BookFees: bookFees,
		Payments: payments,
		AuditLog: auditStore,
		Verifier: verifier,
		Limiter:  lim,
	}, nil
}

// NewSubmitter selects where settlements are recorded. In remote mode the
// ERP ledger is authoritative; otherwise the local Postgres store is. Card
// payments open a Midtrans transaction first when a server key is configured.
func NewSubmitter(cfg *config.Config, local payment.Submitter) payment.Submitter {
	next := local
	if cfg.SubmissionMode == config.SubmissionRemote {
		next = payment.RemoteSubmitter{
			Client: resilience.NewHTTPClient("erp-ledger", cfg.SubmissionTimeout),
			URL:    cfg.SubmissionRemoteURL,
			Token:  cfg.SubmissionToken,
		}
	}
	if cfg.MidtransServerKey == "" {
		return next
	}
	return payment.CardGateway{
		Snap: payment.NewSnapClient(cfg.MidtransServerKey, cfg.MidtransSandbox),
		Next: next,
	}
}
