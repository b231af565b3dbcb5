package payment

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-sekolah/internal/audit"
	"github.com/noah-isme/backend-sekolah/internal/branch"
	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/events"
	"github.com/noah-isme/backend-sekolah/internal/lock"
	"github.com/noah-isme/backend-sekolah/internal/obs"
	"github.com/noah-isme/backend-sekolah/internal/settlement"
)

var (
	// ErrStaleConfirmation means the request composed at settle time differs
	// from the one the cashier confirmed.
	ErrStaleConfirmation = errors.New("payment: confirmed totals no longer match")
	// ErrSubmissionInFlight means another settlement for the enrollment is
	// being submitted.
	ErrSubmissionInFlight = errors.New("payment: a settlement for this enrollment is already in progress")
)

// Locker grants exclusive, non-blocking access to a key.
type Locker interface {
	TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Lister reads recorded settlements.
type Lister interface {
	ListSettlements(ctx context.Context, branchID, enrollmentID string, limit, offset int) ([]Record, error)
}

// Auditor records money-affecting actions.
type Auditor interface {
	Record(ctx context.Context, src audit.Source, branchID, action, resourceType, resourceID string, metadata any) error
}

// Service runs the counter flow: preview a draft, then settle exactly what
// was previewed.
type Service struct {
	Catalog     catalog.Provider
	Composer    settlement.Composer
	Submitter   Submitter
	Settlements Lister
	Locker      Locker
	LockTTL     time.Duration
	Audit       Auditor
	Events      events.Publisher
	Locale      string
	Logger      zerolog.Logger
}

// Preview is the confirmation shown to the cashier. Confirmation must be
// echoed back to Settle.
type Preview struct {
	Request      settlement.Request `json:"request"`
	Confirmation string             `json:"confirmation"`
	Summary      settlement.Summary `json:"summary"`
}

func (s *Service) compose(ctx context.Context, branchID string, d Draft) (settlement.Request, *settlement.Selection, error) {
	if s == nil || s.Catalog == nil {
		return settlement.Request{}, nil, errors.New("payment: service not configured")
	}
	items, err := s.Catalog.FetchFeeItems(ctx, branchID, d.EnrollmentID)
	if err != nil {
		return settlement.Request{}, nil, err
	}
	sel, other, err := d.Apply(items)
	if err != nil {
		return settlement.Request{}, nil, err
	}
	req, err := s.Composer.Compose(sel, other, d.Method(), d.Remarks)
	if err != nil {
		var vErr *settlement.ValidationError
		if errors.As(err, &vErr) {
			obs.RecordComposeRejection(string(vErr.Kind))
		}
		return settlement.Request{}, nil, err
	}
	return req, sel, nil
}

// Preview composes the draft against the current catalog.
func (s *Service) Preview(ctx context.Context, branchID string, d Draft) (Preview, error) {
	req, sel, err := s.compose(ctx, branchID, d)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		Request:      req,
		Confirmation: req.Fingerprint(),
		Summary:      settlement.Summarize(req, sel.Labels(), s.Locale),
	}, nil
}

// Settle recomposes the draft, checks it against the confirmation token and
// submits it while holding the enrollment's settlement lock. A failed
// submission leaves nothing recorded.
func (s *Service) Settle(ctx context.Context, src audit.Source, branchID, clientRequestID string, d Draft, confirmation string) (Receipt, error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Settle")
	defer span.End()
	span.SetAttributes(
		attribute.String("school.branch_id", branchID),
		attribute.String("school.enrollment_id", d.EnrollmentID),
	)

	req, _, err := s.compose(ctx, branchID, d)
	if err != nil {
		span.SetStatus(codes.Error, "compose")
		return Receipt{}, err
	}
	fingerprint := req.Fingerprint()
	if fingerprint != confirmation {
		span.SetStatus(codes.Error, "stale confirmation")
		return Receipt{}, ErrStaleConfirmation
	}
	if s.Submitter == nil {
		return Receipt{}, errors.New("payment: submitter not configured")
	}
	span.SetAttributes(attribute.String("payment.method", string(req.PaymentMethod)), attribute.Int64("payment.total_minor", req.Total.Minor()))

	sub := Submission{
		ClientRequestID: clientRequestID,
		BranchID:        branchID,
		EnrollmentID:    d.EnrollmentID,
		CashierID:       src.ActorID,
		Fingerprint:     fingerprint,
		Request:         req,
	}
	logger := s.Logger.With().
		Str("branch_id", branchID).
		Str("enrollment_id", d.EnrollmentID).
		Str("cashier_id", src.ActorID).
		Str("payment_method", string(req.PaymentMethod)).
		Logger()

	var receipt Receipt
	submit := func(ctx context.Context) error {
		start := time.Now()
		r, err := s.Submitter.Submit(ctx, sub)
		result := "ok"
		if err != nil {
			result = "failed"
		}
		obs.RecordSettlement(ctx, string(req.PaymentMethod), result, req.Total.Minor(), obs.DurationMillis(time.Since(start)))
		receipt = r
		return err
	}
	if s.Locker != nil {
		err = s.Locker.TryWithLock(ctx, branch.Key(branchID, "settle", d.EnrollmentID), s.lockTTL(), submit)
	} else {
		err = submit(ctx)
	}
	if errors.Is(err, lock.ErrLocked) {
		span.SetStatus(codes.Error, "in flight")
		return Receipt{}, ErrSubmissionInFlight
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit")
		logger.Warn().Err(err).Msg("settlement_failed")
		s.emit(ctx, logger, events.TopicSettlementFailed, branchID, d.EnrollmentID, map[string]any{
			"enrollmentId": d.EnrollmentID,
			"total":        req.Total,
			"error":        err.Error(),
		})
		var subErr *SubmissionError
		if !errors.As(err, &subErr) {
			err = submissionFailed("unknown", err)
		}
		return Receipt{}, err
	}

	if !receipt.Replayed {
		if s.Audit != nil {
			meta := map[string]any{
				"enrollmentId": d.EnrollmentID,
				"method":       req.PaymentMethod,
				"total":        req.Total,
				"lines":        len(req.LineItems),
			}
			if err := s.Audit.Record(ctx, src, branchID, "settlement.create", "settlement", receipt.Ref, meta); err != nil {
				logger.Error().Err(err).Msg("audit settlement")
			}
		}
		s.emit(ctx, logger, events.TopicSettlementCompleted, branchID, receipt.Ref, map[string]any{
			"enrollmentId": d.EnrollmentID,
			"receipt":      receipt,
			"request":      req,
		})
	}
	logger.Info().Str("receipt_ref", receipt.Ref).Str("total", req.Total.String()).Bool("replayed", receipt.Replayed).Msg("settlement_recorded")
	return receipt, nil
}

// List returns recorded settlements for an enrollment.
func (s *Service) List(ctx context.Context, branchID, enrollmentID string, limit, offset int) ([]Record, error) {
	if s == nil || s.Settlements == nil {
		return nil, errors.New("payment: settlement history not configured")
	}
	if enrollmentID == "" {
		return nil, catalog.ErrEnrollmentRequired
	}
	return s.Settlements.ListSettlements(ctx, branchID, enrollmentID, limit, offset)
}

func (s *Service) emit(ctx context.Context, logger zerolog.Logger, topic, branchID, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, branchID, aggregateID, payload); err != nil {
		logger.Error().Err(err).Str("topic", topic).Msg("emit settlement event")
	}
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return 30 * time.Second
}
