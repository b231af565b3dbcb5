package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sekolah/internal/audit"
	"github.com/noah-isme/backend-sekolah/internal/events"
	"github.com/noah-isme/backend-sekolah/internal/money"
	"github.com/noah-isme/backend-sekolah/internal/obs"
)

// ErrInvalidAdjustment is returned for negative book fee amounts.
var ErrInvalidAdjustment = errors.New("catalog: book fee must not be negative")

// BookFeeChange describes a persisted book fee adjustment.
type BookFeeChange struct {
	ItemID   string      `json:"itemId"`
	Previous money.Money `json:"previous"`
	Current  money.Money `json:"current"`
}

// BookFeeStore persists book fee amounts.
type BookFeeStore interface {
	UpdateBookFee(ctx context.Context, branchID, enrollmentID string, amount money.Money) (BookFeeChange, error)
}

// Invalidator drops cached catalogs after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, branchID, enrollmentID string) error
}

// Auditor records money-affecting actions.
type Auditor interface {
	Record(ctx context.Context, src audit.Source, branchID, action, resourceType, resourceID string, metadata any) error
}

// BookFeeAdjuster permanently changes the declared amount of an enrollment's
// book fee. It is independent of any settlement.
type BookFeeAdjuster struct {
	Store  BookFeeStore
	Cache  Invalidator
	Audit  Auditor
	Events events.Publisher
	Logger zerolog.Logger
}

// UpdateBookFee validates and persists the new amount. Side effects after the
// write (cache, audit, event) are logged on failure but do not undo it.
func (a *BookFeeAdjuster) UpdateBookFee(ctx context.Context, src audit.Source, branchID, enrollmentID string, amount money.Money) (BookFeeChange, error) {
	if a == nil || a.Store == nil {
		return BookFeeChange{}, errors.New("catalog: book fee adjuster not configured")
	}
	if strings.TrimSpace(enrollmentID) == "" {
		return BookFeeChange{}, ErrEnrollmentRequired
	}
	if !money.IsNonNegative(amount) {
		return BookFeeChange{}, ErrInvalidAdjustment
	}
	change, err := a.Store.UpdateBookFee(ctx, branchID, enrollmentID, amount)
	if err != nil {
		return BookFeeChange{}, err
	}
	logger := a.Logger.With().Str("branch_id", branchID).Str("enrollment_id", enrollmentID).Str("item_id", change.ItemID).Logger()
	if a.Cache != nil {
		if err := a.Cache.Invalidate(ctx, branchID, enrollmentID); err != nil {
			logger.Warn().Err(err).Msg("invalidate fee cache")
		}
	}
	if a.Audit != nil {
		meta := map[string]string{"from": change.Previous.String(), "to": change.Current.String(), "enrollmentId": enrollmentID}
		if err := a.Audit.Record(ctx, src, branchID, "bookfee.adjust", "fee_item", change.ItemID, meta); err != nil {
			logger.Error().Err(err).Msg("audit book fee adjustment")
		}
	}
	if a.Events != nil {
		payload := map[string]any{"enrollmentId": enrollmentID, "change": change}
		if _, err := a.Events.Emit(ctx, events.TopicBookFeeAdjusted, branchID, change.ItemID, payload); err != nil {
			logger.Error().Err(err).Msg("emit book fee event")
		}
	}
	obs.RecordBookFeeAdjustment()
	logger.Info().Str("from", change.Previous.String()).Str("to", change.Current.String()).Msg("book_fee_adjusted")
	return change, nil
}
