package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sekolah/internal/events"
	"github.com/noah-isme/backend-sekolah/internal/money"
	"github.com/noah-isme/backend-sekolah/internal/obs"
)

// EventHandler turns queued domain events into staff notifications.
type EventHandler struct {
	Sink   Sink
	Dedupe Deduper
	Locale string
	Logger zerolog.Logger
}

// Register binds the handler to every notifying topic on mux.
func (h *EventHandler) Register(mux *asynq.ServeMux) {
	for _, topic := range events.DefaultTopics() {
		mux.Handle(topic, h)
	}
}

// ProcessTask implements asynq.Handler. Malformed events are dropped with
// asynq.SkipRetry; sink failures are returned so asynq retries them.
func (h *EventHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ev, err := events.Decode(task)
	if err != nil {
		obs.RecordEvent(task.Type(), "malformed")
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	logger := h.Logger.With().Str("topic", ev.Topic).Str("event_id", ev.ID).Str("branch_id", ev.BranchID).Logger()

	kind, message, err := h.Describe(ev)
	if err != nil {
		obs.RecordEvent(ev.Topic, "malformed")
		logger.Warn().Err(err).Msg("drop undecodable event")
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if message == "" {
		obs.RecordEvent(ev.Topic, "ignored")
		return nil
	}

	if h.Dedupe != nil {
		ok, err := h.Dedupe.Claim(ctx, ev.BranchID, ev.ID)
		if err != nil {
			obs.RecordEvent(ev.Topic, "failed")
			return fmt.Errorf("notify: %w", err)
		}
		if !ok {
			obs.RecordEvent(ev.Topic, "duplicate")
			logger.Debug().Msg("notification already sent")
			return nil
		}
	}
	if h.Sink == nil {
		obs.RecordEvent(ev.Topic, "ignored")
		return nil
	}
	if err := h.Sink.Notify(ctx, kind, message); err != nil {
		if h.Dedupe != nil {
			if fErr := h.Dedupe.Forget(context.WithoutCancel(ctx), ev.BranchID, ev.ID); fErr != nil {
				logger.Error().Err(fErr).Msg("forget event claim")
			}
		}
		obs.RecordEvent(ev.Topic, "failed")
		logger.Warn().Err(err).Msg("notify failed")
		return err
	}
	obs.RecordEvent(ev.Topic, "ok")
	return nil
}

type settlementEvent struct {
	EnrollmentID string `json:"enrollmentId"`
	Receipt      struct {
		Ref   string      `json:"receiptRef"`
		Total money.Money `json:"total"`
	} `json:"receipt"`
	Total money.Money `json:"total"`
	Error string      `json:"error"`
}

type bookFeeEvent struct {
	EnrollmentID string `json:"enrollmentId"`
	Change       struct {
		Previous money.Money `json:"previous"`
		Current  money.Money `json:"current"`
	} `json:"change"`
}

// Describe renders the staff-facing message for an event. Unknown topics
// yield an empty message.
func (h *EventHandler) Describe(ev events.Event) (Kind, string, error) {
	switch ev.Topic {
	case events.TopicSettlementCompleted:
		var p settlementEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", "", fmt.Errorf("decode %s: %w", ev.Topic, err)
		}
		return KindSuccess, fmt.Sprintf("Payment of %s recorded for enrollment %s, receipt %s",
			money.Format(p.Receipt.Total, h.Locale), p.EnrollmentID, p.Receipt.Ref), nil
	case events.TopicSettlementFailed:
		var p settlementEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", "", fmt.Errorf("decode %s: %w", ev.Topic, err)
		}
		return KindError, fmt.Sprintf("Payment of %s for enrollment %s was not recorded: %s",
			money.Format(p.Total, h.Locale), p.EnrollmentID, p.Error), nil
	case events.TopicBookFeeAdjusted:
		var p bookFeeEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", "", fmt.Errorf("decode %s: %w", ev.Topic, err)
		}
		return KindWarning, fmt.Sprintf("Book fee for enrollment %s changed from %s to %s",
			p.EnrollmentID, money.Format(p.Change.Previous, h.Locale), money.Format(p.Change.Current, h.Locale)), nil
	default:
		return "", "", nil
	}
}
