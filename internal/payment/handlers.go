package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-sekolah/internal/audit"
	"github.com/noah-isme/backend-sekolah/internal/branch"
	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/common"
	"github.com/noah-isme/backend-sekolah/internal/money"
	"github.com/noah-isme/backend-sekolah/internal/settlement"
)

// Handler exposes the counter flow over HTTP.
type Handler struct {
	Svc *Service
}

type settleRequest struct {
	Draft
	Confirmation string `json:"confirmation" validate:"required,len=64,hexadecimal"`
}

// Preview composes a draft and returns the confirmation summary.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var d Draft
	if err := common.DecodeJSON(r, &d); err != nil {
		common.WriteError(w, err)
		return
	}
	branchID, _ := branch.From(r.Context())
	preview, err := h.Svc.Preview(r.Context(), branchID, d)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	common.Data(w, http.StatusOK, preview)
}

// Settle records the confirmed draft.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	if _, ok := common.CashierID(r.Context()); !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "cashier token required", nil)
		return
	}
	var req settleRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	branchID, _ := branch.From(r.Context())
	requestID := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	receipt, err := h.Svc.Settle(r.Context(), audit.SourceFromRequest(r), branchID, requestID, req.Draft, strings.ToLower(req.Confirmation))
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	common.Data(w, status, receipt)
}

// List returns an enrollment's recorded settlements.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	branchID, _ := branch.From(r.Context())
	page := common.ParsePage(r, 20, 100)
	records, err := h.Svc.List(r.Context(), branchID, chi.URLParam(r, "enrollmentId"), page.Size, page.Offset())
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       records,
		"pagination": page.Meta(len(records)),
	})
}

func writeSettlementError(w http.ResponseWriter, err error) {
	var (
		vErr    *settlement.ValidationError
		itemErr *ItemError
		subErr  *SubmissionError
	)
	switch {
	case errors.As(err, &vErr):
		var details any
		if vErr.ItemID != "" {
			details = map[string]string{"itemId": vErr.ItemID}
		}
		common.JSONError(w, http.StatusUnprocessableEntity, string(vErr.Kind), vErr.Message, details)
	case errors.As(err, &itemErr) && errors.Is(err, money.ErrInvalidAmount):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_AMOUNT", "enter a valid non-negative amount", map[string]string{"itemId": itemErr.ItemID})
	case errors.As(err, &itemErr) && errors.Is(err, ErrDuplicateItem):
		common.JSONError(w, http.StatusUnprocessableEntity, "DUPLICATE_ITEM", "each item can be listed once", map[string]string{"itemId": itemErr.ItemID})
	case errors.As(err, &itemErr) && errors.Is(err, settlement.ErrUnknownItem):
		common.JSONError(w, http.StatusUnprocessableEntity, "UNKNOWN_ITEM", "item is not payable for this enrollment", map[string]string{"itemId": itemErr.ItemID})
	case errors.Is(err, catalog.ErrEnrollmentRequired):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "enrollment id is required", nil)
	case errors.Is(err, ErrStaleConfirmation):
		common.JSONError(w, http.StatusConflict, "STALE_CONFIRMATION", "amounts changed since confirmation, review and confirm again", nil)
	case errors.Is(err, ErrSubmissionInFlight):
		common.JSONError(w, http.StatusConflict, "SUBMISSION_IN_FLIGHT", "a payment for this student is already being recorded", nil)
	case errors.Is(err, ErrRequestIDReused):
		common.JSONError(w, http.StatusConflict, "IDEMPOTENCY_CONFLICT", "idempotency key was used for a different payment", nil)
	case errors.Is(err, context.DeadlineExceeded):
		common.JSONError(w, http.StatusGatewayTimeout, "SUBMISSION_FAILED", "payment service timed out, your selection is kept, try again", nil)
	case errors.As(err, &subErr):
		common.JSONError(w, http.StatusBadGateway, "SUBMISSION_FAILED", "payment could not be recorded, your selection is kept, try again", nil)
	default:
		common.WriteError(w, common.Internal(err))
	}
}
