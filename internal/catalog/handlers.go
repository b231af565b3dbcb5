package catalog

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-sekolah/internal/audit"
	"github.com/noah-isme/backend-sekolah/internal/branch"
	"github.com/noah-isme/backend-sekolah/internal/common"
	"github.com/noah-isme/backend-sekolah/internal/money"
)

// Adjuster is the book fee mutation used by Handler.
type Adjuster interface {
	UpdateBookFee(ctx context.Context, src audit.Source, branchID, enrollmentID string, amount money.Money) (BookFeeChange, error)
}

// Handler exposes the fee catalog over HTTP.
type Handler struct {
	Provider Provider
	Adjuster Adjuster
	Locale   string
}

type feeItemView struct {
	FeeLineItem
	Display string `json:"display"`
}

// ListFees returns the enrollment's payable items in catalog order.
func (h Handler) ListFees(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "fee catalog not configured", nil)
		return
	}
	branchID, _ := branch.From(r.Context())
	items, err := h.Provider.FetchFeeItems(r.Context(), branchID, chi.URLParam(r, "enrollmentId"))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	out := make([]feeItemView, 0, len(items))
	for _, item := range items {
		out = append(out, feeItemView{FeeLineItem: item, Display: money.Format(item.OriginalAmount, h.Locale)})
	}
	common.Data(w, http.StatusOK, out)
}

type bookFeeRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// UpdateBookFee persists a new declared book fee amount.
func (h Handler) UpdateBookFee(w http.ResponseWriter, r *http.Request) {
	if h.Adjuster == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "book fee adjuster not configured", nil)
		return
	}
	var req bookFeeRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_AMOUNT", "enter a valid non-negative amount", map[string]string{"amount": req.Amount})
		return
	}
	branchID, _ := branch.From(r.Context())
	change, err := h.Adjuster.UpdateBookFee(r.Context(), audit.SourceFromRequest(r), branchID, chi.URLParam(r, "enrollmentId"), amount)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	common.Data(w, http.StatusOK, change)
}

func writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEnrollmentRequired):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "enrollment id is required", nil)
	case errors.Is(err, ErrInvalidAdjustment), errors.Is(err, money.ErrInvalidAmount):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_AMOUNT", "enter a valid non-negative amount", nil)
	case errors.Is(err, ErrBookFeeNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "book fee not found", nil)
	default:
		common.WriteError(w, common.Internal(err))
	}
}
