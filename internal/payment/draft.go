package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/money"
	"github.com/noah-isme/backend-sekolah/internal/settlement"
)

// Draft is the client-held state of a counter session: which items are
// ticked, their overrides, the other fee and the tender. The server keeps
// no session; every preview and settle rebuilds the selection from a Draft.
type Draft struct {
	EnrollmentID  string         `json:"enrollmentId" validate:"required,max=64"`
	Items         []DraftItem    `json:"items" validate:"max=200,unique=ID,dive"`
	OtherFee      *DraftOtherFee `json:"otherFee,omitempty"`
	PaymentMethod string         `json:"paymentMethod" validate:"required"`
	Remarks       string         `json:"remarks,omitempty" validate:"max=500"`
}

// DraftItem selects a catalog item, optionally at an overridden amount.
type DraftItem struct {
	ID     string  `json:"id" validate:"required"`
	Amount *string `json:"amount,omitempty"`
}

// DraftOtherFee is the raw ad hoc fee input.
type DraftOtherFee struct {
	Amount string `json:"amount"`
	Reason string `json:"reason" validate:"max=200"`
}

// ErrDuplicateItem rejects a draft that lists the same item twice.
var ErrDuplicateItem = errors.New("item listed more than once")

// ItemError ties an input failure to the offending item.
type ItemError struct {
	ItemID string
	Err    error
}

func (e *ItemError) Error() string { return fmt.Sprintf("item %s: %v", e.ItemID, e.Err) }

func (e *ItemError) Unwrap() error { return e.Err }

// Apply rebuilds the selection over a catalog snapshot.
func (d Draft) Apply(items []catalog.FeeLineItem) (*settlement.Selection, *settlement.OtherFee, error) {
	sel := settlement.NewSelection(items)
	seen := make(map[string]struct{}, len(d.Items))
	for _, it := range d.Items {
		if _, dup := seen[it.ID]; dup {
			return nil, nil, &ItemError{ItemID: it.ID, Err: ErrDuplicateItem}
		}
		seen[it.ID] = struct{}{}
		if err := sel.Toggle(it.ID, true); err != nil {
			return nil, nil, &ItemError{ItemID: it.ID, Err: err}
		}
		if it.Amount == nil {
			continue
		}
		if err := sel.SetOverride(it.ID, *it.Amount); err != nil {
			return nil, nil, &ItemError{ItemID: it.ID, Err: err}
		}
	}
	other, err := d.otherFee()
	if err != nil {
		return nil, nil, &ItemError{ItemID: settlement.OtherSourceID, Err: err}
	}
	return sel, other, nil
}

func (d Draft) otherFee() (*settlement.OtherFee, error) {
	if d.OtherFee == nil {
		return nil, nil
	}
	raw := strings.TrimSpace(d.OtherFee.Amount)
	if raw == "" && strings.TrimSpace(d.OtherFee.Reason) == "" {
		return nil, nil
	}
	amount := money.Zero
	if raw != "" {
		parsed, err := money.Parse(raw)
		if err != nil {
			return nil, err
		}
		amount = parsed
	}
	return &settlement.OtherFee{Amount: amount, Reason: d.OtherFee.Reason}, nil
}

// Method normalises the tender without rejecting it; unknown methods are
// reported by the composer in its own validation order.
func (d Draft) Method() settlement.PaymentMethod {
	return settlement.PaymentMethod(strings.ToUpper(strings.TrimSpace(d.PaymentMethod)))
}
