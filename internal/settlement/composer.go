package settlement

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/money"
)

// OtherSourceID identifies the ad hoc fee in a request's line items. The
// catalog never issues it.
const OtherSourceID = catalog.OtherFeeID

// LineItem is one amount being settled.
type LineItem struct {
	SourceID     string           `json:"sourceId"`
	Category     catalog.Category `json:"category"`
	Amount       money.Money      `json:"amount"`
	TermNumber   *int             `json:"termNumber,omitempty"`
	PaymentMonth *string          `json:"paymentMonth,omitempty"`
	Reason       string           `json:"reason,omitempty"`
}

// Request is the immutable result of composing a selection. It is both what
// the cashier confirms and what is submitted.
type Request struct {
	LineItems     []LineItem    `json:"lineItems"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	Subtotal      money.Money   `json:"subtotal"`
	Surcharge     money.Money   `json:"surcharge"`
	Total         money.Money   `json:"total"`
	Remarks       string        `json:"remarks,omitempty"`
}

// Fingerprint is a hex SHA-256 over a canonical encoding of r. Two requests
// have the same fingerprint iff they are Equal.
func (r Request) Fingerprint() string {
	h := sha256.New()
	field := func(v string) {
		h.Write([]byte(strconv.Itoa(len(v))))
		h.Write([]byte{':'})
		h.Write([]byte(v))
	}
	field(string(r.PaymentMethod))
	field(r.Remarks)
	field(strconv.FormatInt(r.Subtotal.Minor(), 10))
	field(strconv.FormatInt(r.Surcharge.Minor(), 10))
	field(strconv.FormatInt(r.Total.Minor(), 10))
	field(strconv.Itoa(len(r.LineItems)))
	for _, l := range r.LineItems {
		field(l.SourceID)
		field(string(l.Category))
		field(strconv.FormatInt(l.Amount.Minor(), 10))
		if l.TermNumber != nil {
			field("t" + strconv.Itoa(*l.TermNumber))
		} else {
			field("")
		}
		if l.PaymentMonth != nil {
			field("m" + *l.PaymentMonth)
		} else {
			field("")
		}
		field(l.Reason)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Equal compares requests field by field.
func (r Request) Equal(o Request) bool {
	if r.PaymentMethod != o.PaymentMethod || r.Remarks != o.Remarks ||
		r.Subtotal != o.Subtotal || r.Surcharge != o.Surcharge || r.Total != o.Total ||
		len(r.LineItems) != len(o.LineItems) {
		return false
	}
	for i := range r.LineItems {
		a, b := r.LineItems[i], o.LineItems[i]
		if a.SourceID != b.SourceID || a.Category != b.Category || a.Amount != b.Amount || a.Reason != b.Reason {
			return false
		}
		if !equalPtr(a.TermNumber, b.TermNumber) || !equalPtr(a.PaymentMonth, b.PaymentMonth) {
			return false
		}
	}
	return true
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Composer turns a selection into a Request under a surcharge policy.
type Composer struct {
	Policy Policy
}

// NewComposer uses DefaultPolicy when p is nil.
func NewComposer(p Policy) Composer {
	if p == nil {
		p = DefaultPolicy
	}
	return Composer{Policy: p}
}

// Compose composes under DefaultPolicy.
func Compose(sel *Selection, other *OtherFee, method PaymentMethod, remarks string) (Request, error) {
	return NewComposer(nil).Compose(sel, other, method, remarks)
}

// Compose validates the inputs and builds the request. It has no side
// effects; the same inputs always produce an Equal request.
//
// Checks run in order and the first failure is returned: empty selection,
// other fee without a reason, negative amounts, unknown method. A subtotal
// or total above money.MaxMinor fails with ErrAmountTooLarge.
func (c Composer) Compose(sel *Selection, other *OtherFee, method PaymentMethod, remarks string) (Request, error) {
	var entries []Entry
	if sel != nil {
		entries = sel.Selected()
	}
	if len(entries) == 0 && !other.Present() {
		return Request{}, ErrEmptySelection
	}
	if other.Present() && !other.Valid() {
		return Request{}, ErrInvalidOtherFee
	}
	for _, e := range entries {
		if !money.IsNonNegative(e.Amount()) {
			return Request{}, &ValidationError{Kind: KindNegativeOverride, Message: ErrNegativeOverride.Message, ItemID: e.Item.ID}
		}
	}
	if other != nil && !money.IsNonNegative(other.Amount) {
		return Request{}, &ValidationError{Kind: KindNegativeOverride, Message: ErrNegativeOverride.Message, ItemID: OtherSourceID}
	}
	if !method.Valid() {
		return Request{}, ErrUnknownMethod
	}

	lines := make([]LineItem, 0, len(entries)+1)
	for _, e := range entries {
		lines = append(lines, LineItem{
			SourceID:     e.Item.ID,
			Category:     e.Item.Category,
			Amount:       e.Amount(),
			TermNumber:   cloneInt(e.Item.TermNumber),
			PaymentMonth: cloneString(e.Item.PaymentMonth),
		})
	}
	if other.Present() {
		lines = append(lines, LineItem{
			SourceID: OtherSourceID,
			Category: catalog.CategoryOther,
			Amount:   other.Amount,
			Reason:   strings.TrimSpace(other.Reason),
		})
	}

	amounts := make([]money.Money, len(lines))
	for i, l := range lines {
		amounts[i] = l.Amount
	}
	subtotal, err := money.Sum(amounts...)
	if err != nil || subtotal.Minor() > money.MaxMinor {
		return Request{}, ErrAmountTooLarge
	}
	surcharge, err := c.policy().SurchargeFor(subtotal, method)
	if err != nil {
		return Request{}, ErrAmountTooLarge
	}
	total, err := money.Add(subtotal, surcharge)
	if err != nil || total.Minor() > money.MaxMinor {
		return Request{}, ErrAmountTooLarge
	}
	return Request{
		LineItems:     lines,
		PaymentMethod: method,
		Subtotal:      subtotal,
		Surcharge:     surcharge,
		Total:         total,
		Remarks:       strings.TrimSpace(remarks),
	}, nil
}

// Verify recomposes the inputs and fails with ErrTotalMismatch when the
// result differs from what was displayed.
func (c Composer) Verify(displayed Request, sel *Selection, other *OtherFee, method PaymentMethod, remarks string) error {
	fresh, err := c.Compose(sel, other, method, remarks)
	if err != nil {
		return err
	}
	if !fresh.Equal(displayed) {
		return fmt.Errorf("%w: displayed total %s, composed total %s", ErrTotalMismatch, displayed.Total, fresh.Total)
	}
	return nil
}

// Verify runs Composer.Verify under DefaultPolicy.
func Verify(displayed Request, sel *Selection, other *OtherFee, method PaymentMethod, remarks string) error {
	return NewComposer(nil).Verify(displayed, sel, other, method, remarks)
}

func (c Composer) policy() Policy {
	if c.Policy == nil {
		return DefaultPolicy
	}
	return c.Policy
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
