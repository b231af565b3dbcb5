package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-sekolah/internal/money"
)

// Category classifies a payable obligation.
type Category string

const (
	CategoryBookFee      Category = "BOOK_FEE"
	CategoryTuitionFee   Category = "TUITION_FEE"
	CategoryTransportFee Category = "TRANSPORT_FEE"
	CategoryOther        Category = "OTHER"
)

// OtherFeeID is the id a settlement gives its ad hoc fee line. No catalog
// item may carry it.
const OtherFeeID = "other"

// ErrReservedID rejects a catalog item whose id is OtherFeeID.
var ErrReservedID = errors.New("catalog: item id is reserved for the ad hoc fee")

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryBookFee, CategoryTuitionFee, CategoryTransportFee, CategoryOther:
		return true
	default:
		return false
	}
}

// ParseCategory normalises raw input into a Category.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown fee category %q", raw)
	}
	return c, nil
}

// FeeLineItem is one payable obligation as declared by the fee catalog.
// It is read-only for the duration of a payment session.
type FeeLineItem struct {
	ID             string      `json:"id"`
	Category       Category    `json:"category"`
	Label          string      `json:"label"`
	OriginalAmount money.Money `json:"originalAmount"`
	TermNumber     *int        `json:"termNumber,omitempty"`
	PaymentMonth   *string     `json:"paymentMonth,omitempty"`
}
