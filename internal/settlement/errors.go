package settlement

import "errors"

// Kind identifies a composer validation failure.
type Kind string

const (
	KindEmptySelection   Kind = "EMPTY_SELECTION"
	KindInvalidOtherFee  Kind = "INVALID_OTHER_FEE"
	KindNegativeOverride Kind = "NEGATIVE_OVERRIDE"
	KindUnknownMethod    Kind = "UNKNOWN_PAYMENT_METHOD"
	KindAmountTooLarge   Kind = "AMOUNT_TOO_LARGE"
)

// ValidationError is returned by Compose. Callers match it with errors.Is
// against the exported sentinels or errors.As to read the Kind.
type ValidationError struct {
	Kind    Kind
	Message string
	ItemID  string
}

func (e *ValidationError) Error() string {
	if e.ItemID != "" {
		return "settlement: " + e.Message + " (" + e.ItemID + ")"
	}
	return "settlement: " + e.Message
}

// Is matches on Kind so sentinels compare equal to item-specific copies.
func (e *ValidationError) Is(target error) bool {
	var other *ValidationError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

var (
	ErrEmptySelection   = &ValidationError{Kind: KindEmptySelection, Message: "select at least one item"}
	ErrInvalidOtherFee  = &ValidationError{Kind: KindInvalidOtherFee, Message: "enter amount and reason"}
	ErrNegativeOverride = &ValidationError{Kind: KindNegativeOverride, Message: "amounts must not be negative"}
	ErrUnknownMethod    = &ValidationError{Kind: KindUnknownMethod, Message: "choose a payment method"}
	ErrAmountTooLarge   = &ValidationError{Kind: KindAmountTooLarge, Message: "total exceeds the largest amount a settlement can carry"}
)

var (
	// ErrUnknownItem is returned for item ids that are not in the catalog snapshot.
	ErrUnknownItem = errors.New("settlement: unknown fee item")
	// ErrNotSelected is returned when overriding an item that is not selected.
	ErrNotSelected = errors.New("settlement: fee item is not selected")
	// ErrTotalMismatch signals that a displayed request no longer matches a
	// fresh composition of the same inputs.
	ErrTotalMismatch = errors.New("settlement: displayed request differs from composed request")
)
