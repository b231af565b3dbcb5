package settlement

import (
	"fmt"
	"strings"
)

// PaymentMethod is the tender used at the counter.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodUPI          PaymentMethod = "UPI"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCheque       PaymentMethod = "CHEQUE"
)

// Methods lists every accepted payment method.
var Methods = []PaymentMethod{MethodCash, MethodCard, MethodUPI, MethodBankTransfer, MethodCheque}

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMethod normalises raw input such as "bank_transfer".
func ParseMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, raw)
	}
	return m, nil
}
