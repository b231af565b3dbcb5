package settlement

import "github.com/noah-isme/backend-sekolah/internal/money"

// Policy maps each payment method to its surcharge rate. Changing which
// methods carry a fee is an edit to this table and nothing else.
type Policy map[PaymentMethod]money.Rate

// DefaultPolicy charges 1.2% on card payments only.
var DefaultPolicy = Policy{
	MethodCash:         0,
	MethodCard:         120,
	MethodUPI:          0,
	MethodBankTransfer: 0,
	MethodCheque:       0,
}

// WithCardRate returns a copy of p with the card rate replaced.
func (p Policy) WithCardRate(rate money.Rate) Policy {
	out := make(Policy, len(p))
	for m, r := range p {
		out[m] = r
	}
	out[MethodCard] = rate
	return out
}

// Rate returns the configured rate; methods missing from the table carry none.
func (p Policy) Rate(method PaymentMethod) money.Rate {
	return p[method]
}

// SurchargeFor applies the rate for method to subtotal, rounding half-up.
func (p Policy) SurchargeFor(subtotal money.Money, method PaymentMethod) (money.Money, error) {
	return money.MultiplyByRate(subtotal, p.Rate(method))
}

// SurchargeFor applies DefaultPolicy.
func SurchargeFor(subtotal money.Money, method PaymentMethod) (money.Money, error) {
	return DefaultPolicy.SurchargeFor(subtotal, method)
}
