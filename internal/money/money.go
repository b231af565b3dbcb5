package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when an untrusted string is not a non-negative
// finite decimal with at most two fractional digits.
var ErrInvalidAmount = errors.New("invalid amount")

// ErrInvalidRate is returned when a surcharge percentage cannot be parsed.
var ErrInvalidRate = errors.New("invalid rate")

// ErrOverflow is returned when arithmetic would leave the int64 range.
var ErrOverflow = errors.New("amount overflow")

// MinorUnits is the number of minor units (paise/cents) per major unit.
const MinorUnits = 100

// MaxMinor is the largest amount Parse accepts: 100,000,000,000.00. Totals
// built from parsed amounts are held to the same ceiling by callers.
const MaxMinor int64 = 10_000_000_000_000

// Money is an amount stored in minor units. It is an immutable value type:
// every operation returns a new Money.
type Money struct {
	minor int64
}

// Rate is a percentage expressed in basis points (1.2% == 120).
type Rate int64

// Zero is the zero amount.
var Zero = Money{}

// FromMinor builds Money from an amount already expressed in minor units.
func FromMinor(minor int64) Money {
	return Money{minor: minor}
}

// Minor returns the amount in minor units.
func (m Money) Minor() int64 { return m.minor }

// Parse converts user or server supplied text into Money.
func Parse(raw string) (Money, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	// decimal accepts signs and exponents; the amount grammar does not.
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
	}
	if strings.Count(s, ".") > 1 || strings.HasSuffix(s, ".") || strings.HasPrefix(s, ".") {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if d.Exponent() < -2 {
		return Zero, fmt.Errorf("%w: more than 2 fractional digits in %q", ErrInvalidAmount, raw)
	}
	scaled := d.Shift(2)
	if !scaled.IsInteger() || scaled.GreaterThan(decimal.NewFromInt(MaxMinor)) {
		return Zero, fmt.Errorf("%w: %q above %s", ErrInvalidAmount, raw, FromMinor(MaxMinor))
	}
	return Money{minor: scaled.IntPart()}, nil
}

// MustParse is Parse for constants in tests and fixtures.
func MustParse(raw string) Money {
	m, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return m
}

// Add returns a + b, or ErrOverflow.
func Add(a, b Money) (Money, error) {
	sum := a.minor + b.minor
	if (b.minor > 0 && sum < a.minor) || (b.minor < 0 && sum > a.minor) {
		return Zero, fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return Money{minor: sum}, nil
}

// Sub returns a - b, or ErrOverflow.
func Sub(a, b Money) (Money, error) {
	diff := a.minor - b.minor
	if (b.minor > 0 && diff > a.minor) || (b.minor < 0 && diff < a.minor) {
		return Zero, fmt.Errorf("%w: %s - %s", ErrOverflow, a, b)
	}
	return Money{minor: diff}, nil
}

// Sum adds all amounts, stopping at the first overflow.
func Sum(amounts ...Money) (Money, error) {
	total := Zero
	for _, a := range amounts {
		next, err := Add(total, a)
		if err != nil {
			return Zero, err
		}
		total = next
	}
	return total, nil
}

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// MultiplyByRate returns a * rate rounded half-up to the nearest minor unit.
// Negative amounts round half away from zero so the result mirrors the
// positive case. The product is computed in decimal, so only a result that
// does not fit int64 fails, with ErrOverflow.
func MultiplyByRate(a Money, rate Rate) (Money, error) {
	if a.minor == 0 || rate == 0 {
		return Zero, nil
	}
	product := decimal.NewFromInt(a.minor).Mul(decimal.New(int64(rate), -4)).Round(0)
	if product.GreaterThan(maxInt64) || product.LessThan(minInt64) {
		return Zero, fmt.Errorf("%w: %s * %s", ErrOverflow, a, rate)
	}
	return Money{minor: product.IntPart()}, nil
}

// RoundMajor rounds to a whole major unit, half away from zero.
func (m Money) RoundMajor() Money {
	q, r := m.minor/MinorUnits, m.minor%MinorUnits
	switch {
	case r*2 >= MinorUnits:
		q++
	case r*2 <= -MinorUnits:
		q--
	}
	return Money{minor: q * MinorUnits}
}

// IsNonNegative reports whether a >= 0.
func IsNonNegative(a Money) bool { return a.minor >= 0 }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.minor == 0 }

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool { return m.minor > 0 }

// String renders the canonical, locale-free form, e.g. "1234.50".
func (m Money) String() string {
	sign := ""
	v := m.minor
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/MinorUnits, v%MinorUnits)
}

// MarshalJSON encodes Money as its canonical decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a decimal string or a JSON number and applies Parse.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = Zero
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseRate converts a percentage such as "1.2" into basis points.
func ParseRate(percent string) (Rate, error) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(percent), "%"))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidRate)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, percent)
	}
	bps := d.Shift(2)
	if !bps.IsInteger() {
		return 0, fmt.Errorf("%w: %q finer than a basis point", ErrInvalidRate, percent)
	}
	return Rate(bps.IntPart()), nil
}

// String renders the rate as a percentage, e.g. "1.2%".
func (r Rate) String() string {
	return decimal.New(int64(r), -2).String() + "%"
}
