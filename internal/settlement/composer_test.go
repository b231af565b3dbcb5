package settlement

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/money"
)

func TestComposeBasicCash(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{item("t1", catalog.CategoryTuitionFee, "1000.00")})
	require.NoError(t, sel.Toggle("t1", true))

	req, err := Compose(sel, nil, MethodCash, "")
	require.NoError(t, err)
	require.Equal(t, "1000.00", req.Subtotal.String())
	require.Equal(t, "0.00", req.Surcharge.String())
	require.Equal(t, "1000.00", req.Total.String())
	require.Len(t, req.LineItems, 1)
	require.Equal(t, "t1", req.LineItems[0].SourceID)
}

func TestComposeCardSurchargeRounding(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{item("bus", catalog.CategoryTransportFee, "833.33")})
	require.NoError(t, sel.Toggle("bus", true))

	req, err := Compose(sel, nil, MethodCard, "")
	require.NoError(t, err)
	require.Equal(t, "833.33", req.Subtotal.String())
	require.Equal(t, "10.00", req.Surcharge.String())
	require.Equal(t, "843.33", req.Total.String())
}

func TestComposeOverridePlusOtherFee(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{
		item("b", catalog.CategoryBookFee, "500.00"),
		item("t1", catalog.CategoryTuitionFee, "1000.00"),
	})
	require.NoError(t, sel.Toggle("b", true))
	require.NoError(t, sel.SetOverride("b", "450.00"))
	other := &OtherFee{Amount: money.MustParse("100.00"), Reason: " Late fee "}

	req, err := Compose(sel, other, MethodUPI, "  paid by parent ")
	require.NoError(t, err)
	require.Equal(t, "550.00", req.Subtotal.String())
	require.True(t, req.Surcharge.IsZero())
	require.Equal(t, "550.00", req.Total.String())
	require.Len(t, req.LineItems, 2)
	last := req.LineItems[1]
	require.Equal(t, OtherSourceID, last.SourceID)
	require.Equal(t, catalog.CategoryOther, last.Category)
	require.Equal(t, "Late fee", last.Reason)
	require.Equal(t, "paid by parent", req.Remarks)
}

func TestComposeOtherFeeOnly(t *testing.T) {
	req, err := Compose(NewSelection(nil), &OtherFee{Amount: money.MustParse("75"), Reason: "ID card"}, MethodCash, "")
	require.NoError(t, err)
	require.Len(t, req.LineItems, 1)
	require.Equal(t, "75.00", req.Total.String())
}

func TestComposeInvalidOtherFee(t *testing.T) {
	_, err := Compose(NewSelection(nil), &OtherFee{Amount: money.MustParse("100.00"), Reason: ""}, MethodCash, "")
	require.ErrorIs(t, err, ErrInvalidOtherFee)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Equal(t, KindInvalidOtherFee, vErr.Kind)
	require.Equal(t, "enter amount and reason", vErr.Message)
}

func TestComposeEmptySelection(t *testing.T) {
	for name, other := range map[string]*OtherFee{
		"no other fee":   nil,
		"zero other fee": {Reason: "nothing"},
		"blank":          {},
	} {
		req, err := Compose(NewSelection([]catalog.FeeLineItem{item("t1", catalog.CategoryTuitionFee, "1")}), other, MethodCash, "")
		require.ErrorIs(t, err, ErrEmptySelection, name)
		require.Equal(t, Request{}, req, name)
	}
	_, err := Compose(nil, nil, MethodCash, "")
	require.ErrorIs(t, err, ErrEmptySelection)
}

func TestComposeNegativeAmounts(t *testing.T) {
	credit := catalog.FeeLineItem{ID: "adj", Category: catalog.CategoryOther, OriginalAmount: money.FromMinor(-100)}
	sel := NewSelection([]catalog.FeeLineItem{credit})
	require.NoError(t, sel.Toggle("adj", true))
	_, err := Compose(sel, nil, MethodCash, "")
	require.ErrorIs(t, err, ErrNegativeOverride)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Equal(t, "adj", vErr.ItemID)

	sel = NewSelection([]catalog.FeeLineItem{item("t1", catalog.CategoryTuitionFee, "1")})
	require.NoError(t, sel.Toggle("t1", true))
	_, err = Compose(sel, &OtherFee{Amount: money.FromMinor(-1), Reason: "refund"}, MethodCash, "")
	require.ErrorIs(t, err, ErrNegativeOverride)
}

func TestComposeValidationOrder(t *testing.T) {
	credit := catalog.FeeLineItem{ID: "adj", OriginalAmount: money.FromMinor(-100)}

	// empty selection wins over an unknown method
	_, err := Compose(NewSelection(nil), nil, "CRYPTO", "")
	require.ErrorIs(t, err, ErrEmptySelection)

	// a reasonless other fee wins over a negative item
	sel := NewSelection([]catalog.FeeLineItem{credit})
	require.NoError(t, sel.Toggle("adj", true))
	_, err = Compose(sel, &OtherFee{Amount: money.MustParse("5")}, "CRYPTO", "")
	require.ErrorIs(t, err, ErrInvalidOtherFee)

	// negative amounts win over an unknown method
	_, err = Compose(sel, nil, "CRYPTO", "")
	require.ErrorIs(t, err, ErrNegativeOverride)
	require.False(t, errors.Is(err, ErrUnknownMethod))

	sel = NewSelection([]catalog.FeeLineItem{item("t1", catalog.CategoryTuitionFee, "1")})
	require.NoError(t, sel.Toggle("t1", true))
	_, err = Compose(sel, nil, "CRYPTO", "")
	require.ErrorIs(t, err, ErrUnknownMethod)
}

func TestComposeDoesNotMutateSelection(t *testing.T) {
	month := "2026-08"
	bus := item("bus", catalog.CategoryTransportFee, "300")
	bus.PaymentMonth = &month
	sel := NewSelection([]catalog.FeeLineItem{bus})
	require.NoError(t, sel.Toggle("bus", true))

	req, err := Compose(sel, nil, MethodCard, "")
	require.NoError(t, err)
	*req.LineItems[0].PaymentMonth = "1999-01"

	again, err := Compose(sel, nil, MethodCard, "")
	require.NoError(t, err)
	require.Equal(t, "2026-08", *again.LineItems[0].PaymentMonth)
	require.Equal(t, 1, sel.Len())
}

func TestVerifyDetectsDrift(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{item("t1", catalog.CategoryTuitionFee, "1000")})
	require.NoError(t, sel.Toggle("t1", true))
	displayed, err := Compose(sel, nil, MethodCard, "")
	require.NoError(t, err)
	require.NoError(t, Verify(displayed, sel, nil, MethodCard, ""))

	require.ErrorIs(t, Verify(displayed, sel, nil, MethodCash, ""), ErrTotalMismatch)
	require.NoError(t, sel.SetOverride("t1", "999.99"))
	require.ErrorIs(t, Verify(displayed, sel, nil, MethodCard, ""), ErrTotalMismatch)
}

func TestFingerprintTracksEquality(t *testing.T) {
	term := 1
	a := Request{
		LineItems:     []LineItem{{SourceID: "t1", Category: catalog.CategoryTuitionFee, Amount: money.MustParse("10"), TermNumber: &term}},
		PaymentMethod: MethodCash,
		Subtotal:      money.MustParse("10"),
		Total:         money.MustParse("10"),
	}
	b := a
	b.LineItems = []LineItem{a.LineItems[0]}
	other := 1
	b.LineItems[0].TermNumber = &other
	require.True(t, a.Equal(b))
	require.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Remarks = "x"
	require.False(t, a.Equal(b))
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := a
	c.LineItems = []LineItem{a.LineItems[0]}
	c.LineItems[0].TermNumber = nil
	require.False(t, a.Equal(c))
	require.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestComposerWithConfiguredCardRate(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{item("t1", catalog.CategoryTuitionFee, "1000")})
	require.NoError(t, sel.Toggle("t1", true))
	c := NewComposer(DefaultPolicy.WithCardRate(250))
	req, err := c.Compose(sel, nil, MethodCard, "")
	require.NoError(t, err)
	require.Equal(t, "25.00", req.Surcharge.String())
	require.Equal(t, money.Rate(120), DefaultPolicy.Rate(MethodCard))
}

func TestSummarize(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{item("t1", catalog.CategoryTuitionFee, "100000")})
	require.NoError(t, sel.Toggle("t1", true))
	req, err := Compose(sel, &OtherFee{Amount: money.MustParse("50"), Reason: "Late fee"}, MethodCard, "")
	require.NoError(t, err)

	s := Summarize(req, sel.Labels(), "en-IN")
	require.Len(t, s.Lines, 2)
	require.Equal(t, "label t1", s.Lines[0].Label)
	require.Equal(t, "1,00,000.00", s.Lines[0].Amount)
	require.Equal(t, "Late fee", s.Lines[1].Label)
	require.Equal(t, "1,200.60", s.Surcharge)
	require.Equal(t, "1,01,250.60", s.Total)
}

func TestComposeRejectsTotalsPastCeiling(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{
		item("a", catalog.CategoryTuitionFee, "1.00"),
		item("b", catalog.CategoryTuitionFee, "1.00"),
	})
	require.NoError(t, sel.Toggle("a", true))
	require.NoError(t, sel.Toggle("b", true))

	err := sel.SetOverride("a", "92233720368547758.07")
	require.ErrorIs(t, err, money.ErrInvalidAmount)

	// two amounts at the ceiling parse but cannot be settled together
	require.NoError(t, sel.SetOverride("a", "100000000000.00"))
	require.NoError(t, sel.SetOverride("b", "100000000000.00"))
	_, err = Compose(sel, nil, MethodCash, "")
	require.ErrorIs(t, err, ErrAmountTooLarge)

	// the card surcharge alone can push a ceiling subtotal over
	require.NoError(t, sel.Toggle("b", false))
	_, err = Compose(sel, nil, MethodCard, "")
	require.ErrorIs(t, err, ErrAmountTooLarge)

	req, err := Compose(sel, nil, MethodCash, "")
	require.NoError(t, err)
	require.Equal(t, money.MaxMinor, req.Total.Minor())
}

func TestComposeNeverWrapsCatalogAmounts(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{
		{ID: "huge", Category: catalog.CategoryTuitionFee, OriginalAmount: money.FromMinor(math.MaxInt64)},
		item("small", catalog.CategoryBookFee, "1.00"),
	})
	require.NoError(t, sel.Toggle("huge", true))
	require.NoError(t, sel.Toggle("small", true))

	_, err := Compose(sel, nil, MethodCash, "")
	require.ErrorIs(t, err, ErrAmountTooLarge)

	require.NoError(t, sel.Toggle("small", false))
	_, err = Compose(sel, nil, MethodCard, "")
	require.ErrorIs(t, err, ErrAmountTooLarge)
}

func TestComposeLargeCardSurcharge(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{item("t", catalog.CategoryTuitionFee, "1000000000.00")})
	require.NoError(t, sel.Toggle("t", true))

	req, err := Compose(sel, nil, MethodCard, "")
	require.NoError(t, err)
	require.Equal(t, "12000000.00", req.Surcharge.String())
	require.Equal(t, "1012000000.00", req.Total.String())
}
