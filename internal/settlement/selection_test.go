package settlement

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/money"
)

func item(id string, category catalog.Category, amount string) catalog.FeeLineItem {
	return catalog.FeeLineItem{ID: id, Category: category, Label: "label " + id, OriginalAmount: money.MustParse(amount)}
}

func TestToggleDeselectDropsOverride(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{item("t1", catalog.CategoryTuitionFee, "500")})
	require.NoError(t, sel.Toggle("t1", true))
	require.NoError(t, sel.SetOverride("t1", "450.00"))

	amount, ok := sel.EffectiveAmount("t1")
	require.True(t, ok)
	require.Equal(t, "450.00", amount.String())

	require.NoError(t, sel.Toggle("t1", false))
	_, ok = sel.EffectiveAmount("t1")
	require.False(t, ok)

	require.NoError(t, sel.Toggle("t1", true))
	amount, ok = sel.EffectiveAmount("t1")
	require.True(t, ok)
	require.Equal(t, "500.00", amount.String())
}

func TestToggleUnknownItem(t *testing.T) {
	sel := NewSelection(nil)
	require.ErrorIs(t, sel.Toggle("nope", true), ErrUnknownItem)
	require.ErrorIs(t, sel.SetOverride("nope", "1"), ErrUnknownItem)
}

func TestSetOverrideRejectsInvalidAndKeepsState(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{item("b", catalog.CategoryBookFee, "500")})
	require.NoError(t, sel.Toggle("b", true))
	require.NoError(t, sel.SetOverride("b", "480"))

	for _, raw := range []string{"-1", "abc", "", "1.005", "NaN"} {
		err := sel.SetOverride("b", raw)
		require.Error(t, err, raw)
		require.True(t, errors.Is(err, money.ErrInvalidAmount), raw)
		amount, _ := sel.EffectiveAmount("b")
		require.Equal(t, "480.00", amount.String(), raw)
	}
	require.ErrorIs(t, sel.SetOverrideAmount("b", money.FromMinor(-5)), money.ErrInvalidAmount)
}

func TestOverrideRequiresSelection(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{item("b", catalog.CategoryBookFee, "500")})
	require.ErrorIs(t, sel.SetOverride("b", "10"), ErrNotSelected)
	require.ErrorIs(t, sel.ClearOverride("b"), ErrNotSelected)
	require.Zero(t, sel.Len())
}

func TestOverrideMayExceedOriginal(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{item("b", catalog.CategoryBookFee, "500")})
	require.NoError(t, sel.Toggle("b", true))
	require.NoError(t, sel.SetOverride("b", "750"))
	amount, _ := sel.EffectiveAmount("b")
	require.Equal(t, "750.00", amount.String())

	require.NoError(t, sel.ClearOverride("b"))
	amount, _ = sel.EffectiveAmount("b")
	require.Equal(t, "500.00", amount.String())
}

func TestSelectedFollowsCatalogOrder(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{
		item("a", catalog.CategoryTuitionFee, "1"),
		item("b", catalog.CategoryTransportFee, "2"),
		item("c", catalog.CategoryBookFee, "3"),
		item("a", catalog.CategoryOther, "99"),
	})
	require.Len(t, sel.Items(), 3)
	require.NoError(t, sel.Toggle("c", true))
	require.NoError(t, sel.Toggle("a", true))

	got := sel.Selected()
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].Item.ID)
	require.Equal(t, catalog.CategoryTuitionFee, got[0].Item.Category)
	require.Equal(t, "c", got[1].Item.ID)
}

func TestCloneIsIndependent(t *testing.T) {
	sel := NewSelection([]catalog.FeeLineItem{item("a", catalog.CategoryTuitionFee, "1")})
	require.NoError(t, sel.Toggle("a", true))
	snap := sel.Clone()
	require.NoError(t, sel.Toggle("a", false))
	require.True(t, snap.IsSelected("a"))
	require.False(t, sel.IsSelected("a"))
}

func TestOtherFeeValid(t *testing.T) {
	var none *OtherFee
	require.False(t, none.Present())
	require.False(t, (&OtherFee{Amount: money.MustParse("100")}).Valid())
	require.False(t, (&OtherFee{Amount: money.MustParse("100"), Reason: "   "}).Valid())
	require.False(t, (&OtherFee{Reason: "late"}).Valid())
	require.True(t, (&OtherFee{Amount: money.MustParse("100"), Reason: "Late fee"}).Valid())
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" bank_transfer ")
	require.NoError(t, err)
	require.Equal(t, MethodBankTransfer, m)
	_, err = ParseMethod("CRYPTO")
	require.ErrorIs(t, err, ErrUnknownMethod)
}
