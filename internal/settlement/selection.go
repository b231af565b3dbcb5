package settlement

import (
	"fmt"
	"strings"

	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/money"
)

type choice struct {
	override    money.Money
	hasOverride bool
}

// Selection tracks which catalog items are being paid and at what amount.
// A Selection belongs to one counter session and is not safe for
// concurrent use.
type Selection struct {
	items  []catalog.FeeLineItem
	index  map[string]int
	chosen map[string]choice
}

// Entry is one selected item with its optional override.
type Entry struct {
	Item     catalog.FeeLineItem
	Override *money.Money
}

// Amount is the override when present, the catalog amount otherwise.
func (e Entry) Amount() money.Money {
	if e.Override != nil {
		return *e.Override
	}
	return e.Item.OriginalAmount
}

// NewSelection starts an empty selection over a catalog snapshot. Duplicate
// ids keep their first occurrence.
func NewSelection(items []catalog.FeeLineItem) *Selection {
	s := &Selection{
		items:  make([]catalog.FeeLineItem, 0, len(items)),
		index:  make(map[string]int, len(items)),
		chosen: make(map[string]choice),
	}
	for _, item := range items {
		if _, dup := s.index[item.ID]; dup {
			continue
		}
		s.index[item.ID] = len(s.items)
		s.items = append(s.items, item)
	}
	return s
}

// Items returns the catalog snapshot in catalog order.
func (s *Selection) Items() []catalog.FeeLineItem {
	out := make([]catalog.FeeLineItem, len(s.items))
	copy(out, s.items)
	return out
}

// Item looks up a catalog item by id.
func (s *Selection) Item(itemID string) (catalog.FeeLineItem, bool) {
	i, ok := s.index[itemID]
	if !ok {
		return catalog.FeeLineItem{}, false
	}
	return s.items[i], true
}

// Toggle selects or deselects an item. Deselecting drops any override with
// it; selecting always starts from the catalog amount.
func (s *Selection) Toggle(itemID string, next bool) error {
	if _, ok := s.index[itemID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	if next {
		s.chosen[itemID] = choice{}
		return nil
	}
	delete(s.chosen, itemID)
	return nil
}

// IsSelected reports whether itemID is currently selected.
func (s *Selection) IsSelected(itemID string) bool {
	_, ok := s.chosen[itemID]
	return ok
}

// SetOverride parses raw and stores it as the item's amount. Invalid input
// leaves the previous state untouched.
func (s *Selection) SetOverride(itemID, raw string) error {
	amount, err := money.Parse(raw)
	if err != nil {
		return fmt.Errorf("override %s: %w", itemID, err)
	}
	return s.SetOverrideAmount(itemID, amount)
}

// SetOverrideAmount stores an already parsed override.
func (s *Selection) SetOverrideAmount(itemID string, amount money.Money) error {
	if _, ok := s.index[itemID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	if !money.IsNonNegative(amount) || amount.Minor() > money.MaxMinor {
		return fmt.Errorf("override %s: %w", itemID, money.ErrInvalidAmount)
	}
	if _, ok := s.chosen[itemID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotSelected, itemID)
	}
	s.chosen[itemID] = choice{override: amount, hasOverride: true}
	return nil
}

// ClearOverride restores the catalog amount of a selected item.
func (s *Selection) ClearOverride(itemID string) error {
	if _, ok := s.index[itemID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	if _, ok := s.chosen[itemID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotSelected, itemID)
	}
	s.chosen[itemID] = choice{}
	return nil
}

// EffectiveAmount returns the amount an item contributes. The second result
// is false for unselected or unknown items.
func (s *Selection) EffectiveAmount(itemID string) (money.Money, bool) {
	c, ok := s.chosen[itemID]
	if !ok {
		return money.Zero, false
	}
	if c.hasOverride {
		return c.override, true
	}
	return s.items[s.index[itemID]].OriginalAmount, true
}

// Selected returns the chosen items in catalog order.
func (s *Selection) Selected() []Entry {
	out := make([]Entry, 0, len(s.chosen))
	for _, item := range s.items {
		c, ok := s.chosen[item.ID]
		if !ok {
			continue
		}
		e := Entry{Item: item}
		if c.hasOverride {
			amount := c.override
			e.Override = &amount
		}
		out = append(out, e)
	}
	return out
}

// Len is the number of selected items.
func (s *Selection) Len() int { return len(s.chosen) }

// Clone returns an independent copy.
func (s *Selection) Clone() *Selection {
	out := &Selection{
		items:  s.items,
		index:  s.index,
		chosen: make(map[string]choice, len(s.chosen)),
	}
	for id, c := range s.chosen {
		out.chosen[id] = c
	}
	return out
}

// Labels maps item ids to their catalog labels.
func (s *Selection) Labels() map[string]string {
	out := make(map[string]string, len(s.items))
	for _, item := range s.items {
		out[item.ID] = item.Label
	}
	return out
}

// OtherFee is the single ad hoc charge a cashier may add.
type OtherFee struct {
	Amount money.Money `json:"amount"`
	Reason string      `json:"reason"`
}

// Present reports whether the entry carries an amount.
func (o *OtherFee) Present() bool {
	return o != nil && o.Amount.IsPositive()
}

// Valid reports a positive amount with a non-blank reason.
func (o *OtherFee) Valid() bool {
	return o.Present() && strings.TrimSpace(o.Reason) != ""
}
