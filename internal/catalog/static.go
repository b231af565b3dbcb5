package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Static serves a fixed catalog for every enrollment. The offline settle
// tool loads one from a file.
type Static []FeeLineItem

// FetchFeeItems implements Provider.
func (s Static) FetchFeeItems(_ context.Context, _, enrollmentID string) ([]FeeLineItem, error) {
	if strings.TrimSpace(enrollmentID) == "" {
		return nil, ErrEnrollmentRequired
	}
	out := make([]FeeLineItem, len(s))
	copy(out, s)
	return out, nil
}

// LoadStatic decodes a JSON array of fee items and checks each one.
func LoadStatic(r io.Reader) (Static, error) {
	var items []FeeLineItem
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			return nil, fmt.Errorf("catalog: item %d has no id", i)
		}
		if item.ID == OtherFeeID {
			return nil, fmt.Errorf("catalog: item %d: %w", i, ErrReservedID)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate item %q", item.ID)
		}
		seen[item.ID] = struct{}{}
		if !item.Category.Valid() {
			return nil, fmt.Errorf("catalog: item %q has unknown category %q", item.ID, item.Category)
		}
	}
	return Static(items), nil
}
