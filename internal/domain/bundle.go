package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Bundle is a full point-in-time capture of the shop used for backup,
// restore and snapshot sync.
type Bundle struct {
	Categories  []Category
	Products    []Product
	Sales       []SaleRecord
	Earnings    Amount
	LastUpdated int64
}

type bundleJSON struct {
	Categories  []Category      `json:"categories"`
	Products    []Product       `json:"products"`
	Sales       []SaleRecord    `json:"sales"`
	Earnings    json.RawMessage `json:"earnings"`
	LastUpdated int64           `json:"lastUpdated"`
}

// MarshalJSON writes earnings as a JSON number and never emits null arrays.
func (b Bundle) MarshalJSON() ([]byte, error) {
	out := bundleJSON{
		Categories:  nonNil(b.Categories),
		Products:    nonNil(b.Products),
		Sales:       nonNil(b.Sales),
		Earnings:    json.RawMessage(b.Earnings.String()),
		LastUpdated: b.LastUpdated,
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts earnings as a number or numeric string; anything
// unparseable becomes zero.
func (b *Bundle) UnmarshalJSON(data []byte) error {
	var in bundleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode bundle: %w", err)
	}

	earnings := decimal.Zero
	if len(in.Earnings) > 0 {
		if err := earnings.UnmarshalJSON(in.Earnings); err != nil || earnings.IsNegative() {
			earnings = decimal.Zero
		}
	}

	*b = Bundle{
		Categories:  in.Categories,
		Products:    in.Products,
		Sales:       in.Sales,
		Earnings:    earnings,
		LastUpdated: in.LastUpdated,
	}
	return nil
}

// Clone returns a copy that shares no slices with b.
func (b Bundle) Clone() Bundle {
	return Bundle{
		Categories:  append([]Category(nil), b.Categories...),
		Products:    append([]Product(nil), b.Products...),
		Sales:       append([]SaleRecord(nil), b.Sales...),
		Earnings:    b.Earnings,
		LastUpdated: b.LastUpdated,
	}
}

// Validate checks every entity and rejects duplicate ids within a collection.
func (b Bundle) Validate() error {
	seen := make(map[string]struct{}, len(b.Categories))
	for _, c := range b.Categories {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("category %q: %w", c.ID, err)
		}
		if _, dup := seen[c.ID]; dup {
			return &ValidationError{Field: "categories", Reason: "duplicate id " + c.ID}
		}
		seen[c.ID] = struct{}{}
	}

	seen = make(map[string]struct{}, len(b.Products))
	for _, p := range b.Products {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("product %q: %w", p.ID, err)
		}
		if _, dup := seen[p.ID]; dup {
			return &ValidationError{Field: "products", Reason: "duplicate id " + p.ID}
		}
		seen[p.ID] = struct{}{}
	}

	seen = make(map[string]struct{}, len(b.Sales))
	for _, s := range b.Sales {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sale %q: %w", s.ID, err)
		}
		if _, dup := seen[s.ID]; dup {
			return &ValidationError{Field: "sales", Reason: "duplicate id " + s.ID}
		}
		seen[s.ID] = struct{}{}
	}

	if b.Earnings.IsNegative() {
		return &ValidationError{Field: "earnings", Reason: "must not be negative"}
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
