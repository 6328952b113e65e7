package service

import (
	"slices"
	"strings"

	"shopledger/internal/domain"
)

// ProductFilter narrows and orders FilteredProducts. Empty fields match
// everything.
type ProductFilter struct {
	CategoryID string
	Search     string
	Descending bool
}

func (c *Coordinator) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Coordinator) Categories() []domain.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Category{}, c.categories...)
}

func (c *Coordinator) Products() []domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Product{}, c.products...)
}

// Sales returns the sales log, most recent first.
func (c *Coordinator) Sales() []domain.SaleRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.SaleRecord{}, c.sales...)
}

func (c *Coordinator) Earnings() domain.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.earnings
}

// EarningsFromLog recomputes earnings from the sales log. It equals
// Earnings unless a partial failure left the two apart.
func (c *Coordinator) EarningsFromLog() domain.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.SumSales(c.sales)
}

func (c *Coordinator) Navigation() domain.NavigationState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.navigation
}

func (c *Coordinator) Identity() (domain.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return domain.Identity{}, false
	}
	return *c.identity, true
}

// Bundle captures the whole in-memory state as an independent copy.
func (c *Coordinator) Bundle() domain.Bundle {
	c.mu.RLock()
	bundle := domain.Bundle{
		Categories: c.categories,
		Products:   c.products,
		Sales:      c.sales,
		Earnings:   c.earnings,
	}.Clone()
	c.mu.RUnlock()

	bundle.LastUpdated = c.clock.Now().UnixMilli()
	return bundle
}

// TotalInventoryValue is the retail value of all stock.
func (c *Coordinator) TotalInventoryValue() domain.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := domain.AmountFromInt(0)
	for _, p := range c.products {
		total = total.Add(p.StockValue())
	}
	return total
}

// FilteredProducts restricts products to a category and a case-insensitive
// name or barcode substring, sorted by name. Names compare case-folded first,
// then byte-wise, then by id, so the order is total and independent of
// locale.
func (c *Coordinator) FilteredProducts(filter ProductFilter) []domain.Product {
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	c.mu.RLock()
	out := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Barcode), search) {
			continue
		}
		out = append(out, p)
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Product) int {
		cmp := compareByName(a, b)
		if filter.Descending {
			return -cmp
		}
		return cmp
	})
	return out
}

func compareByName(a, b domain.Product) int {
	if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// FindByBarcode returns the first product whose barcode equals code.
func (c *Coordinator) FindByBarcode(code string) (domain.Product, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Product{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.products {
		if p.Barcode == code {
			return p, true
		}
	}
	return domain.Product{}, false
}
