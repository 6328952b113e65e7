package domain

import "strings"

// Category groups products on the shop floor.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Validate rejects categories that cannot be keyed.
func (c Category) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	return nil
}

// Product is a stock item. Quantity never goes below zero: a sale that would
// exhaust the stock removes the product instead.
type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Price      Price  `json:"price"`
	Quantity   int    `json:"quantity"`
	CategoryID string `json:"categoryId"`
	Barcode    string `json:"barcode"`
	Image      string `json:"image"`
}

// Validate rejects products that cannot be keyed or carry negative stock.
func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if p.Quantity < 0 {
		return &ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	return nil
}

// StockValue is the retail value of the units on hand.
func (p Product) StockValue() Amount {
	return p.Price.Retail.Mul(AmountFromInt(int64(p.Quantity)))
}
