package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SaleRecord is an append-only entry in the sales log. Product name and image
// are copied at sale time so history survives product deletion.
type SaleRecord struct {
	ID           string `json:"id"`
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	ProductImage string `json:"productImage"`
	Quantity     int    `json:"quantity"`
	SoldAtPrice  Amount `json:"soldAtPrice"`
	Timestamp    int64  `json:"timestamp"`
}

type saleRecordJSON struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	ProductImage string          `json:"productImage"`
	Quantity     int             `json:"quantity"`
	SoldAtPrice  json.RawMessage `json:"soldAtPrice"`
	Timestamp    int64           `json:"timestamp"`
}

// MarshalJSON writes soldAtPrice as a JSON number, like bundle earnings.
func (s SaleRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(saleRecordJSON{
		ID:           s.ID,
		ProductID:    s.ProductID,
		ProductName:  s.ProductName,
		ProductImage: s.ProductImage,
		Quantity:     s.Quantity,
		SoldAtPrice:  json.RawMessage(s.SoldAtPrice.String()),
		Timestamp:    s.Timestamp,
	})
}

// UnmarshalJSON accepts soldAtPrice as a number or numeric string.
func (s *SaleRecord) UnmarshalJSON(data []byte) error {
	var in saleRecordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var price Amount
	if len(in.SoldAtPrice) > 0 && string(in.SoldAtPrice) != "null" {
		if err := price.UnmarshalJSON(in.SoldAtPrice); err != nil {
			return fmt.Errorf("sale %q: invalid soldAtPrice: %w", in.ID, err)
		}
	}

	*s = SaleRecord{
		ID:           in.ID,
		ProductID:    in.ProductID,
		ProductName:  in.ProductName,
		ProductImage: in.ProductImage,
		Quantity:     in.Quantity,
		SoldAtPrice:  price,
		Timestamp:    in.Timestamp,
	}
	return nil
}

// Total is the amount earned by the sale.
func (s SaleRecord) Total() Amount {
	return s.SoldAtPrice.Mul(AmountFromInt(int64(s.Quantity)))
}

// Validate rejects records that could not have come from a sale.
func (s SaleRecord) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if s.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if s.SoldAtPrice.IsNegative() {
		return &ValidationError{Field: "soldAtPrice", Reason: "must not be negative"}
	}
	return nil
}

// SumSales recomputes earnings from a sales log.
func SumSales(sales []SaleRecord) Amount {
	total := AmountFromInt(0)
	for _, sale := range sales {
		total = total.Add(sale.Total())
	}
	return total
}
