// Package export writes backup files a shop owner can keep or re-import.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"shopledger/internal/domain"

	"github.com/gocarina/gocsv"
)

const fileNameLayout = "2006-01-02"

// FileName is the download name of a JSON backup taken at now.
func FileName(now time.Time) string {
	return "inventory-backup-" + now.Format(fileNameLayout) + ".json"
}

// WriteJSON writes bundle as indented JSON.
func WriteJSON(w io.Writer, bundle domain.Bundle) error {
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// ReadBundle decodes and validates a backup produced by WriteJSON.
func ReadBundle(r io.Reader) (domain.Bundle, error) {
	var bundle domain.Bundle
	if err := json.NewDecoder(r).Decode(&bundle); err != nil {
		return domain.Bundle{}, &domain.ValidationError{Field: "backup", Reason: err.Error()}
	}
	if err := bundle.Validate(); err != nil {
		return domain.Bundle{}, err
	}
	return bundle, nil
}

type saleRow struct {
	ID          string `csv:"id"`
	SoldAt      string `csv:"sold_at"`
	ProductID   string `csv:"product_id"`
	ProductName string `csv:"product_name"`
	Quantity    int    `csv:"quantity"`
	UnitPrice   string `csv:"unit_price"`
	Total       string `csv:"total"`
}

// WriteSalesCSV writes one row per sale, in the order given. Times are UTC.
func WriteSalesCSV(w io.Writer, sales []domain.SaleRecord) error {
	rows := make([]*saleRow, 0, len(sales))
	for _, s := range sales {
		rows = append(rows, &saleRow{
			ID:          s.ID,
			SoldAt:      time.UnixMilli(s.Timestamp).UTC().Format(time.RFC3339),
			ProductID:   s.ProductID,
			ProductName: s.ProductName,
			Quantity:    s.Quantity,
			UnitPrice:   s.SoldAtPrice.String(),
			Total:       s.Total().String(),
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to write sales csv: %w", err)
	}
	return nil
}
