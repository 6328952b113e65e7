package repository

import (
	"context"
	"fmt"

	"shopledger/internal/database"
	"shopledger/internal/domain"
)

// SaleRepository defines the interface for sales log access
type SaleRepository interface {
	List(ctx context.Context) ([]domain.SaleRecord, error)
	Upsert(ctx context.Context, sale domain.SaleRecord) error
	DeleteAll(ctx context.Context) error
	InsertAll(ctx context.Context, sales []domain.SaleRecord) error
}

type saleRepository struct {
	db     DBTX
	driver database.Driver
}

// NewSaleRepository creates a new instance of SaleRepository
func NewSaleRepository(db DBTX, driver database.Driver) SaleRepository {
	return &saleRepository{db: db, driver: driver}
}

const saleColumns = `id, product_id, product_name, product_image, quantity, sold_at_price, sold_at`

// List returns sales in insertion order
func (r *saleRepository) List(ctx context.Context) ([]domain.SaleRecord, error) {
	query := `SELECT ` + saleColumns + ` FROM sales ORDER BY seq ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	sales := []domain.SaleRecord{}
	for rows.Next() {
		var sale domain.SaleRecord
		err := rows.Scan(
			&sale.ID,
			&sale.ProductID,
			&sale.ProductName,
			&sale.ProductImage,
			&sale.Quantity,
			&sale.SoldAtPrice,
			&sale.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, sale)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales: %w", err)
	}

	return sales, nil
}

// Upsert inserts the sale or replaces the record with the same id
func (r *saleRepository) Upsert(ctx context.Context, sale domain.SaleRecord) error {
	query := rebind(r.driver, `
		INSERT INTO sales (`+saleColumns+`, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM sales))
		ON CONFLICT (id) DO UPDATE SET
			product_id = excluded.product_id,
			product_name = excluded.product_name,
			product_image = excluded.product_image,
			quantity = excluded.quantity,
			sold_at_price = excluded.sold_at_price,
			sold_at = excluded.sold_at
	`)

	_, err := r.db.ExecContext(
		ctx,
		query,
		sale.ID,
		sale.ProductID,
		sale.ProductName,
		sale.ProductImage,
		sale.Quantity,
		sale.SoldAtPrice,
		sale.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sale: %w", err)
	}
	return nil
}

func (r *saleRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sales`); err != nil {
		return fmt.Errorf("failed to clear sales: %w", err)
	}
	return nil
}

func (r *saleRepository) InsertAll(ctx context.Context, sales []domain.SaleRecord) error {
	query := rebind(r.driver, `INSERT INTO sales (`+saleColumns+`, seq) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	for i, sale := range sales {
		_, err := r.db.ExecContext(
			ctx,
			query,
			sale.ID,
			sale.ProductID,
			sale.ProductName,
			sale.ProductImage,
			sale.Quantity,
			sale.SoldAtPrice,
			sale.Timestamp,
			i+1,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sale %q: %w", sale.ID, err)
		}
	}
	return nil
}
