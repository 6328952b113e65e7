package repository

import (
	"context"
	"fmt"

	"shopledger/internal/database"
	"shopledger/internal/domain"
)

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	List(ctx context.Context) ([]domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	InsertAll(ctx context.Context, products []domain.Product) error
	// CompareAndSetQuantity moves a product from expected to remaining
	// units. Zero remaining deletes the row. It reports false when the stored
	// quantity was not expected.
	CompareAndSetQuantity(ctx context.Context, id string, expected, remaining int) (bool, error)
}

type productRepository struct {
	db     DBTX
	driver database.Driver
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db DBTX, driver database.Driver) ProductRepository {
	return &productRepository{db: db, driver: driver}
}

const productColumns = `id, name, price, quantity, category_id, barcode, image`

// List returns products in insertion order
func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY seq ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var product domain.Product
		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Price,
			&product.Quantity,
			&product.CategoryID,
			&product.Barcode,
			&product.Image,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// Upsert inserts the product or replaces the row with the same id
func (r *productRepository) Upsert(ctx context.Context, product domain.Product) error {
	query := rebind(r.driver, `
		INSERT INTO products (`+productColumns+`, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM products))
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			quantity = excluded.quantity,
			category_id = excluded.category_id,
			barcode = excluded.barcode,
			image = excluded.image
	`)

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Price,
		product.Quantity,
		product.CategoryID,
		product.Barcode,
		product.Image,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// Delete removes a product. Deleting a missing id is not an error.
func (r *productRepository) Delete(ctx context.Context, id string) error {
	query := rebind(r.driver, `DELETE FROM products WHERE id = ?`)

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

func (r *productRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return fmt.Errorf("failed to clear products: %w", err)
	}
	return nil
}

func (r *productRepository) InsertAll(ctx context.Context, products []domain.Product) error {
	query := rebind(r.driver, `INSERT INTO products (`+productColumns+`, seq) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	for i, product := range products {
		_, err := r.db.ExecContext(
			ctx,
			query,
			product.ID,
			product.Name,
			product.Price,
			product.Quantity,
			product.CategoryID,
			product.Barcode,
			product.Image,
			i+1,
		)
		if err != nil {
			return fmt.Errorf("failed to insert product %q: %w", product.ID, err)
		}
	}
	return nil
}

func (r *productRepository) CompareAndSetQuantity(ctx context.Context, id string, expected, remaining int) (bool, error) {
	var (
		query string
		args  []any
	)
	if remaining == 0 {
		query = rebind(r.driver, `DELETE FROM products WHERE id = ? AND quantity = ?`)
		args = []any{id, expected}
	} else {
		query = rebind(r.driver, `UPDATE products SET quantity = ? WHERE id = ? AND quantity = ?`)
		args = []any{remaining, id, expected}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update product stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}
