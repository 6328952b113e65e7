package repository

import (
	"context"
	"fmt"

	"shopledger/internal/database"
	"shopledger/internal/domain"
)

// CategoryRepository defines the interface for category data access
type CategoryRepository interface {
	List(ctx context.Context) ([]domain.Category, error)
	Upsert(ctx context.Context, category domain.Category) error
	DeleteAll(ctx context.Context) error
	InsertAll(ctx context.Context, categories []domain.Category) error
}

type categoryRepository struct {
	db     DBTX
	driver database.Driver
}

// NewCategoryRepository creates a new instance of CategoryRepository
func NewCategoryRepository(db DBTX, driver database.Driver) CategoryRepository {
	return &categoryRepository{db: db, driver: driver}
}

// List returns categories in insertion order
func (r *categoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	query := `
		SELECT id, name, image
		FROM categories
		ORDER BY seq ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		var category domain.Category
		if err := rows.Scan(&category.ID, &category.Name, &category.Image); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// Upsert inserts the category or replaces the row with the same id. A
// replaced row keeps its position.
func (r *categoryRepository) Upsert(ctx context.Context, category domain.Category) error {
	query := rebind(r.driver, `
		INSERT INTO categories (id, name, image, seq)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM categories))
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, image = excluded.image
	`)

	if _, err := r.db.ExecContext(ctx, query, category.ID, category.Name, category.Image); err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}
	return nil
}

func (r *categoryRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		return fmt.Errorf("failed to clear categories: %w", err)
	}
	return nil
}

func (r *categoryRepository) InsertAll(ctx context.Context, categories []domain.Category) error {
	query := rebind(r.driver, `INSERT INTO categories (id, name, image, seq) VALUES (?, ?, ?, ?)`)

	for i, category := range categories {
		if _, err := r.db.ExecContext(ctx, query, category.ID, category.Name, category.Image, i+1); err != nil {
			return fmt.Errorf("failed to insert category %q: %w", category.ID, err)
		}
	}
	return nil
}
