package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shopledger/internal/database"
	"shopledger/internal/domain"

	"go.uber.org/zap"
)

var (
	// ErrStockConflict means the stored quantity moved since it was read.
	ErrStockConflict = errors.New("product stock changed concurrently")

	ErrUnknownCollection   = errors.New("unknown collection")
	ErrDuplicateCollection = errors.New("collection named twice")
)

// Collection names one of the three structured collections.
type Collection string

const (
	CollectionCategories Collection = "categories"
	CollectionProducts   Collection = "products"
	CollectionSales      Collection = "sales"
)

// CollectionSet is the full replacement content for one collection.
type CollectionSet struct {
	Collection Collection
	Categories []domain.Category
	Products   []domain.Product
	Sales      []domain.SaleRecord
}

// CategoriesSet wraps categories for ReplaceAll.
func CategoriesSet(categories []domain.Category) CollectionSet {
	return CollectionSet{Collection: CollectionCategories, Categories: categories}
}

// ProductsSet wraps products for ReplaceAll.
func ProductsSet(products []domain.Product) CollectionSet {
	return CollectionSet{Collection: CollectionProducts, Products: products}
}

// SalesSet wraps sales for ReplaceAll.
func SalesSet(sales []domain.SaleRecord) CollectionSet {
	return CollectionSet{Collection: CollectionSales, Sales: sales}
}

// SaleWrite is the durable half of a sale: the new log record plus the stock
// move of the product sold.
type SaleWrite struct {
	Sale             domain.SaleRecord
	ProductID        string
	ExpectedQuantity int
	Remaining        int
}

// Contents is a consistent read of every collection.
type Contents struct {
	Categories []domain.Category
	Products   []domain.Product
	Sales      []domain.SaleRecord
}

// Store is the structured store: keyed collections of categories, products
// and sales on one SQL database.
type Store struct {
	db         *sql.DB
	driver     database.Driver
	logger     *zap.Logger
	categories CategoryRepository
	products   ProductRepository
	sales      SaleRepository
}

// NewStore creates a Store over an open, migrated database.
func NewStore(db *sql.DB, driver database.Driver, logger *zap.Logger) *Store {
	return &Store{
		db:         db,
		driver:     driver,
		logger:     logger,
		categories: NewCategoryRepository(db, driver),
		products:   NewProductRepository(db, driver),
		sales:      NewSaleRepository(db, driver),
	}
}

// Categories returns every category. Read failures are logged and yield an
// empty list.
func (s *Store) Categories(ctx context.Context) []domain.Category {
	categories, err := s.categories.List(ctx)
	if err != nil {
		s.logger.Error("Failed to read categories", zap.Error(err))
		return []domain.Category{}
	}
	return categories
}

// Products returns every product, failing soft like Categories.
func (s *Store) Products(ctx context.Context) []domain.Product {
	products, err := s.products.List(ctx)
	if err != nil {
		s.logger.Error("Failed to read products", zap.Error(err))
		return []domain.Product{}
	}
	return products
}

// Sales returns the sales log, failing soft like Categories.
func (s *Store) Sales(ctx context.Context) []domain.SaleRecord {
	sales, err := s.sales.List(ctx)
	if err != nil {
		s.logger.Error("Failed to read sales", zap.Error(err))
		return []domain.SaleRecord{}
	}
	return sales
}

// ReadAll reads every collection inside one transaction. Unlike the
// per-collection getters it reports failures.
func (s *Store) ReadAll(ctx context.Context) (Contents, error) {
	var contents Contents
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if contents.Categories, err = NewCategoryRepository(tx, s.driver).List(ctx); err != nil {
			return err
		}
		if contents.Products, err = NewProductRepository(tx, s.driver).List(ctx); err != nil {
			return err
		}
		contents.Sales, err = NewSaleRepository(tx, s.driver).List(ctx)
		return err
	})
	return contents, err
}

// UpsertCategory inserts or replaces a category by id.
func (s *Store) UpsertCategory(ctx context.Context, category domain.Category) error {
	return s.categories.Upsert(ctx, category)
}

// UpsertProduct inserts or replaces a product by id.
func (s *Store) UpsertProduct(ctx context.Context, product domain.Product) error {
	return s.products.Upsert(ctx, product)
}

// UpsertSale inserts or replaces a sale record by id.
func (s *Store) UpsertSale(ctx context.Context, sale domain.SaleRecord) error {
	return s.sales.Upsert(ctx, sale)
}

// DeleteProduct removes a product; a missing id is a no-op.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.products.Delete(ctx, id)
}

// ReplaceAll clears and refills each named collection in a single
// transaction. Either every set lands or none does.
func (s *Store) ReplaceAll(ctx context.Context, sets ...CollectionSet) error {
	seen := make(map[Collection]bool, len(sets))
	for _, set := range sets {
		switch set.Collection {
		case CollectionCategories, CollectionProducts, CollectionSales:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownCollection, set.Collection)
		}
		if seen[set.Collection] {
			return fmt.Errorf("%w: %q", ErrDuplicateCollection, set.Collection)
		}
		seen[set.Collection] = true
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, set := range sets {
			if err := s.replace(ctx, tx, set); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) replace(ctx context.Context, tx *sql.Tx, set CollectionSet) error {
	switch set.Collection {
	case CollectionCategories:
		repo := NewCategoryRepository(tx, s.driver)
		if err := repo.DeleteAll(ctx); err != nil {
			return err
		}
		return repo.InsertAll(ctx, set.Categories)
	case CollectionProducts:
		repo := NewProductRepository(tx, s.driver)
		if err := repo.DeleteAll(ctx); err != nil {
			return err
		}
		return repo.InsertAll(ctx, set.Products)
	default:
		repo := NewSaleRepository(tx, s.driver)
		if err := repo.DeleteAll(ctx); err != nil {
			return err
		}
		return repo.InsertAll(ctx, set.Sales)
	}
}

// ApplySale appends the sale record and moves the product's stock in one
// transaction. ErrStockConflict is returned, and nothing is written, when
// the product no longer holds the expected quantity.
func (s *Store) ApplySale(ctx context.Context, w SaleWrite) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := NewSaleRepository(tx, s.driver).Upsert(ctx, w.Sale); err != nil {
			return err
		}

		ok, err := NewProductRepository(tx, s.driver).CompareAndSetQuantity(ctx, w.ProductID, w.ExpectedQuantity, w.Remaining)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: product %q", ErrStockConflict, w.ProductID)
		}
		return nil
	})
}

// SchemaVersion reports the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	return database.SchemaVersion(ctx, s.db, s.driver)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
