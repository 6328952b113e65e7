package service

import (
	"context"

	"shopledger/internal/domain"
	"shopledger/internal/repository"
)

// StructuredStore holds the keyed collections. Reads fail soft, writes fail
// loud. *repository.Store implements it.
type StructuredStore interface {
	Categories(ctx context.Context) []domain.Category
	Products(ctx context.Context) []domain.Product
	Sales(ctx context.Context) []domain.SaleRecord
	ReadAll(ctx context.Context) (repository.Contents, error)
	UpsertCategory(ctx context.Context, category domain.Category) error
	UpsertProduct(ctx context.Context, product domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
	ReplaceAll(ctx context.Context, sets ...repository.CollectionSet) error
	ApplySale(ctx context.Context, write repository.SaleWrite) error
}

// ScalarStore holds single values. *kvstore.Store implements it.
type ScalarStore interface {
	Earnings() domain.Amount
	SetEarnings(value domain.Amount) error
	Navigation() domain.NavigationState
	SetNavigation(state domain.NavigationState) error
	Identity() (domain.Identity, bool)
	SetIdentity(identity domain.Identity) error
	ClearIdentity() error
}

// SnapshotService stores full-state bundles per identity.
// *snapshot.Service implements it.
type SnapshotService interface {
	Push(ctx context.Context, identity domain.Identity, bundle domain.Bundle) (domain.Bundle, error)
	Pull(ctx context.Context, identity domain.Identity) (domain.Bundle, bool, error)
}
