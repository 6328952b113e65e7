package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"shopledger/internal/domain"
	"shopledger/internal/repository"
	"shopledger/internal/scheduler"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var errDiskFull = errors.New("disk full")

// memStructured is an in-memory StructuredStore with failure switches.
type memStructured struct {
	mu         sync.Mutex
	categories []domain.Category
	products   []domain.Product
	sales      []domain.SaleRecord

	failReads      map[repository.Collection]bool
	failWrites     error
	failApplySale  error
	failReplaceAll error
}

func newMemStructured() *memStructured {
	return &memStructured{failReads: map[repository.Collection]bool{}}
}

func (m *memStructured) Categories(context.Context) []domain.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads[repository.CollectionCategories] {
		return []domain.Category{}
	}
	return slices.Clone(m.categories)
}

func (m *memStructured) Products(context.Context) []domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads[repository.CollectionProducts] {
		return []domain.Product{}
	}
	return slices.Clone(m.products)
}

func (m *memStructured) Sales(context.Context) []domain.SaleRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads[repository.CollectionSales] {
		return []domain.SaleRecord{}
	}
	return slices.Clone(m.sales)
}

func (m *memStructured) ReadAll(context.Context) (repository.Contents, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, failing := range m.failReads {
		if failing {
			return repository.Contents{}, errDiskFull
		}
	}
	return repository.Contents{
		Categories: append([]domain.Category{}, m.categories...),
		Products:   append([]domain.Product{}, m.products...),
		Sales:      append([]domain.SaleRecord{}, m.sales...),
	}, nil
}

func (m *memStructured) UpsertCategory(_ context.Context, c domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	m.categories = upsertByID(m.categories, c, func(x domain.Category) string { return x.ID })
	return nil
}

func (m *memStructured) UpsertProduct(_ context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	m.products = upsertByID(m.products, p, func(x domain.Product) string { return x.ID })
	return nil
}

func (m *memStructured) DeleteProduct(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	m.products = slices.DeleteFunc(m.products, func(p domain.Product) bool { return p.ID == id })
	return nil
}

func (m *memStructured) ReplaceAll(_ context.Context, sets ...repository.CollectionSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReplaceAll != nil {
		return m.failReplaceAll
	}
	for _, set := range sets {
		switch set.Collection {
		case repository.CollectionCategories:
			m.categories = slices.Clone(set.Categories)
		case repository.CollectionProducts:
			m.products = slices.Clone(set.Products)
		case repository.CollectionSales:
			m.sales = slices.Clone(set.Sales)
		}
	}
	return nil
}

func (m *memStructured) ApplySale(_ context.Context, w repository.SaleWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failApplySale != nil {
		return m.failApplySale
	}

	i := slices.IndexFunc(m.products, func(p domain.Product) bool { return p.ID == w.ProductID })
	if i < 0 || m.products[i].Quantity != w.ExpectedQuantity {
		return repository.ErrStockConflict
	}
	m.sales = append(m.sales, w.Sale)
	if w.Remaining == 0 {
		m.products = slices.Delete(m.products, i, i+1)
	} else {
		m.products[i].Quantity = w.Remaining
	}
	return nil
}

func (m *memStructured) productByID(id string) (domain.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}

// memScalars is an in-memory ScalarStore.
type memScalars struct {
	mu              sync.Mutex
	earnings        domain.Amount
	navigation      *domain.NavigationState
	identity        *domain.Identity
	failSetEarnings error
	navigationSaves int
}

func newMemScalars() *memScalars {
	return &memScalars{earnings: decimal.Zero}
}

func (m *memScalars) Earnings() domain.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.earnings
}

func (m *memScalars) SetEarnings(v domain.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSetEarnings != nil {
		return m.failSetEarnings
	}
	m.earnings = v
	return nil
}

func (m *memScalars) Navigation() domain.NavigationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.navigation == nil {
		return domain.DefaultNavigationState()
	}
	return *m.navigation
}

func (m *memScalars) SetNavigation(s domain.NavigationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navigation = &s
	m.navigationSaves++
	return nil
}

func (m *memScalars) Identity() (domain.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return domain.Identity{}, false
	}
	return *m.identity, true
}

func (m *memScalars) SetIdentity(i domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = &i
	return nil
}

func (m *memScalars) ClearIdentity() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = nil
	return nil
}

// memSnapshots records pushes and serves pulls from memory.
type memSnapshots struct {
	mu      sync.Mutex
	bundles map[string]domain.Bundle
	pushes  []domain.Identity
	failing error
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{bundles: map[string]domain.Bundle{}}
}

func (m *memSnapshots) Push(_ context.Context, identity domain.Identity, bundle domain.Bundle) (domain.Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return domain.Bundle{}, m.failing
	}
	m.pushes = append(m.pushes, identity)
	m.bundles[identity.NormalizedEmail()] = bundle.Clone()
	return bundle, nil
}

func (m *memSnapshots) Pull(_ context.Context, identity domain.Identity) (domain.Bundle, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bundles[identity.NormalizedEmail()]
	return b.Clone(), ok, nil
}

func (m *memSnapshots) pushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pushes)
}

var testEpoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	coord      *Coordinator
	structured *memStructured
	scalars    *memScalars
	snapshots  *memSnapshots
	clock      *scheduler.FakeClock
	metrics    *Metrics
}

func newHarness() *harness {
	h := &harness{
		structured: newMemStructured(),
		scalars:    newMemScalars(),
		snapshots:  newMemSnapshots(),
		clock:      scheduler.NewFakeClock(testEpoch),
		metrics:    NewMetrics(nil),
	}
	ids := 0
	h.coord = NewCoordinator(h.structured, h.scalars, h.snapshots, zap.NewNop(), Options{
		Clock:   h.clock,
		Metrics: h.metrics,
		NewID: func() string {
			ids++
			return fmt.Sprintf("sale-%03d", ids)
		},
	})
	return h
}

func (h *harness) init(t interface{ Fatalf(string, ...any) }) *harness {
	if err := h.coord.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return h
}

func mustPrice(text string) domain.Price {
	p, err := domain.ParsePrice(text)
	if err != nil {
		panic(err)
	}
	return p
}

func widget() domain.Product {
	return domain.Product{
		ID:         "p1",
		Name:       "Widget",
		Price:      mustPrice("100/80"),
		Quantity:   5,
		CategoryID: "c1",
		Barcode:    "111",
	}
}
