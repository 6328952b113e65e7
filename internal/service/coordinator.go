package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"shopledger/internal/domain"
	"shopledger/internal/repository"
	"shopledger/internal/scheduler"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultDebounce    = 7 * time.Second
	DefaultPushTimeout = 30 * time.Second
)

// InventoryService is the surface the HTTP handlers use.
type InventoryService interface {
	Initialize(ctx context.Context) error
	Loaded() bool

	Categories() []domain.Category
	Products() []domain.Product
	Sales() []domain.SaleRecord
	Earnings() domain.Amount
	EarningsFromLog() domain.Amount
	Navigation() domain.NavigationState
	Identity() (domain.Identity, bool)
	Bundle() domain.Bundle
	TotalInventoryValue() domain.Amount
	FilteredProducts(filter ProductFilter) []domain.Product
	FindByBarcode(code string) (domain.Product, bool)

	UpsertCategory(ctx context.Context, category domain.Category) error
	UpsertProduct(ctx context.Context, product domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
	RecordSale(ctx context.Context, productID string, quantity int, unitPrice domain.Amount) (*domain.SaleRecord, error)
	RestoreFullState(ctx context.Context, bundle domain.Bundle) error
	ResetEarnings(ctx context.Context) error
	PushSnapshot(ctx context.Context, identity domain.Identity) (domain.Bundle, error)
	PullSnapshot(ctx context.Context, identity domain.Identity) (domain.Bundle, bool, error)
	SignIn(ctx context.Context, identity domain.Identity) error
	SignOut(ctx context.Context) error
	SetNavigation(ctx context.Context, state domain.NavigationState) error
}

type Options struct {
	Clock       scheduler.Clock
	Debounce    time.Duration
	PushTimeout time.Duration
	Metrics     *Metrics
	NewID       func() string
}

// Coordinator owns the in-memory inventory and keeps it equal to what the
// stores hold durably. Memory changes only after the store write it mirrors
// has succeeded.
type Coordinator struct {
	structured StructuredStore
	scalars    ScalarStore
	snapshots  SnapshotService
	clock      scheduler.Clock
	logger     *zap.Logger
	metrics    *Metrics
	newID      func() string

	pushTimeout time.Duration
	debouncer   *scheduler.Debouncer
	baseCtx     context.Context
	cancel      context.CancelFunc
	inflight    sync.WaitGroup

	// opMu serializes mutations for their whole duration, store I/O included.
	opMu sync.Mutex

	mu         sync.RWMutex
	categories []domain.Category
	products   []domain.Product
	sales      []domain.SaleRecord // most recent first
	earnings   domain.Amount
	navigation domain.NavigationState
	identity   *domain.Identity
	loaded     bool
	closed     bool
}

var _ InventoryService = (*Coordinator)(nil)

func NewCoordinator(
	structured StructuredStore,
	scalars ScalarStore,
	snapshots SnapshotService,
	logger *zap.Logger,
	opts Options,
) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = scheduler.RealClock{}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = DefaultPushTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		structured:  structured,
		scalars:     scalars,
		snapshots:   snapshots,
		clock:       opts.Clock,
		logger:      logger,
		metrics:     opts.Metrics,
		newID:       opts.NewID,
		pushTimeout: opts.PushTimeout,
		baseCtx:     baseCtx,
		cancel:      cancel,
		categories:  []domain.Category{},
		products:    []domain.Product{},
		sales:       []domain.SaleRecord{},
		earnings:    domain.AmountFromInt(0),
		navigation:  domain.DefaultNavigationState(),
	}
	c.debouncer = scheduler.NewDebouncer(opts.Clock, opts.Debounce, c.autoPush)
	return c
}

// Initialize loads every collection and the scalars, then marks the
// coordinator loaded. A collection that fails to read starts empty.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.isClosed() {
		return ErrClosed
	}

	var (
		categories []domain.Category
		products   []domain.Product
		sales      []domain.SaleRecord
		earnings   domain.Amount
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		categories = c.structured.Categories(gctx)
		return gctx.Err()
	})
	g.Go(func() error {
		products = c.structured.Products(gctx)
		return gctx.Err()
	})
	g.Go(func() error {
		sales = c.structured.Sales(gctx)
		return gctx.Err()
	})
	g.Go(func() error {
		earnings = c.scalars.Earnings()
		return nil
	})
	// A cancelled load must not be mistaken for an empty store.
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load inventory: %w", err)
	}

	sortSalesNewestFirst(sales)
	navigation := c.scalars.Navigation()
	identity, hasIdentity := c.scalars.Identity()

	if fromLog := domain.SumSales(sales); !fromLog.Equal(earnings) {
		c.logger.Warn("Stored earnings differ from the sales log",
			zap.String("earnings", earnings.String()),
			zap.String("from_log", fromLog.String()),
		)
	}

	c.mu.Lock()
	c.categories = categories
	c.products = products
	c.sales = sales
	c.earnings = earnings
	c.navigation = navigation
	c.identity = nil
	if hasIdentity {
		c.identity = &identity
	}
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info("Inventory loaded",
		zap.Int("categories", len(categories)),
		zap.Int("products", len(products)),
		zap.Int("sales", len(sales)),
		zap.String("earnings", earnings.String()),
		zap.Bool("signed_in", hasIdentity),
	)
	return nil
}

// UpsertCategory saves the category and merges it into memory by id.
func (c *Coordinator) UpsertCategory(ctx context.Context, category domain.Category) error {
	if err := category.Validate(); err != nil {
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.ready(); err != nil {
		return err
	}
	if err := c.structured.UpsertCategory(ctx, category); err != nil {
		return err
	}

	c.mu.Lock()
	c.categories = upsertByID(c.categories, category, func(x domain.Category) string { return x.ID })
	c.mu.Unlock()

	c.debouncer.Trigger()
	return nil
}

// UpsertProduct saves the product and merges it into memory by id.
func (c *Coordinator) UpsertProduct(ctx context.Context, product domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.ready(); err != nil {
		return err
	}
	if err := c.structured.UpsertProduct(ctx, product); err != nil {
		return err
	}

	c.mu.Lock()
	c.products = upsertByID(c.products, product, func(x domain.Product) string { return x.ID })
	c.mu.Unlock()

	c.debouncer.Trigger()
	return nil
}

// DeleteProduct removes a product. Deleting an absent id succeeds.
func (c *Coordinator) DeleteProduct(ctx context.Context, id string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.ready(); err != nil {
		return err
	}
	if err := c.structured.DeleteProduct(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	c.products = slices.DeleteFunc(c.products, func(p domain.Product) bool { return p.ID == id })
	c.mu.Unlock()

	c.debouncer.Trigger()
	return nil
}

// RecordSale sells quantity units of a product at unitPrice. Selling a
// product that is not in memory is a silent no-op and returns nil, nil.
// Selling the last unit, or more, removes the product.
func (c *Coordinator) RecordSale(ctx context.Context, productID string, quantity int, unitPrice domain.Amount) (*domain.SaleRecord, error) {
	if quantity <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if unitPrice.IsNegative() {
		return nil, &domain.ValidationError{Field: "unitPrice", Reason: "must not be negative"}
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.ready(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	idx := slices.IndexFunc(c.products, func(p domain.Product) bool { return p.ID == productID })
	var product domain.Product
	if idx >= 0 {
		product = c.products[idx]
	}
	earnings := c.earnings
	c.mu.RUnlock()

	if idx < 0 {
		c.logger.Info("Ignoring sale of unknown product", zap.String("product_id", productID))
		return nil, nil
	}

	sale := domain.SaleRecord{
		ID:           c.newID(),
		ProductID:    product.ID,
		ProductName:  product.Name,
		ProductImage: product.Image,
		Quantity:     quantity,
		SoldAtPrice:  unitPrice,
		Timestamp:    c.clock.Now().UnixMilli(),
	}
	remaining := max(product.Quantity-quantity, 0)

	err := c.structured.ApplySale(ctx, repository.SaleWrite{
		Sale:             sale,
		ProductID:        product.ID,
		ExpectedQuantity: product.Quantity,
		Remaining:        remaining,
	})
	if err != nil {
		c.metrics.SaleFailures.WithLabelValues(string(StepSaleAndStock)).Inc()
		if errors.Is(err, repository.ErrStockConflict) {
			c.logger.Warn("Stock moved underneath a sale, reloading", zap.String("product_id", product.ID))
			if reloadErr := c.reload(ctx); reloadErr != nil {
				c.logger.Error("Failed to reload after stock conflict", zap.Error(reloadErr))
			}
		}
		return nil, &SaleError{ProductID: product.ID, Step: StepSaleAndStock, Err: err}
	}

	newEarnings := earnings.Add(sale.Total())
	if err := c.scalars.SetEarnings(newEarnings); err != nil {
		c.metrics.SaleFailures.WithLabelValues(string(StepEarnings)).Inc()
		saleErr := &SaleError{
			ProductID: product.ID,
			Completed: []SaleStep{StepSaleAndStock},
			Step:      StepEarnings,
			Err:       err,
		}
		c.logger.Error("Sale partially applied",
			zap.String("product_id", product.ID),
			zap.String("sale_id", sale.ID),
			zap.Int("quantity", quantity),
			zap.String("unrecorded_earnings", sale.Total().String()),
			zap.String("failed_step", string(StepEarnings)),
			zap.Strings("completed_steps", []string{string(StepSaleAndStock)}),
			zap.Error(err),
		)
		if reloadErr := c.reload(ctx); reloadErr != nil {
			c.logger.Error("Failed to reload after partial sale", zap.Error(reloadErr))
		}
		c.debouncer.Trigger()
		return nil, saleErr
	}

	c.mu.Lock()
	c.sales = append([]domain.SaleRecord{sale}, c.sales...)
	c.earnings = newEarnings
	if i := slices.IndexFunc(c.products, func(p domain.Product) bool { return p.ID == product.ID }); i >= 0 {
		if remaining == 0 {
			c.products = slices.Delete(c.products, i, i+1)
		} else {
			c.products[i].Quantity = remaining
		}
	}
	c.mu.Unlock()

	c.metrics.SalesRecorded.Inc()
	c.metrics.UnitsSold.Add(float64(quantity))
	c.debouncer.Trigger()

	c.logger.Info("Sale recorded",
		zap.String("sale_id", sale.ID),
		zap.String("product_id", product.ID),
		zap.Int("quantity", quantity),
		zap.Int("remaining", remaining),
		zap.String("earnings", newEarnings.String()),
	)
	return &sale, nil
}

// RestoreFullState replaces every collection and the earnings with the
// bundle's, then reloads memory from the stores. Callers must have obtained
// the user's confirmation first.
func (c *Coordinator) RestoreFullState(ctx context.Context, bundle domain.Bundle) error {
	if err := bundle.Validate(); err != nil {
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.ready(); err != nil {
		return err
	}

	err := c.structured.ReplaceAll(ctx,
		repository.CategoriesSet(bundle.Categories),
		repository.ProductsSet(bundle.Products),
		repository.SalesSet(bundle.Sales),
	)
	if err != nil {
		c.metrics.Restores.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to restore collections: %w", err)
	}

	if err := c.scalars.SetEarnings(bundle.Earnings); err != nil {
		c.metrics.Restores.WithLabelValues("error").Inc()
		c.logger.Error("Collections restored but earnings were not", zap.Error(err))
		if reloadErr := c.reload(ctx); reloadErr != nil {
			c.logger.Error("Failed to reload after partial restore", zap.Error(reloadErr))
		}
		return fmt.Errorf("failed to restore earnings: %w", err)
	}

	if err := c.reload(ctx); err != nil {
		c.metrics.Restores.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to reload restored state: %w", err)
	}

	c.metrics.Restores.WithLabelValues("ok").Inc()
	c.debouncer.Trigger()

	c.logger.Info("Full state restored",
		zap.Int("categories", len(bundle.Categories)),
		zap.Int("products", len(bundle.Products)),
		zap.Int("sales", len(bundle.Sales)),
		zap.String("earnings", bundle.Earnings.String()),
	)
	return nil
}

// ResetEarnings clears the sales log and zeroes earnings. Categories and
// products are untouched.
func (c *Coordinator) ResetEarnings(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.ready(); err != nil {
		return err
	}

	if err := c.structured.ReplaceAll(ctx, repository.SalesSet(nil)); err != nil {
		return fmt.Errorf("failed to clear sales: %w", err)
	}

	zero := domain.AmountFromInt(0)
	if err := c.scalars.SetEarnings(zero); err != nil {
		c.logger.Error("Sales cleared but earnings were not reset", zap.Error(err))
		if reloadErr := c.reload(ctx); reloadErr != nil {
			c.logger.Error("Failed to reload after partial reset", zap.Error(reloadErr))
		}
		return fmt.Errorf("failed to reset earnings: %w", err)
	}

	c.mu.Lock()
	c.sales = []domain.SaleRecord{}
	c.earnings = zero
	c.mu.Unlock()

	c.debouncer.Trigger()
	c.logger.Info("Earnings reset")
	return nil
}

// PushSnapshot stores the current in-memory state for identity.
func (c *Coordinator) PushSnapshot(ctx context.Context, identity domain.Identity) (domain.Bundle, error) {
	if err := c.ready(); err != nil {
		return domain.Bundle{}, err
	}
	if !identity.Valid() {
		return domain.Bundle{}, ErrNoIdentity
	}

	pushed, err := c.snapshots.Push(ctx, identity, c.Bundle())
	c.metrics.SnapshotPushes.WithLabelValues("manual", result(err)).Inc()
	return pushed, err
}

// PullSnapshot returns the last bundle pushed for identity. It does not
// apply it; see RestoreFullState.
func (c *Coordinator) PullSnapshot(ctx context.Context, identity domain.Identity) (domain.Bundle, bool, error) {
	if !identity.Valid() {
		return domain.Bundle{}, false, ErrNoIdentity
	}
	return c.snapshots.Pull(ctx, identity)
}

// SignIn records identity as the owner of future automatic snapshots.
func (c *Coordinator) SignIn(_ context.Context, identity domain.Identity) error {
	if !identity.Valid() {
		return &domain.ValidationError{Field: "email", Reason: "must not be empty"}
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.isClosed() {
		return ErrClosed
	}
	if err := c.scalars.SetIdentity(identity); err != nil {
		return err
	}

	c.mu.Lock()
	c.identity = &identity
	c.mu.Unlock()

	c.logger.Info("Signed in", zap.String("email", identity.NormalizedEmail()))
	return nil
}

// SignOut forgets the identity and drops any pending automatic snapshot.
func (c *Coordinator) SignOut(_ context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.isClosed() {
		return ErrClosed
	}

	c.debouncer.Cancel()
	if err := c.scalars.ClearIdentity(); err != nil {
		return err
	}

	c.mu.Lock()
	c.identity = nil
	c.mu.Unlock()

	c.logger.Info("Signed out")
	return nil
}

// SetNavigation records where the UI is. It is persisted only once the
// inventory has loaded so a half-started session cannot overwrite it.
func (c *Coordinator) SetNavigation(_ context.Context, state domain.NavigationState) error {
	switch state.View {
	case domain.ViewHome, domain.ViewCategory, domain.ViewSales, domain.ViewSettings:
	default:
		return &domain.ValidationError{Field: "view", Reason: fmt.Sprintf("unknown view %q", state.View)}
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.isClosed() {
		return ErrClosed
	}

	if c.Loaded() {
		if err := c.scalars.SetNavigation(state); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.navigation = state
	c.mu.Unlock()
	return nil
}

// Close cancels any pending or running automatic snapshot. The coordinator
// rejects every operation afterwards.
func (c *Coordinator) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.debouncer.Stop()

	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.inflight.Wait()

	if !already {
		c.logger.Info("Inventory coordinator closed")
	}
	return nil
}

// autoPush runs when the debounce window closes.
func (c *Coordinator) autoPush() {
	c.mu.Lock()
	if !c.loaded || c.closed || c.identity == nil {
		c.mu.Unlock()
		c.logger.Debug("Skipping automatic snapshot")
		return
	}
	identity := *c.identity
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(c.baseCtx, c.pushTimeout)
	defer cancel()

	_, err := c.snapshots.Push(ctx, identity, c.Bundle())
	c.metrics.SnapshotPushes.WithLabelValues("auto", result(err)).Inc()
	if err != nil {
		c.logger.Error("Automatic snapshot failed", zap.String("email", identity.NormalizedEmail()), zap.Error(err))
	}
}

// reload replaces memory with what the stores hold. Callers hold opMu.
func (c *Coordinator) reload(ctx context.Context) error {
	contents, err := c.structured.ReadAll(ctx)
	if err != nil {
		return err
	}
	earnings := c.scalars.Earnings()
	sortSalesNewestFirst(contents.Sales)

	c.mu.Lock()
	c.categories = contents.Categories
	c.products = contents.Products
	c.sales = contents.Sales
	c.earnings = earnings
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) ready() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClosed
	}
	if !c.loaded {
		return ErrNotLoaded
	}
	return nil
}

func (c *Coordinator) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// sortSalesNewestFirst orders by timestamp descending, then id, so equal
// timestamps still sort deterministically.
func sortSalesNewestFirst(sales []domain.SaleRecord) {
	slices.SortStableFunc(sales, func(a, b domain.SaleRecord) int {
		if a.Timestamp != b.Timestamp {
			if a.Timestamp > b.Timestamp {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func upsertByID[T any](items []T, item T, id func(T) string) []T {
	key := id(item)
	if i := slices.IndexFunc(items, func(x T) bool { return id(x) == key }); i >= 0 {
		items[i] = item
		return items
	}
	return append(items, item)
}
