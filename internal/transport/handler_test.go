package transport

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shopledger/internal/config"
	"shopledger/internal/database"
	"shopledger/internal/domain"
	"shopledger/internal/kvstore"
	"shopledger/internal/middleware"
	"shopledger/internal/repository"
	"shopledger/internal/service"
	"shopledger/internal/snapshot"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type testAPI struct {
	router http.Handler
	coord  *service.Coordinator
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()
	dir := t.TempDir()

	db, err := database.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "shop.db")}, logger)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	kv, err := kvstore.Open(filepath.Join(dir, "scalars.db"), logger)
	if err != nil {
		t.Fatalf("Failed to open scalar store: %v", err)
	}
	snapshots := snapshot.NewService(snapshot.NewLocalBackend(kv), snapshot.Options{KeyPrefix: kvstore.SnapshotKeyPrefix}, logger)

	coord := service.NewCoordinator(repository.NewStore(db.DB(), db.Driver(), logger), kv, snapshots, logger, service.Options{})
	t.Cleanup(func() {
		coord.Close()
		kv.Close()
		db.Close()
	})
	if err := coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	h := NewHandler(coord, logger)
	h.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return &testAPI{router: r, coord: coord}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[middleware.ErrorResponse](t, w).Error.Code
}

func seedWidget(t *testing.T, api *testAPI) {
	t.Helper()
	w := api.do(t, http.MethodPut, "/api/products/p1", ProductRequest{
		Name: "Widget", Price: "100/80", Quantity: 5, CategoryID: "c1", Barcode: "111",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("seeding product failed: %d %s", w.Code, w.Body.String())
	}
}

func TestSaleFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	seedWidget(t, api)

	w := api.do(t, http.MethodPost, "/api/sales", SaleRequest{ProductID: "p1", Quantity: 2, UnitPrice: "100"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d %s", w.Code, w.Body.String())
	}
	sale := decodeBody[domain.SaleRecord](t, w)
	if sale.Quantity != 2 || sale.ProductName != "Widget" {
		t.Errorf("unexpected sale %+v", sale)
	}

	products := decodeBody[[]domain.Product](t, api.do(t, http.MethodGet, "/api/products", nil))
	if len(products) != 1 || products[0].Quantity != 3 {
		t.Errorf("Expected quantity 3, got %+v", products)
	}

	earnings := decodeBody[EarningsResponse](t, api.do(t, http.MethodGet, "/api/earnings", nil))
	if !earnings.Earnings.Equal(domain.AmountFromInt(200)) || earnings.Drift {
		t.Errorf("unexpected earnings %+v", earnings)
	}

	// Wholesale price is used when asked for and no explicit price is given.
	w = api.do(t, http.MethodPost, "/api/sales", SaleRequest{ProductID: "p1", Quantity: 3, Wholesale: true})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d %s", w.Code, w.Body.String())
	}
	if got := decodeBody[domain.SaleRecord](t, w).SoldAtPrice; !got.Equal(domain.AmountFromInt(80)) {
		t.Errorf("Expected wholesale price 80, got %s", got)
	}
	if len(api.coord.Products()) != 0 {
		t.Error("sold-out product should be removed")
	}

	sales := decodeBody[[]domain.SaleRecord](t, api.do(t, http.MethodGet, "/api/sales?limit=1", nil))
	if len(sales) != 1 || sales[0].Quantity != 3 {
		t.Errorf("Expected only the newest sale, got %+v", sales)
	}
}

func TestRecordSaleValidationAndUnknownProduct(t *testing.T) {
	api := newTestAPI(t)
	seedWidget(t, api)

	w := api.do(t, http.MethodPost, "/api/sales", SaleRequest{ProductID: "p1", Quantity: 0})
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "validation_failed" {
		t.Errorf("Expected validation failure, got %d %s", w.Code, w.Body.String())
	}

	w = api.do(t, http.MethodPost, "/api/sales", SaleRequest{ProductID: "p1", Quantity: 1, UnitPrice: "-5"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative price, got %d", w.Code)
	}

	w = api.do(t, http.MethodPost, "/api/sales", SaleRequest{ProductID: "ghost", Quantity: 1})
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for unknown product, got %d", w.Code)
	}

	w = api.do(t, http.MethodPost, "/api/sales", `{"productId":`)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "bad_request" {
		t.Errorf("Expected bad_request for malformed body, got %d %s", w.Code, w.Body.String())
	}
}

func TestProductEndpoints(t *testing.T) {
	api := newTestAPI(t)
	seedWidget(t, api)
	api.do(t, http.MethodPut, "/api/products/p2", ProductRequest{Name: "apple", Price: "2", Quantity: 4, CategoryID: "c2"})

	w := api.do(t, http.MethodPut, "/api/products/p3", ProductRequest{Name: "Bad", Price: "abc", Quantity: 1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unparseable price, got %d", w.Code)
	}

	products := decodeBody[[]domain.Product](t, api.do(t, http.MethodGet, "/api/products?order=desc", nil))
	if len(products) != 2 || products[0].ID != "p1" {
		t.Errorf("Expected Widget first in descending order, got %+v", products)
	}
	products = decodeBody[[]domain.Product](t, api.do(t, http.MethodGet, "/api/products?category=c2&q=APP", nil))
	if len(products) != 1 || products[0].ID != "p2" {
		t.Errorf("Expected apple only, got %+v", products)
	}

	w = api.do(t, http.MethodGet, "/api/products/barcode/111", nil)
	if w.Code != http.StatusOK || decodeBody[domain.Product](t, w).ID != "p1" {
		t.Errorf("barcode lookup failed: %d %s", w.Code, w.Body.String())
	}
	if w := api.do(t, http.MethodGet, "/api/products/barcode/999", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown barcode, got %d", w.Code)
	}

	value := decodeBody[InventoryValueResponse](t, api.do(t, http.MethodGet, "/api/inventory/value", nil))
	if !value.TotalValue.Equal(domain.AmountFromInt(508)) || value.Products != 2 {
		t.Errorf("unexpected inventory value %+v", value)
	}

	for i := 0; i < 2; i++ {
		if w := api.do(t, http.MethodDelete, "/api/products/p1", nil); w.Code != http.StatusNoContent {
			t.Errorf("delete attempt %d: expected 204, got %d", i+1, w.Code)
		}
	}
}

func TestCategoriesAndNavigation(t *testing.T) {
	api := newTestAPI(t)

	if w := api.do(t, http.MethodPut, "/api/categories/c1", CategoryRequest{Name: "Tools"}); w.Code != http.StatusOK {
		t.Fatalf("PutCategory failed: %d %s", w.Code, w.Body.String())
	}
	if w := api.do(t, http.MethodPut, "/api/categories/c1", CategoryRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for nameless category, got %d", w.Code)
	}
	categories := decodeBody[[]domain.Category](t, api.do(t, http.MethodGet, "/api/categories", nil))
	if len(categories) != 1 || categories[0].Name != "Tools" {
		t.Errorf("unexpected categories %+v", categories)
	}

	w := api.do(t, http.MethodPut, "/api/navigation", NavigationRequest{View: "category", SelectedCategoryID: "c1"})
	if w.Code != http.StatusOK {
		t.Fatalf("PutNavigation failed: %d %s", w.Code, w.Body.String())
	}
	nav := decodeBody[domain.NavigationState](t, api.do(t, http.MethodGet, "/api/navigation", nil))
	if nav.View != domain.ViewCategory || nav.SelectedCategoryID != "c1" {
		t.Errorf("unexpected navigation %+v", nav)
	}
	if w := api.do(t, http.MethodPut, "/api/navigation", NavigationRequest{View: "checkout"}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown view, got %d", w.Code)
	}
}

func TestDestructiveCallsNeedConfirmation(t *testing.T) {
	api := newTestAPI(t)
	seedWidget(t, api)
	api.do(t, http.MethodPost, "/api/sales", SaleRequest{ProductID: "p1", Quantity: 1, UnitPrice: "10"})

	for _, path := range []string{"/api/earnings/reset", "/api/import", "/api/sync/pull?apply=true"} {
		w := api.do(t, http.MethodPost, path, "{}")
		if w.Code != http.StatusPreconditionRequired || errorCode(t, w) != "confirmation_required" {
			t.Errorf("%s: expected 428, got %d %s", path, w.Code, w.Body.String())
		}
	}
	if len(api.coord.Sales()) != 1 {
		t.Fatal("unconfirmed calls must not change state")
	}

	if w := api.do(t, http.MethodPost, "/api/earnings/reset?confirm=true", nil); w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	if len(api.coord.Sales()) != 0 || !api.coord.Earnings().IsZero() {
		t.Error("reset did not clear the ledger")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	source := newTestAPI(t)
	seedWidget(t, source)
	source.do(t, http.MethodPost, "/api/sales", SaleRequest{ProductID: "p1", Quantity: 2, UnitPrice: "100"})

	w := source.do(t, http.MethodGet, "/api/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export failed: %d", w.Code)
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "inventory-backup-2024-05-01.json") {
		t.Errorf("unexpected Content-Disposition %q", got)
	}

	target := newTestAPI(t)
	w = target.do(t, http.MethodPost, "/api/import?confirm=true", w.Body.String())
	if w.Code != http.StatusOK {
		t.Fatalf("import failed: %d %s", w.Code, w.Body.String())
	}
	summary := decodeBody[SyncSummary](t, w)
	if summary.Products != 1 || summary.Sales != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if p := target.coord.Products(); len(p) != 1 || p[0].Quantity != 3 {
		t.Errorf("import did not restore products: %+v", p)
	}
	if !target.coord.Earnings().Equal(domain.AmountFromInt(200)) {
		t.Errorf("import did not restore earnings: %s", target.coord.Earnings())
	}

	w = target.do(t, http.MethodPost, "/api/import?confirm=true", `{"products":[{"id":"x","quantity":-1}]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an invalid backup, got %d", w.Code)
	}
}

func TestSessionAndSync(t *testing.T) {
	api := newTestAPI(t)
	seedWidget(t, api)

	if w := api.do(t, http.MethodPost, "/api/sync/push", nil); w.Code != http.StatusConflict || errorCode(t, w) != "no_identity" {
		t.Errorf("Expected no_identity before sign in, got %d %s", w.Code, w.Body.String())
	}
	if w := api.do(t, http.MethodGet, "/api/session", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without a session, got %d", w.Code)
	}
	if w := api.do(t, http.MethodPost, "/api/session", SessionRequest{Email: "not-an-email"}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad email, got %d", w.Code)
	}

	if w := api.do(t, http.MethodPost, "/api/session", SessionRequest{Email: "owner@shop.test", Name: "Owner"}); w.Code != http.StatusOK {
		t.Fatalf("sign in failed: %d %s", w.Code, w.Body.String())
	}
	if w := api.do(t, http.MethodPost, "/api/sync/pull", nil); w.Code != http.StatusNotFound || errorCode(t, w) != "no_snapshot" {
		t.Errorf("Expected no_snapshot before any push, got %d %s", w.Code, w.Body.String())
	}

	w := api.do(t, http.MethodPost, "/api/sync/push", nil)
	if w.Code != http.StatusOK || decodeBody[SyncSummary](t, w).Products != 1 {
		t.Fatalf("push failed: %d %s", w.Code, w.Body.String())
	}

	if w := api.do(t, http.MethodDelete, "/api/products/p1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete failed: %d", w.Code)
	}
	pulled := decodeBody[domain.Bundle](t, api.do(t, http.MethodPost, "/api/sync/pull", nil))
	if len(pulled.Products) != 1 || len(api.coord.Products()) != 0 {
		t.Fatal("a plain pull must not change local state")
	}

	w = api.do(t, http.MethodPost, "/api/sync/pull?apply=true&confirm=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("apply failed: %d %s", w.Code, w.Body.String())
	}
	if len(api.coord.Products()) != 1 {
		t.Error("applying the snapshot should bring the product back")
	}

	if w := api.do(t, http.MethodDelete, "/api/session", nil); w.Code != http.StatusNoContent {
		t.Errorf("sign out failed: %d", w.Code)
	}
}

func TestSalesCSV(t *testing.T) {
	api := newTestAPI(t)
	seedWidget(t, api)
	api.do(t, http.MethodPost, "/api/sales", SaleRequest{ProductID: "p1", Quantity: 2, UnitPrice: "100"})

	w := api.do(t, http.MethodGet, "/api/sales.csv", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected response %d %v", w.Code, w.Header())
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[1], ",p1,Widget,2,100,200") {
		t.Errorf("unexpected csv %q", w.Body.String())
	}
}

func TestNotLoadedMapsTo503(t *testing.T) {
	logger := zap.NewNop()
	dir := t.TempDir()
	db, err := database.New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "shop.db")}, logger)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	kv, err := kvstore.Open(filepath.Join(dir, "scalars.db"), logger)
	if err != nil {
		t.Fatalf("Failed to open scalar store: %v", err)
	}
	defer kv.Close()

	coord := service.NewCoordinator(repository.NewStore(db.DB(), db.Driver(), logger), kv,
		snapshot.NewService(snapshot.NewLocalBackend(kv), snapshot.Options{}, logger), logger, service.Options{})
	defer coord.Close()

	r := chi.NewRouter()
	NewHandler(coord, logger).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/products/p1", nil))
	if w.Code != http.StatusServiceUnavailable || errorCode(t, w) != "not_loaded" {
		t.Errorf("Expected 503 not_loaded, got %d %s", w.Code, w.Body.String())
	}
}
