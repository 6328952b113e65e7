package transport

import (
	"net/http"
	"strings"

	"shopledger/internal/domain"
	"shopledger/internal/middleware"
	"shopledger/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

type CategoryRequest struct {
	Name  string `json:"name" validate:"required"`
	Image string `json:"image"`
}

// ProductRequest carries the price as display text, "retail" or
// "retail/wholesale".
type ProductRequest struct {
	Name       string `json:"name" validate:"required"`
	Price      string `json:"price" validate:"required"`
	Quantity   int    `json:"quantity" validate:"gte=0"`
	CategoryID string `json:"categoryId"`
	Barcode    string `json:"barcode"`
	Image      string `json:"image"`
}

// SaleRequest sells at UnitPrice when given, else at the product's retail
// price, or its wholesale price when Wholesale is set and one exists.
type SaleRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	UnitPrice string `json:"unitPrice" validate:"omitempty,numeric"`
	Wholesale bool   `json:"wholesale"`
}

type NavigationRequest struct {
	View               string `json:"view" validate:"required,oneof=home category sales settings"`
	SelectedCategoryID string `json:"selectedCategoryId"`
	SearchQuery        string `json:"searchQuery"`
}

type EarningsResponse struct {
	Earnings domain.Amount `json:"earnings"`
	FromLog  domain.Amount `json:"fromLog"`
	Drift    bool          `json:"drift"`
}

type InventoryValueResponse struct {
	TotalValue domain.Amount `json:"totalValue"`
	Products   int           `json:"products"`
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, h.svc.Categories())
}

func (h *Handler) PutCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !h.decode(w, r, &req) {
		return
	}

	category := domain.Category{ID: chi.URLParam(r, "id"), Name: req.Name, Image: req.Image}
	if err := h.svc.UpsertCategory(r.Context(), category); err != nil {
		h.respondError(w, r, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, category)
}

// ListProducts filters by ?category=, ?q= and sorts by name, ?order=desc
// reversing it.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := service.ProductFilter{
		CategoryID: q.Get("category"),
		Search:     q.Get("q"),
		Descending: strings.EqualFold(q.Get("order"), "desc"),
	}
	middleware.RespondWithJSON(w, http.StatusOK, h.svc.FilteredProducts(filter))
}

func (h *Handler) FindByBarcode(w http.ResponseWriter, r *http.Request) {
	product, ok := h.svc.FindByBarcode(chi.URLParam(r, "code"))
	if !ok {
		middleware.RespondWithError(w, http.StatusNotFound, "no product with this barcode")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *Handler) PutProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	price, err := domain.ParsePrice(req.Price)
	if err != nil {
		middleware.RespondWithValidationErrors(w, []middleware.FieldError{{Field: "price", Message: err.Error()}})
		return
	}

	product := domain.Product{
		ID:         chi.URLParam(r, "id"),
		Name:       req.Name,
		Price:      price,
		Quantity:   req.Quantity,
		CategoryID: req.CategoryID,
		Barcode:    strings.TrimSpace(req.Barcode),
		Image:      req.Image,
	}
	if err := h.svc.UpsertProduct(r.Context(), product); err != nil {
		h.respondError(w, r, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSales returns the log newest first, optionally cut to ?limit=.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	sales := h.svc.Sales()
	if limit := cast.ToInt(r.URL.Query().Get("limit")); limit > 0 && limit < len(sales) {
		sales = sales[:limit]
	}
	middleware.RespondWithJSON(w, http.StatusOK, sales)
}

// RecordSale answers 201 with the sale, or 204 when the product is gone.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if !h.decode(w, r, &req) {
		return
	}

	unitPrice, ok := h.salePrice(req)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sale, err := h.svc.RecordSale(r.Context(), req.ProductID, req.Quantity, unitPrice)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if sale == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, sale)
}

// salePrice resolves the unit price of req. It reports false when the price
// comes from a product that does not exist.
func (h *Handler) salePrice(req SaleRequest) (domain.Amount, bool) {
	if req.UnitPrice != "" {
		// validated numeric
		return decimal.RequireFromString(req.UnitPrice), true
	}

	for _, p := range h.svc.Products() {
		if p.ID != req.ProductID {
			continue
		}
		if req.Wholesale && p.Price.Wholesale.Valid {
			return p.Price.Wholesale.Decimal, true
		}
		return p.Price.Retail, true
	}
	h.logger.Info("Ignoring sale of unknown product", zap.String("product_id", req.ProductID))
	return domain.Amount{}, false
}

func (h *Handler) GetEarnings(w http.ResponseWriter, r *http.Request) {
	earnings, fromLog := h.svc.Earnings(), h.svc.EarningsFromLog()
	middleware.RespondWithJSON(w, http.StatusOK, EarningsResponse{
		Earnings: earnings,
		FromLog:  fromLog,
		Drift:    !earnings.Equal(fromLog),
	})
}

func (h *Handler) ResetEarnings(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r) {
		return
	}
	if err := h.svc.ResetEarnings(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetInventoryValue(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, InventoryValueResponse{
		TotalValue: h.svc.TotalInventoryValue(),
		Products:   len(h.svc.Products()),
	})
}

func (h *Handler) GetNavigation(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, h.svc.Navigation())
}

func (h *Handler) PutNavigation(w http.ResponseWriter, r *http.Request) {
	var req NavigationRequest
	if !h.decode(w, r, &req) {
		return
	}

	state := domain.NavigationState{
		View:               domain.View(req.View),
		SelectedCategoryID: req.SelectedCategoryID,
		SearchQuery:        req.SearchQuery,
	}
	if err := h.svc.SetNavigation(r.Context(), state); err != nil {
		h.respondError(w, r, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, state)
}
