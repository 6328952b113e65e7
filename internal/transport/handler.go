// Package transport exposes the inventory coordinator over HTTP.
package transport

import (
	"errors"
	"net/http"
	"time"

	"shopledger/internal/domain"
	"shopledger/internal/middleware"
	"shopledger/internal/repository"
	"shopledger/internal/service"
	"shopledger/internal/snapshot"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Handler serves the inventory API.
type Handler struct {
	svc    service.InventoryService
	logger *zap.Logger
	now    func() time.Time
}

func NewHandler(svc service.InventoryService, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger, now: time.Now}
}

// RegisterRoutes mounts every /api route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", h.ListCategories)
		r.Put("/categories/{id}", h.PutCategory)

		r.Get("/products", h.ListProducts)
		r.Get("/products/barcode/{code}", h.FindByBarcode)
		r.Put("/products/{id}", h.PutProduct)
		r.Delete("/products/{id}", h.DeleteProduct)

		r.Get("/sales", h.ListSales)
		r.Post("/sales", h.RecordSale)
		r.Get("/sales.csv", h.ExportSalesCSV)

		r.Get("/earnings", h.GetEarnings)
		r.Post("/earnings/reset", h.ResetEarnings)
		r.Get("/inventory/value", h.GetInventoryValue)

		r.Get("/navigation", h.GetNavigation)
		r.Put("/navigation", h.PutNavigation)

		r.Get("/session", h.GetSession)
		r.Post("/session", h.SignIn)
		r.Delete("/session", h.SignOut)

		r.Post("/sync/push", h.PushSnapshot)
		r.Post("/sync/pull", h.PullSnapshot)
		r.Get("/export", h.ExportBackup)
		r.Post("/import", h.ImportBackup)
	})
}

// confirmed reports whether the caller acknowledged a destructive call.
// Otherwise it answers 428 and the handler must stop.
func confirmed(w http.ResponseWriter, r *http.Request) bool {
	if cast.ToBool(r.URL.Query().Get("confirm")) {
		return true
	}
	middleware.RespondWithErrorDetails(w, http.StatusPreconditionRequired, "confirmation_required",
		"this replaces stored data; repeat the request with confirm=true", nil)
	return false
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := middleware.DecodeAndValidate(w, r, v)
	if err == nil {
		return true
	}
	if fields := middleware.FormatValidationErrors(err); len(fields) > 0 {
		middleware.RespondWithValidationErrors(w, fields)
		return false
	}
	h.logger.Debug("Rejected request body", zap.String("path", r.URL.Path), zap.Error(err))
	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
	return false
}

// respondError maps coordinator and store errors to HTTP answers.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		saleErr    *service.SaleError
	)

	switch {
	case errors.As(err, &validation):
		middleware.RespondWithValidationErrors(w, []middleware.FieldError{{Field: validation.Field, Message: validation.Reason}})
	case errors.Is(err, service.ErrNotLoaded):
		middleware.RespondWithErrorDetails(w, http.StatusServiceUnavailable, "not_loaded", "inventory is still loading", nil)
	case errors.Is(err, service.ErrClosed):
		middleware.RespondWithErrorDetails(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down", nil)
	case errors.Is(err, service.ErrNoIdentity):
		middleware.RespondWithErrorDetails(w, http.StatusConflict, "no_identity", "sign in before syncing", nil)
	case errors.Is(err, repository.ErrStockConflict):
		middleware.RespondWithErrorDetails(w, http.StatusConflict, "stock_conflict", "stock changed, reload and retry", nil)
	case errors.Is(err, snapshot.ErrCorruptBundle):
		middleware.RespondWithErrorDetails(w, http.StatusBadGateway, "corrupt_snapshot", "stored snapshot cannot be read", nil)
	case errors.As(err, &saleErr) && saleErr.Partial():
		completed := make([]string, len(saleErr.Completed))
		for i, s := range saleErr.Completed {
			completed[i] = string(s)
		}
		middleware.RespondWithErrorDetails(w, http.StatusInternalServerError, "sale_partially_applied",
			"sale was only partly saved", map[string]any{
				"productId":      saleErr.ProductID,
				"failedStep":     string(saleErr.Step),
				"completedSteps": completed,
			})
	default:
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
