package transport

import (
	"fmt"
	"net/http"

	"shopledger/internal/domain"
	"shopledger/internal/export"
	"shopledger/internal/middleware"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

type SessionRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// SyncSummary describes a pushed or restored bundle without its contents.
type SyncSummary struct {
	LastUpdated int64         `json:"lastUpdated"`
	Categories  int           `json:"categories"`
	Products    int           `json:"products"`
	Sales       int           `json:"sales"`
	Earnings    domain.Amount `json:"earnings"`
}

func summarize(b domain.Bundle) SyncSummary {
	return SyncSummary{
		LastUpdated: b.LastUpdated,
		Categories:  len(b.Categories),
		Products:    len(b.Products),
		Sales:       len(b.Sales),
		Earnings:    b.Earnings,
	}
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.svc.Identity()
	if !ok {
		middleware.RespondWithError(w, http.StatusNotFound, "not signed in")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, identity)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	identity := domain.Identity{Email: req.Email, Name: req.Name, Picture: req.Picture}
	if err := h.svc.SignIn(r.Context(), identity); err != nil {
		h.respondError(w, r, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, identity)
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SignOut(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PushSnapshot backs the current state up for the signed-in identity.
func (h *Handler) PushSnapshot(w http.ResponseWriter, r *http.Request) {
	identity, _ := h.svc.Identity()
	pushed, err := h.svc.PushSnapshot(r.Context(), identity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, summarize(pushed))
}

// PullSnapshot returns the signed-in identity's last snapshot. With
// apply=true it also replaces the local state, which needs confirm=true.
func (h *Handler) PullSnapshot(w http.ResponseWriter, r *http.Request) {
	apply := cast.ToBool(r.URL.Query().Get("apply"))
	if apply && !confirmed(w, r) {
		return
	}

	identity, _ := h.svc.Identity()
	bundle, found, err := h.svc.PullSnapshot(r.Context(), identity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !found {
		middleware.RespondWithErrorDetails(w, http.StatusNotFound, "no_snapshot", "no snapshot stored for this account", nil)
		return
	}

	if !apply {
		middleware.RespondWithJSON(w, http.StatusOK, bundle)
		return
	}
	if err := h.svc.RestoreFullState(r.Context(), bundle); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("Snapshot applied", zap.String("email", identity.NormalizedEmail()))
	middleware.RespondWithJSON(w, http.StatusOK, summarize(bundle))
}

// ExportBackup downloads the whole state as a JSON file.
func (h *Handler) ExportBackup(w http.ResponseWriter, r *http.Request) {
	bundle := h.svc.Bundle()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(h.now())))
	if err := export.WriteJSON(w, bundle); err != nil {
		h.logger.Error("Failed to write backup", zap.Error(err))
	}
}

// ImportBackup replaces the local state with an uploaded backup.
func (h *Handler) ImportBackup(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, middleware.MaxBodyBytes)
	bundle, err := export.ReadBundle(r.Body)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.svc.RestoreFullState(r.Context(), bundle); err != nil {
		h.respondError(w, r, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, summarize(bundle))
}

// ExportSalesCSV downloads the sales log, newest first.
func (h *Handler) ExportSalesCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sales.csv"`)
	if err := export.WriteSalesCSV(w, h.svc.Sales()); err != nil {
		h.logger.Error("Failed to write sales csv", zap.Error(err))
	}
}
