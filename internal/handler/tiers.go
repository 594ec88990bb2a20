package handler

import (
	"log/slog"
	"net/http"

	"github.com/fintrack/fintrack/internal/security/audit"
	"github.com/fintrack/fintrack/internal/service"
)

// TiersHandler serves the staff tier administration
type TiersHandler struct {
	catalog *service.TierCatalog
	audit   *audit.Logger
	logger  *slog.Logger
}

// NewTiersHandler creates a new tiers handler
func NewTiersHandler(catalog *service.TierCatalog, auditLog *audit.Logger, logger *slog.Logger) *TiersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TiersHandler{catalog: catalog, audit: auditLog, logger: logger}
}

// TierUpdateRequest carries optional tier changes
type TierUpdateRequest struct {
	Name                    *string `json:"name"`
	Description             *string `json:"description"`
	IsPremium               *bool   `json:"isPremium"`
	MaxTransactionsPerMonth *int    `json:"maxTransactionsPerMonth"`
	CanExportData           *bool   `json:"canExportData"`
	CanAdvancedAnalytics    *bool   `json:"canAdvancedAnalytics"`
}

// List handles GET /api/tiers
func (h *TiersHandler) List(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.catalog.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"tiers": tiers})
}

// Update handles PUT /api/tiers/{id}
func (h *TiersHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrReject(w, r)
	if claims == nil {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req TierUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tier, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if req.Name != nil {
		tier.Name = *req.Name
	}
	if req.Description != nil {
		tier.Description = *req.Description
	}
	if req.IsPremium != nil {
		tier.IsPremium = *req.IsPremium
	}
	if req.MaxTransactionsPerMonth != nil {
		tier.MaxTransactionsPerMonth = *req.MaxTransactionsPerMonth
	}
	if req.CanExportData != nil {
		tier.CanExportData = *req.CanExportData
	}
	if req.CanAdvancedAnalytics != nil {
		tier.CanAdvancedAnalytics = *req.CanAdvancedAnalytics
	}

	if err := h.catalog.Update(r.Context(), tier); err != nil {
		h.audit.LogTierEdit(r.Context(), claims.UserID, id, "edit", "failed")
		writeServiceError(w, h.logger, err)
		return
	}
	h.audit.LogTierEdit(r.Context(), claims.UserID, id, "edit", "success")
	writeJSON(w, h.logger, http.StatusOK, tier)
}

// Delete handles DELETE /api/tiers/{id}
func (h *TiersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrReject(w, r)
	if claims == nil {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.audit.LogTierEdit(r.Context(), claims.UserID, id, "delete", "failed")
		writeServiceError(w, h.logger, err)
		return
	}
	h.audit.LogTierEdit(r.Context(), claims.UserID, id, "delete", "success")
	w.WriteHeader(http.StatusNoContent)
}
