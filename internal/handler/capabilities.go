package handler

import (
	"log/slog"
	"net/http"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/service"
)

// CapabilityHandler answers feature gate checks for the caller
type CapabilityHandler struct {
	gate   *service.CapabilityGate
	logger *slog.Logger
}

// NewCapabilityHandler creates a new capability handler
func NewCapabilityHandler(gate *service.CapabilityGate, logger *slog.Logger) *CapabilityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CapabilityHandler{gate: gate, logger: logger}
}

// CapabilityResponse is the outcome of a single check
type CapabilityResponse struct {
	Capability domain.Capability `json:"capability"`
	Allowed    bool              `json:"allowed"`
	IsPremium  bool              `json:"isPremium"`
}

// ServeHTTP handles GET /api/capabilities/{capability}
func (h *CapabilityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrReject(w, r)
	if claims == nil {
		return
	}
	capability := domain.Capability(r.PathValue("capability"))

	allowed, err := h.gate.CanPerform(r.Context(), claims.UserID, capability)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	premium, err := h.gate.IsPremium(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, CapabilityResponse{
		Capability: capability,
		Allowed:    allowed,
		IsPremium:  premium,
	})
}
