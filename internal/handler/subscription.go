package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/security/audit"
	"github.com/fintrack/fintrack/internal/service"
)

// SubscriptionHandler serves plans and self-service tier changes
type SubscriptionHandler struct {
	subscriptions *service.SubscriptionService
	audit         *audit.Logger
	logger        *slog.Logger
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subscriptions *service.SubscriptionService, auditLog *audit.Logger, logger *slog.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionHandler{subscriptions: subscriptions, audit: auditLog, logger: logger}
}

// TierChangeResponse reports the client after an upgrade or downgrade
type TierChangeResponse struct {
	Client  *ClientResponse `json:"client"`
	Message string          `json:"message"`
}

// Plans handles GET /api/subscription
func (h *SubscriptionHandler) Plans(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrReject(w, r)
	if claims == nil {
		return
	}
	plans, err := h.subscriptions.Plans(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"plans": plans})
}

// Upgrade handles POST /api/subscription/upgrade
func (h *SubscriptionHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.subscriptions.Upgrade, domain.TierPremium, "subscription upgraded to Premium")
}

// Downgrade handles POST /api/subscription/downgrade
func (h *SubscriptionHandler) Downgrade(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.subscriptions.Downgrade, domain.TierStandard, "subscription downgraded")
}

type tierChange func(ctx context.Context, userID int64) (*domain.Client, bool, error)

func (h *SubscriptionHandler) change(w http.ResponseWriter, r *http.Request, apply tierChange, target, message string) {
	claims := claimsOrReject(w, r)
	if claims == nil {
		return
	}

	client, changed, err := apply(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if !changed {
		h.audit.LogTierChange(r.Context(), claims.UserID, client.ID, target, "missing_tier")
		writeError(w, http.StatusNotFound, target+" tier is not configured")
		return
	}

	h.audit.LogTierChange(r.Context(), claims.UserID, client.ID, client.Tier.Name, "success")
	writeJSON(w, h.logger, http.StatusOK, TierChangeResponse{
		Client:  newClientResponse(client),
		Message: message,
	})
}
