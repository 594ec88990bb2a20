package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/security/audit"
	"github.com/fintrack/fintrack/internal/service"
)

// ClientsHandler serves the staff client administration
type ClientsHandler struct {
	clients *service.ClientService
	audit   *audit.Logger
	logger  *slog.Logger
}

// NewClientsHandler creates a new clients handler
func NewClientsHandler(clients *service.ClientService, auditLog *audit.Logger, logger *slog.Logger) *ClientsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientsHandler{clients: clients, audit: auditLog, logger: logger}
}

// ClientListResponse is one page of clients
type ClientListResponse struct {
	Clients    []*ClientResponse `json:"clients"`
	Page       int               `json:"page"`
	TotalCount int               `json:"totalCount"`
	TotalPages int               `json:"totalPages"`
}

// List handles GET /api/clients?q=&tier_id=&is_active=&city=&page=
func (h *ClientsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ClientFilter{
		Query: q.Get("q"),
		City:  q.Get("city"),
	}

	if v := q.Get("tier_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid tier_id")
			return
		}
		filter.TierID = id
	}
	if v := q.Get("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid is_active")
			return
		}
		filter.IsActive = &active
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		filter.Page = page
	}

	page, err := h.clients.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := ClientListResponse{
		Clients:    make([]*ClientResponse, 0, len(page.Clients)),
		Page:       page.Page,
		TotalCount: page.TotalCount,
		TotalPages: page.TotalPages,
	}
	for _, c := range page.Clients {
		resp.Clients = append(resp.Clients, newClientResponse(c))
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// Get handles GET /api/clients/{id}
func (h *ClientsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	client, err := h.clients.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, newClientResponse(client))
}

// Update handles PUT /api/clients/{id}
func (h *ClientsHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrReject(w, r)
	if claims == nil {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ClientPayload
	if !decodeJSON(w, r, &req) {
		return
	}
	update, err := req.toUpdate()
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	client, err := h.clients.Update(r.Context(), id, update)
	if err != nil {
		h.audit.LogClientEdit(r.Context(), claims.UserID, id, "failed")
		writeServiceError(w, h.logger, err)
		return
	}

	h.audit.LogClientEdit(r.Context(), claims.UserID, id, "success")
	if update.TierID != nil {
		h.audit.LogTierChange(r.Context(), claims.UserID, id, client.Tier.Name, "success")
	}
	writeJSON(w, h.logger, http.StatusOK, newClientResponse(client))
}
