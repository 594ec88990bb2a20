package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/fintrack/fintrack/internal/domain"
)

// StatsSource produces client statistics
type StatsSource interface {
	Snapshot(ctx context.Context) (domain.ClientStatistics, error)
}

// StatsHandler handles GET /api/stats
type StatsHandler struct {
	stats  StatsSource
	logger *slog.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(stats StatsSource, logger *slog.Logger) *StatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsHandler{stats: stats, logger: logger}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.stats.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, snapshot)
}
