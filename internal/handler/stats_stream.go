package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// StatsStreamHandler pushes a statistics snapshot over a websocket at a fixed interval
type StatsStreamHandler struct {
	stats          StatsSource
	interval       time.Duration
	allowedOrigins []string
	logger         *slog.Logger
}

// NewStatsStreamHandler creates a new stats stream handler
func NewStatsStreamHandler(stats StatsSource, interval time.Duration, allowedOrigins []string, logger *slog.Logger) *StatsStreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatsStreamHandler{
		stats:          stats,
		interval:       interval,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

func (h *StatsStreamHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if allowed == "*" || origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws/stats
func (h *StatsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	ctx := r.Context()

	// Reader drains control frames and notices the peer going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		snapshot, err := h.stats.Snapshot(ctx)
		if err != nil {
			h.logger.Warn("stats snapshot failed", slog.String("error", err.Error()))
		} else {
			_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := ws.WriteJSON(snapshot); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Debug("stats stream closed", slog.String("error", err.Error()))
				}
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
