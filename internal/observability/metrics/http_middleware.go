package metrics

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fintrack/fintrack/internal/domain"
)

// Recorder instruments routes, skipping paths under the ignored prefixes
type Recorder struct {
	ignored []string
}

// NewRecorder creates a recorder that ignores the given path prefixes
func NewRecorder(ignoredPrefixes []string) *Recorder {
	var cleaned []string
	for _, p := range ignoredPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &Recorder{ignored: cleaned}
}

func (rec *Recorder) shouldTrack(path string) bool {
	for _, prefix := range rec.ignored {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// InstrumentRoute wraps h so requests are recorded under the route pattern rather than the raw path
func (rec *Recorder) InstrumentRoute(pattern string, next http.Handler) http.Handler {
	label := pattern
	if i := strings.IndexByte(label, ' '); i >= 0 {
		label = label[i+1:]
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rec.shouldTrack(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		ObserveHTTPRequest(r.Method, label, strconv.Itoa(ww.status), time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack lets websocket upgrades pass through instrumented routes
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// StatsSource produces the client statistics published before each scrape
type StatsSource interface {
	Snapshot(ctx context.Context) (domain.ClientStatistics, error)
}

// SessionCounter reports the number of live sessions
type SessionCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// Handler refreshes the business gauges and then serves the Prometheus exposition.
// A failing source leaves its gauges at their previous values.
func Handler(stats StatsSource, sessions SessionCounter, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	exposition := promhttp.Handler()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if stats != nil {
			snapshot, err := stats.Snapshot(r.Context())
			if err != nil {
				logger.Warn("failed to refresh client gauges", slog.String("error", err.Error()))
			} else {
				SetClientStatistics(snapshot)
			}
		}
		if sessions != nil {
			n, err := sessions.CountActive(r.Context())
			if err != nil {
				logger.Warn("failed to count sessions", slog.String("error", err.Error()))
			} else {
				SetActiveSessions(n)
			}
		}
		exposition.ServeHTTP(w, r)
	})
}
