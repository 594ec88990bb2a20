package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fintrack/fintrack/internal/domain"
)

type fakeStats struct {
	stats domain.ClientStatistics
	err   error
	calls int
}

func (f *fakeStats) Snapshot(ctx context.Context) (domain.ClientStatistics, error) {
	f.calls++
	return f.stats, f.err
}

type fakeSessions int

func (f fakeSessions) CountActive(ctx context.Context) (int, error) { return int(f), nil }

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("scrape status %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	return string(body)
}

func TestHandlerRefreshesGaugesBeforeScrape(t *testing.T) {
	src := &fakeStats{stats: domain.ClientStatistics{Total: 5, Active: 4, Premium: 2, Basic: 3}}
	h := Handler(src, fakeSessions(7), nil)

	body := scrape(t, h)
	for _, want := range []string{
		"fintrack_active_clients 4",
		"fintrack_premium_clients 2",
		"fintrack_basic_clients 3",
		"fintrack_active_sessions 7",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in exposition", want)
		}
	}

	src.stats = domain.ClientStatistics{Total: 5, Active: 4, Premium: 3, Basic: 2}
	body = scrape(t, h)
	if !strings.Contains(body, "fintrack_premium_clients 3") {
		t.Fatalf("gauges should reflect the latest snapshot")
	}
	if src.calls != 2 {
		t.Fatalf("expected one snapshot per scrape, got %d", src.calls)
	}
}

func TestHandlerServesWhenSnapshotFails(t *testing.T) {
	h := Handler(&fakeStats{err: errors.New("db down")}, nil, nil)
	body := scrape(t, h)
	if !strings.Contains(body, "fintrack_active_clients") {
		t.Fatalf("exposition should still list the gauge")
	}
}

func TestInstrumentRouteUsesPatternLabel(t *testing.T) {
	rec := NewRecorder([]string{"/static/", " "})
	h := rec.InstrumentRoute("GET /api/clients/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/clients/42", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status not propagated: %d", rr.Code)
	}

	body := scrape(t, Handler(nil, nil, nil))
	if !strings.Contains(body, `fintrack_request_total{method="GET",path="/api/clients/{id}",status_code="418"} 1`) {
		t.Fatalf("request counter missing pattern label")
	}
	if strings.Contains(body, `path="/api/clients/42"`) {
		t.Fatalf("raw path must not be used as label")
	}
}

func TestIgnoredPrefixesAreNotRecorded(t *testing.T) {
	rec := NewRecorder([]string{"/healthz"})
	h := rec.InstrumentRoute("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	body := scrape(t, Handler(nil, nil, nil))
	if strings.Contains(body, `path="/healthz"`) {
		t.Fatalf("ignored path was recorded")
	}
}
