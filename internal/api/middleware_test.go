package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"submission-grader/internal/monitor"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "abc" || rec.Header().Get("X-Request-ID") != "abc" {
		t.Errorf("request id = %q / %q, want abc", seen, rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if seen == "" || seen == "abc" {
		t.Errorf("generated request id = %q", seen)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("got status %d, want 500", rec.Code)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := monitor.NewMetrics()
	handler := MetricsMiddleware(m, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	for _, path := range []string{"/health", "/health", "/wp-login.php", "/.env"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, m)
	for _, want := range []string{
		`grader_ops_requests_total{code="200",route="/health"} 2`,
		`grader_ops_requests_total{code="404",route="other"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s:\n%s", want, body)
		}
	}
}

func scrape(t *testing.T, m *monitor.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	NewServer("127.0.0.1:0", "/metrics", m).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestServer_PanicCountedAs500(t *testing.T) {
	m := monitor.NewMetrics()
	s := NewServer("127.0.0.1:0", "/metrics", m, Check{Name: "broken", Probe: nil})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body := scrape(t, m); !strings.Contains(body, `grader_ops_requests_total{code="500",route="/health"} 1`) {
		t.Errorf("panic not counted as 500:\n%s", body)
	}
}
