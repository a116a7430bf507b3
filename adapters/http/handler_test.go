package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apihttp "github.com/artpar/bundlekeeper/adapters/http"
	"github.com/artpar/bundlekeeper/adapters/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type pinger struct{ err error }

func (p pinger) PingContext(ctx context.Context) error { return p.err }

func serve(h http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r := apihttp.NewRouter(apihttp.NewHealthHandler(nil), zerolog.Nop(), apihttp.RouterConfig{})

	for _, method := range []string{"GET", "POST"} {
		rec := serve(r, method, "/health", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s /health = %d", method, rec.Code)
		}
		var body apihttp.HealthResponse
		json.NewDecoder(rec.Body).Decode(&body)
		if body.Status != "ok" {
			t.Errorf("%s /health status = %q", method, body.Status)
		}
	}
}

func TestReadiness(t *testing.T) {
	ok := apihttp.NewRouter(apihttp.NewHealthHandler(pinger{}), zerolog.Nop(), apihttp.RouterConfig{})
	if rec := serve(ok, "GET", "/health/ready", nil); rec.Code != http.StatusOK {
		t.Errorf("ready = %d, want 200", rec.Code)
	}

	down := apihttp.NewRouter(apihttp.NewHealthHandler(pinger{err: errors.New("locked")}), zerolog.Nop(), apihttp.RouterConfig{})
	if rec := serve(down, "GET", "/health/ready", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready = %d, want 503", rec.Code)
	}
}

func TestVersion(t *testing.T) {
	r := apihttp.NewRouter(apihttp.NewHealthHandler(nil), zerolog.Nop(), apihttp.RouterConfig{Version: "1.2.3"})

	rec := serve(r, "GET", "/version", nil)
	var body apihttp.VersionResponse
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Version != "1.2.3" || body.Service != "bundlekeeper" {
		t.Errorf("version = %+v", body)
	}
}

func TestCORS(t *testing.T) {
	r := apihttp.NewRouter(apihttp.NewHealthHandler(nil), zerolog.Nop(), apihttp.RouterConfig{})

	rec := serve(r, "OPTIONS", "/api/status", map[string]string{
		"Origin":                         "http://dashboard.local",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "X-API-Key",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "X-API-Key" {
		t.Errorf("allow headers = %q", got)
	}

	rec = serve(r, "GET", "/health", nil)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin without Origin header = %q", got)
	}
}

func TestAdminMountedUnderAPI(t *testing.T) {
	admin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r := apihttp.NewRouter(apihttp.NewHealthHandler(nil), zerolog.Nop(), apihttp.RouterConfig{AdminHandler: admin})

	if rec := serve(r, "GET", "/api/status", nil); rec.Code != http.StatusTeapot {
		t.Errorf("/api/status = %d, want admin handler", rec.Code)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	r := apihttp.NewRouter(apihttp.NewHealthHandler(nil), zerolog.Nop(), apihttp.RouterConfig{
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	serve(r, "GET", "/version", nil)
	serve(r, "GET", "/health", nil)

	rec := serve(r, "GET", "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	out := rec.Body.String()
	if !strings.Contains(out, `bundlekeeper_requests_total{method="GET",path="/version",status="2xx"} 1`) {
		t.Errorf("request counter missing:\n%s", out)
	}
	if strings.Contains(out, `path="/health"`) {
		t.Error("health checks must not be counted")
	}
}
