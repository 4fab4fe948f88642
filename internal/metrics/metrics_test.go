package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/products/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/products/1", nil))
	}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/products/:id", "200")); got != 2 {
		t.Fatalf("route counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched counter = %v, want 1", got)
	}
}

func TestHandlerExposesAuthMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	m.ObserveGate("rejected")
	m.ObserveTokensIssued("login")

	router := gin.New()
	router.GET("/metrics", m.Handler())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `market_auth_gate_total{result="rejected"} 1`) {
		t.Fatalf("gate metric missing from output:\n%s", body)
	}
	if !strings.Contains(body, `market_auth_tokens_issued_total{reason="login"} 1`) {
		t.Fatalf("token metric missing from output:\n%s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveGate("anonymous")
	m.ObserveTokensIssued("refresh")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
