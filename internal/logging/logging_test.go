package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	var fromHandler *zap.Logger
	router := gin.New()
	router.Use(Middleware(zap.New(core)))
	router.GET("/ping", func(c *gin.Context) {
		fromHandler = FromContext(c)
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	id := rec.Header().Get(RequestIDHeader)
	if id == "" {
		t.Fatal("expected generated request id header")
	}
	if fromHandler == nil {
		t.Fatal("expected request logger in context")
	}

	entries := logs.FilterMessage("http.request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one access log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != id {
		t.Fatalf("request_id = %v, want %s", fields["request_id"], id)
	}
	if fields["status"] != int64(http.StatusNoContent) {
		t.Fatalf("status = %v", fields["status"])
	}
}

func TestMiddlewareKeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(zap.NewNop()))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
		t.Fatalf("request id = %q, want req-123", got)
	}
}

func TestMiddlewareLogsClientErrorsAsWarn(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	router := gin.New()
	router.Use(Middleware(zap.New(core)))
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected a single warn entry, got %#v", entries)
	}
}

func TestFromContextWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if FromContext(c) == nil {
		t.Fatal("FromContext must never return nil")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"unknown": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
