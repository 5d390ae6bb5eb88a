package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/arklim/payroll-access/internal/infra/logger"
)

func TestEnrichContextPropagatesIdentifiers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seen string
	router := gin.New()
	router.Use(EnrichContext())
	router.GET("/", func(c *gin.Context) {
		seen, _ = c.Request.Context().Value(logger.RequestIDKey{}).(string)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Header().Get(RequestIDHeader) != "req-42" {
		t.Fatalf("expected request id echoed, got %q", rr.Header().Get(RequestIDHeader))
	}
	if rr.Header().Get(TraceIDHeader) == "" {
		t.Fatalf("expected generated trace id")
	}
	if seen != "req-42" {
		t.Fatalf("expected request id in request context, got %q", seen)
	}
}
