package routes_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/infra/config"
	httproutes "github.com/arklim/payroll-access/internal/transport/http/routes"
	"github.com/arklim/payroll-access/internal/usecase"
)

type rejectingVerifier struct{}

func (rejectingVerifier) Verify(context.Context, string) (*domain.Principal, error) {
	return nil, errors.New("rejected")
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	r := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestProtectedRoutesRequireAuthentication(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	r := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: zap.NewNop(),
		Services: httproutes.ServiceSet{
			Auth:      usecase.NewAuthService(usecase.AuthServiceDeps{}),
			Roles:     usecase.NewRoleService(nil, nil, nil, nil, nil, nil, nil),
			Passwords: &usecase.PasswordPolicyService{},
			Lockout:   &usecase.LockoutGuard{},
		},
		Verifier: rejectingVerifier{},
	})

	protected := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/me/permissions"},
		{http.MethodPost, "/api/v1/me/password"},
		{http.MethodGet, "/api/v1/me/password/age"},
		{http.MethodGet, "/api/v1/roles"},
		{http.MethodPut, "/api/v1/users/u1/roles"},
		{http.MethodDelete, "/api/v1/users/u1/roles/r1"},
		{http.MethodGet, "/api/v1/users/u1/lockout"},
		{http.MethodPost, "/api/v1/users/u1/unlock"},
		{http.MethodGet, "/api/v1/permissions/check?permission=payroll.read"},
	}
	for _, route := range protected {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(route.method, route.path, nil)
		req.Header.Set("Authorization", "Bearer forged")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", route.method, route.path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected login route to validate payload, got %d", w.Code)
	}
}
