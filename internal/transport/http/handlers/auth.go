package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/transport/http/middleware"
	"github.com/arklim/payroll-access/internal/usecase"
)

// Authenticator runs the guarded login flow.
type Authenticator interface {
	AttemptLogin(ctx context.Context, req usecase.LoginRequest) (usecase.LoginResult, error)
}

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth Authenticator
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth Authenticator) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	chain = append(chain, h.login)
	r.POST("/login", chain...)
}

// Login godoc
// @Summary Verify login credentials
// @Description Checks the per-address throttle and the account lockout before verifying the password.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request payload"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 423 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	reqCtx := middleware.GetRequestContext(c)
	result, err := h.auth.AttemptLogin(c.Request.Context(), usecase.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		ClientIP:  reqCtx.IP,
		UserAgent: reqCtx.UserAgent,
	})

	switch {
	case result.RateLimited:
		middleware.RespondRateLimited(c, result.RateLimit)
		return
	case err != nil:
		if errors.Is(err, domain.ErrStoreUnavailable) {
			c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "service temporarily unavailable"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "internal server error"))
		return
	}

	middleware.ApplyRateLimitHeaders(c, result.RateLimit)

	switch {
	case result.Locked:
		c.JSON(http.StatusLocked, NewErrorResponse(c, domain.ErrInvalidCredentials.Error()))
	case !result.Success:
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, domain.ErrInvalidCredentials.Error()))
	default:
		c.JSON(http.StatusOK, LoginResponse{UserID: result.UserID, Authenticated: true})
	}
}
