package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/payroll-access/internal/transport/http/middleware"
	"github.com/arklim/payroll-access/internal/usecase"
)

// PasswordPolicy validates and commits credential changes.
type PasswordPolicy interface {
	ChangePassword(ctx context.Context, input usecase.ChangePasswordInput) (usecase.ChangePasswordResult, error)
	ValidateCandidate(ctx context.Context, userID, candidate string) (usecase.PasswordCheck, error)
	CanChange(ctx context.Context, userID string) (usecase.AgeCheck, error)
}

// PasswordHandler manages password lifecycle endpoints.
type PasswordHandler struct {
	policy PasswordPolicy
}

// NewPasswordHandler constructs a PasswordHandler.
func NewPasswordHandler(policy PasswordPolicy) *PasswordHandler {
	return &PasswordHandler{policy: policy}
}

// RegisterSelfRoutes binds the caller's own password routes. changeMiddlewares
// run ahead of the change handler only.
func (h *PasswordHandler) RegisterSelfRoutes(r *gin.RouterGroup, changeMiddlewares ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{}, changeMiddlewares...)
	chain = append(chain, h.ChangePassword)
	r.POST("/password", chain...)
	r.POST("/password/validate", h.ValidatePassword)
	r.GET("/password/age", h.PasswordAge)
}

// ChangePassword godoc
// @Summary Change password
// @Description Verifies the current password and applies age, complexity and reuse checks.
// @Tags Password
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body PasswordChangeRequest true "Password change payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ValidationErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/me/password [post]
func (h *PasswordHandler) ChangePassword(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password change payload"))
		return
	}

	_, err := h.policy.ChangePassword(c.Request.Context(), usecase.ChangePasswordInput{
		UserID:          userID,
		ActorID:         userID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		respondError(c, err, "user not found")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated"})
}

// ResetPassword sets a new password for another user without the current one.
func (h *PasswordHandler) ResetPassword(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password reset payload"))
		return
	}

	_, err := h.policy.ChangePassword(c.Request.Context(), usecase.ChangePasswordInput{
		UserID:      c.Param("id"),
		ActorID:     actorID,
		NewPassword: req.NewPassword,
		SkipCurrent: true,
	})
	if err != nil {
		respondError(c, err, "user not found")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password reset"})
}

// ValidatePassword godoc
// @Summary Dry-run password validation
// @Description Reports every policy violation of a candidate without changing the password.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordValidateRequest true "Candidate password"
// @Success 200 {object} PasswordCheckResponse
// @Router /api/v1/me/password/validate [post]
func (h *PasswordHandler) ValidatePassword(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password payload"))
		return
	}

	check, err := h.policy.ValidateCandidate(c.Request.Context(), userID, req.Password)
	if err != nil {
		respondError(c, err, "user not found")
		return
	}

	c.JSON(http.StatusOK, PasswordCheckResponse{Valid: check.Valid, Errors: nonNilErrors(check.Errors)})
}

// PasswordAge reports whether the caller may change the password now.
func (h *PasswordHandler) PasswordAge(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	age, err := h.policy.CanChange(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "user not found")
		return
	}

	c.JSON(http.StatusOK, PasswordAgeResponse{CanChange: age.Allowed, HoursRemaining: age.HoursRemaining})
}
