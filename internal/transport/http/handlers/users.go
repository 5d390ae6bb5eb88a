package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/payroll-access/internal/transport/http/middleware"
	"github.com/arklim/payroll-access/internal/usecase"
)

// LockoutReader exposes the lockout state of an account.
type LockoutReader interface {
	Status(ctx context.Context, userID string) (usecase.LockoutView, error)
}

// AccountUnlocker performs administrative unlocks.
type AccountUnlocker interface {
	UnlockAccount(ctx context.Context, targetUserID, adminID string) (usecase.UnlockResult, error)
}

// UserHandler exposes account administration endpoints.
type UserHandler struct {
	lockouts LockoutReader
	unlocker AccountUnlocker
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(lockouts LockoutReader, unlocker AccountUnlocker) *UserHandler {
	return &UserHandler{lockouts: lockouts, unlocker: unlocker}
}

// LockoutStatus godoc
// @Summary Account lockout status
// @Tags Users
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "User ID"
// @Success 200 {object} LockoutStatusResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id}/lockout [get]
func (h *UserHandler) LockoutStatus(c *gin.Context) {
	view, err := h.lockouts.Status(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		respondError(c, err, "user not found")
		return
	}
	c.JSON(http.StatusOK, newLockoutStatusResponse(view))
}

// Unlock godoc
// @Summary Unlock an account
// @Description Clears the failed-attempt counter and lock window. Requires users.unlock.
// @Tags Users
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "User ID"
// @Success 200 {object} UnlockResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/users/{id}/unlock [post]
func (h *UserHandler) Unlock(c *gin.Context) {
	adminID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	targetID := strings.TrimSpace(c.Param("id"))
	result, err := h.unlocker.UnlockAccount(c.Request.Context(), targetID, adminID)
	if err != nil {
		respondError(c, err, "user not found")
		return
	}
	c.JSON(http.StatusOK, UnlockResponse{UserID: targetID, Unlocked: result.Success})
}
