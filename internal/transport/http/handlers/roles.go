package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/transport/http/middleware"
)

// RoleManager reads the role catalog and mutates role assignments.
type RoleManager interface {
	ListRoles(ctx context.Context) ([]domain.Role, error)
	GetUserRoles(ctx context.Context, userID string) ([]domain.Role, error)
	AssignRole(ctx context.Context, actorID, userID, roleID string) error
	RemoveRole(ctx context.Context, actorID, userID, roleID string) error
	ReplaceUserRoles(ctx context.Context, actorID, userID string, roleIDs []string) error
	DeleteRole(ctx context.Context, actorID, roleID string) error
}

type RoleHandler struct {
	roles RoleManager
}

func NewRoleHandler(roles RoleManager) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// ListRoles godoc
// @Summary List roles
// @Tags Roles
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} RoleListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roles.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, RoleListResponse{Roles: newRolePayloads(roles)})
}

// GetUserRoles godoc
// @Summary List a user's active roles
// @Tags Roles
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "User ID"
// @Success 200 {object} UserRolesResponse
// @Router /api/v1/users/{id}/roles [get]
func (h *RoleHandler) GetUserRoles(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	roles, err := h.roles.GetUserRoles(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "user not found")
		return
	}
	c.JSON(http.StatusOK, UserRolesResponse{UserID: userID, Roles: newRolePayloads(roles)})
}

// ReplaceUserRoles godoc
// @Summary Replace a user's active roles
// @Description The new role set takes effect on the next permission check.
// @Tags Roles
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "User ID"
// @Param request body RoleReplaceRequest true "Role IDs"
// @Success 200 {object} UserRolesResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id}/roles [put]
func (h *RoleHandler) ReplaceUserRoles(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req RoleReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	userID := strings.TrimSpace(c.Param("id"))
	if err := h.roles.ReplaceUserRoles(c.Request.Context(), actorID, userID, req.RoleIDs); err != nil {
		respondError(c, err, "user not found")
		return
	}
	h.GetUserRoles(c)
}

// AssignRole adds a single role to the user.
func (h *RoleHandler) AssignRole(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req RoleAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	userID := strings.TrimSpace(c.Param("id"))
	if err := h.roles.AssignRole(c.Request.Context(), actorID, userID, strings.TrimSpace(req.RoleID)); err != nil {
		respondError(c, err, "user not found")
		return
	}
	h.GetUserRoles(c)
}

// RemoveRole deactivates one assignment.
func (h *RoleHandler) RemoveRole(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.roles.RemoveRole(c.Request.Context(), actorID, c.Param("id"), c.Param("roleID")); err != nil {
		respondError(c, err, "user not found")
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteRole removes a non-system role from the catalog.
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.roles.DeleteRole(c.Request.Context(), actorID, c.Param("roleID")); err != nil {
		respondError(c, err, "role not found")
		return
	}
	c.Status(http.StatusNoContent)
}
