package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/payroll-access/internal/transport/http/middleware"
)

// PermissionReader answers permission queries for the caller.
type PermissionReader interface {
	Permissions(ctx context.Context, userID string) ([]string, error)
	CheckPermission(ctx context.Context, userID, permission string) bool
}

// PermissionHandler exposes the caller's effective permissions.
type PermissionHandler struct {
	permissions PermissionReader
}

// NewPermissionHandler constructs a PermissionHandler.
func NewPermissionHandler(permissions PermissionReader) *PermissionHandler {
	return &PermissionHandler{permissions: permissions}
}

// MyPermissions godoc
// @Summary List the caller's permissions
// @Tags Permissions
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} PermissionsResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/me/permissions [get]
func (h *PermissionHandler) MyPermissions(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	names, err := h.permissions.Permissions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "")
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, PermissionsResponse{UserID: userID, Permissions: names})
}

// Check reports whether the caller holds the permission named in the query.
func (h *PermissionHandler) Check(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var query PermissionCheckQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "permission must be in resource.action form"))
		return
	}

	allowed := h.permissions.CheckPermission(c.Request.Context(), userID, query.Permission)
	c.JSON(http.StatusOK, PermissionCheckResponse{Permission: query.Permission, Allowed: allowed})
}
