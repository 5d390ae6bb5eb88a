package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/repository"
	"github.com/arklim/payroll-access/internal/transport/http/middleware"
	"github.com/arklim/payroll-access/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

var accessErrorCases = []ErrorCase{
	{Err: domain.ErrAuthenticationRequired, Status: http.StatusUnauthorized, Message: "authentication required"},
	{Err: domain.ErrAuthorizationDenied, Status: http.StatusForbidden, Message: "insufficient permissions"},
	{Err: domain.ErrAccountLocked, Status: http.StatusLocked, Message: domain.ErrInvalidCredentials.Error()},
	{Err: domain.ErrRateLimited, Status: http.StatusTooManyRequests, Message: "too many requests"},
	{Err: domain.ErrStoreUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable"},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
	{Err: domain.ErrSystemRole, Status: http.StatusConflict, Message: "system roles cannot be deleted"},
}

// respondError renders validation failures with every reason and maps the
// access-control taxonomy otherwise. notFound names the resource for
// repository.ErrNotFound.
func respondError(c *gin.Context, err error, notFound string) {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:   "validation failed",
			Errors:  nonNilErrors(vErr.Reasons),
			TraceID: middleware.GetTraceID(c),
		})
		return
	}

	cases := accessErrorCases
	if notFound != "" {
		cases = append([]ErrorCase{{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: notFound}}, cases...)
	}
	RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "internal server error")
}
