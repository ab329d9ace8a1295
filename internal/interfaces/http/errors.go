package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/hr-requests/internal/domain/entity"
	domainwf "github.com/garyjia/hr-requests/internal/domain/workflow"
)

// statusFor maps a domain error kind to an HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrConcurrentModification),
		errors.Is(err, entity.ErrDuplicateProtocol):
		return http.StatusConflict
	case errors.Is(err, domainwf.ErrInvalidTransition),
		errors.Is(err, entity.ErrRollbackImpossible),
		errors.Is(err, domainwf.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrInvalidData),
		errors.Is(err, domainwf.ErrUnknownStep),
		errors.Is(err, domainwf.ErrInvalidWorkflow):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope. Internal errors are logged and their detail hidden.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		c.JSON(status, Response{Success: false, Error: "internal server error"})
		return
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}
