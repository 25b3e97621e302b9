package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/execution-core/pkg/models"
	"github.com/codeready-toolchain/execution-core/pkg/rbac"
	"github.com/codeready-toolchain/execution-core/pkg/store"
)

// writeError maps a domain error to the nearest HTTP status and writes a
// sanitized JSON error body.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrEmptyPlan), errors.Is(err, models.ErrUnknownStepType):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, rbac.ErrDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "rbac denied"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "resource not found"})
	case errors.Is(err, store.ErrStaleTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "resource state changed concurrently"})
	case errors.Is(err, store.ErrAlreadyExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "resource already exists"})
	default:
		slog.Error("unexpected api error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
