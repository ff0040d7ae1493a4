package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	"github.com/rl1809/store-inventory/internal/core/domain"
)

const msgInternalError = "internal error"

// httpStatus maps a service error to its response status. Anything that
// is not a domain error kind is an internal failure.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrConflict):
		return codes.AlreadyExists
	}
	return codes.Internal
}

// transferOutcome is the metric label for a finished transfer.
func transferOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrConflict):
		return "duplicate"
	}
	return "error"
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(status, ErrorResponse{Error: msgInternalError})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
