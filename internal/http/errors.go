package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coglex/internal/llm"
	"coglex/internal/repository"
	"coglex/internal/service"
)

// respondError traduce los errores esperados de los servicios a status fijos.
// Cualquier otro error se loguea y responde 500 sin detalles.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, service.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, service.ErrConflict):
		status, msg = http.StatusBadRequest, "already exists"
	case errors.Is(err, service.ErrMissingKey),
		errors.Is(err, service.ErrInvalidUpdate),
		errors.Is(err, service.ErrEmptyInput),
		errors.Is(err, service.ErrInvalidPayment),
		errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrFunctionNotFound),
		errors.Is(err, service.ErrInvalidArguments),
		errors.Is(err, service.ErrEmptyFile),
		errors.Is(err, service.ErrOAuthInvalid),
		errors.Is(err, service.ErrInvalidPassword),
		errors.Is(err, llm.ErrEmptyConversation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrRateLimited):
		status, msg = http.StatusTooManyRequests, "too many requests"
	case errors.Is(err, service.ErrFileTooLarge):
		status, msg = http.StatusRequestEntityTooLarge, "file too large"
	case errors.Is(err, service.ErrPaymentsDisabled),
		errors.Is(err, service.ErrGenerationDisabled):
		status, msg = http.StatusServiceUnavailable, "service unavailable"
	case errors.Is(err, repository.ErrUnsupported):
		status, msg = http.StatusNotImplemented, "not supported"
	}

	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
	} else {
		logger.Warn(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}
