package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coglex/internal/service"
)

// ExecutionHandler ejecuta funciones registradas por nombre.
type ExecutionHandler struct {
	logger   *zap.Logger
	registry *service.Registry
}

func NewExecutionHandler(logger *zap.Logger, registry *service.Registry) *ExecutionHandler {
	return &ExecutionHandler{logger: logger, registry: registry}
}

// Execute maneja POST /execute/:function.
func (h *ExecutionHandler) Execute(c *gin.Context) {
	var req struct {
		Args   []any          `json:"args"`
		Kwargs map[string]any `json:"kwargs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	out, err := h.registry.Execute(c.Request.Context(), c.Param("function"), req.Args, req.Kwargs)
	if err != nil {
		respondError(c, h.logger, "execute", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": out})
}
