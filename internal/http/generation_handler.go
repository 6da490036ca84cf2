package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coglex/internal/llm"
	"coglex/internal/service"
)

// GenerationHandler expone conversaciones con el LLM.
type GenerationHandler struct {
	logger     *zap.Logger
	generation *service.GenerationService
}

func NewGenerationHandler(logger *zap.Logger, generation *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{logger: logger, generation: generation}
}

// Converse maneja POST /converse. contents acepta strings o {role, content}.
func (h *GenerationHandler) Converse(c *gin.Context) {
	var req struct {
		Contents []json.RawMessage `json:"contents" binding:"required"`
		System   string            `json:"system"`
		Model    string            `json:"model"`
		Key      string            `json:"key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	messages, ok := parseContents(req.Contents)
	if !ok || len(messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contents"})
		return
	}

	out, err := h.generation.Converse(c.Request.Context(), llm.ConverseInput{
		Messages: messages,
		System:   req.System,
		Model:    req.Model,
		APIKey:   req.Key,
	})
	if err != nil {
		respondError(c, h.logger, "converse", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": out})
}

func parseContents(raw []json.RawMessage) ([]llm.Message, bool) {
	out := make([]llm.Message, 0, len(raw))
	for _, item := range raw {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			out = append(out, llm.Message{Role: "user", Content: text})
			continue
		}
		var msg llm.Message
		if err := json.Unmarshal(item, &msg); err != nil || msg.Content == "" {
			return nil, false
		}
		out = append(out, msg)
	}
	return out, true
}
