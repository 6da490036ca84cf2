package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"coglex/internal/llm"
)

var ErrGenerationDisabled = errors.New("generation disabled")

// GenerationService expone conversaciones con el proveedor LLM configurado.
type GenerationService struct {
	logger *zap.Logger
	client llm.Client
}

func NewGenerationService(logger *zap.Logger, client llm.Client) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{logger: logger, client: client}
}

func (s *GenerationService) Converse(ctx context.Context, in llm.ConverseInput) (string, error) {
	if s.client == nil {
		return "", ErrGenerationDisabled
	}
	if len(in.Messages) == 0 {
		return "", llm.ErrEmptyConversation
	}
	out, err := s.client.Converse(ctx, in)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyConversation) {
			return "", err
		}
		s.logger.Error("llm converse failed", zap.String("model", in.Model), zap.Error(err))
		return "", fmt.Errorf("converse: %w", err)
	}
	return out, nil
}
