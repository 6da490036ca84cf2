package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyConversation indica que no hay mensajes para enviar.
var ErrEmptyConversation = errors.New("empty conversation")

// Message es un turno de conversación en formato chat completions.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConverseInput agrupa una conversación y los overrides opcionales por request.
type ConverseInput struct {
	Messages []Message
	System   string
	Model    string
	APIKey   string
}

// Client define la interfaz para conversar con un LLM.
type Client interface {
	Converse(ctx context.Context, in ConverseInput) (string, error)
}

// HTTPClient implementa Client contra una API compatible con OpenAI (Groq por defecto).
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient construye un cliente HTTP apuntando a la API de chat completions.
func NewHTTPClient(baseURL, apiKey, model string, logger *zap.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

func (c *HTTPClient) Converse(ctx context.Context, in ConverseInput) (string, error) {
	messages := make([]Message, 0, len(in.Messages)+1)
	if system := strings.TrimSpace(in.System); system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	for _, m := range in.Messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role == "" {
			role = "user"
		}
		messages = append(messages, Message{Role: role, Content: m.Content})
	}
	if len(messages) == 0 || messages[len(messages)-1].Role == "system" {
		return "", ErrEmptyConversation
	}

	model := c.model
	if in.Model != "" {
		model = in.Model
	}
	apiKey := c.apiKey
	if in.APIKey != "" {
		apiKey = in.APIKey
	}

	bodyBytes, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("llm error status",
			zap.Int("status", resp.StatusCode),
			zap.String("model", model),
			zap.ByteString("body", respBody),
		)
		return "", fmt.Errorf("llm http error: status=%d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if cr.Error != nil {
		return "", fmt.Errorf("llm api error: %s", cr.Error.Message)
	}

	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("llm empty response")
	}

	return cr.Choices[0].Message.Content, nil
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
