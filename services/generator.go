package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"analystbot/config"
	"analystbot/logger"
	"analystbot/models"
)

// GeneratorService produces answers through the OpenAI chat completions API
type GeneratorService struct {
	client      openai.Client
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// NewGeneratorService creates a new generator service instance
func NewGeneratorService(cfg config.OpenAIConfig) *GeneratorService {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	// Retries are handled here, not by the SDK, so the policy stays explicit:
	// one retry on transient failures, none on client errors.
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &GeneratorService{
		client:      client,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
}

// Generate sends the assembled prompt to the model and returns the answer
// text. At most one retry on transient (timeout/5xx/429) upstream errors;
// exhausted retries surface a GenerationError.
func (g *GeneratorService) Generate(ctx context.Context, messages []models.PromptMessage) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: toChatMessages(messages),
	}
	if g.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(g.maxTokens))
	}
	if g.temperature > 0 {
		params.Temperature = openai.Float(g.temperature)
	}

	text, err := g.complete(ctx, params)
	if err == nil {
		return text, nil
	}

	status := upstreamStatus(err)
	if !isTransient(status, err) || ctx.Err() != nil {
		return "", &models.GenerationError{StatusCode: status, Err: err}
	}

	logger.Warn("transient generation failure, retrying once", "status", status, "error", err)

	text, err = g.complete(ctx, params)
	if err != nil {
		return "", &models.GenerationError{StatusCode: upstreamStatus(err), Err: err}
	}
	return text, nil
}

func (g *GeneratorService) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response choices from model")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// IsAvailable checks if the generator is configured
func (g *GeneratorService) IsAvailable() bool {
	return g.apiKey != ""
}

// GetModel returns the configured model
func (g *GeneratorService) GetModel() string {
	return g.model
}

// GetStatus returns the status of the generator service
func (g *GeneratorService) GetStatus() map[string]interface{} {
	status := map[string]interface{}{
		"model":       g.model,
		"max_tokens":  g.maxTokens,
		"temperature": g.temperature,
		"timeout":     g.timeout.String(),
	}

	if g.IsAvailable() {
		status["status"] = "available"
		if len(g.apiKey) > 8 {
			status["api_key"] = g.apiKey[:4] + "..." + g.apiKey[len(g.apiKey)-4:]
		} else {
			status["api_key"] = "***"
		}
	} else {
		status["status"] = "unavailable"
		status["error"] = "OPENAI_API_KEY not set"
	}

	return status
}

func toChatMessages(messages []models.PromptMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// upstreamStatus extracts the HTTP status from an SDK error, 0 for network
// and timeout failures.
func upstreamStatus(err error) int {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode
	}
	return 0
}

// isTransient reports whether a failure is worth one retry. Client errors
// (4xx other than 429) are not: the request itself is the problem.
func isTransient(status int, err error) bool {
	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return true
	}
	if status != 0 {
		return false
	}
	// No HTTP status at all means the call never completed (timeout, reset)
	return !errors.Is(err, context.Canceled)
}
