// Package openai implements ports.TextGenerator on the OpenAI chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/aretw0/warmtransfer/pkg/ports"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Config struct {
	APIKey  string `envconfig:"OPENAI_API_KEY"`
	Model   string `envconfig:"OPENAI_MODEL" default:"gpt-3.5-turbo"`
	BaseURL string `envconfig:"OPENAI_BASE_URL"`
}

// Generator sends one system and one user message per call.
type Generator struct {
	client openaisdk.Client
	model  string
}

var _ ports.TextGenerator = (*Generator)(nil)

// New creates a generator. Retries are disabled: the summarizer owns the
// deadline and reports failures as degraded summaries.
func New(cfg Config) (*Generator, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is empty", domain.ErrInvalidArgument)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
	}
	if trimmed := strings.TrimRight(cfg.BaseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	return &Generator{
		client: openaisdk.NewClient(opts...),
		model:  model,
	}, nil
}

func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(g.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(systemPrompt),
			openaisdk.UserMessage(userPrompt),
		},
		Temperature: openaisdk.Float(temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(maxTokens))
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: openai: %v", domain.ErrTimeout, err)
		}
		var apiErr *openaisdk.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: openai status %d: %s", domain.ErrGateway, apiErr.StatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("%w: openai: %v", domain.ErrGateway, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", domain.ErrGateway)
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
