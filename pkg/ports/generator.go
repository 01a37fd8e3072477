package ports

import "context"

// TextGenerator is the text-generation provider used by the summarizer.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// TextGeneratorFunc adapts a function to TextGenerator.
type TextGeneratorFunc func(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)

func (f TextGeneratorFunc) Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	return f(ctx, systemPrompt, userPrompt, maxTokens, temperature)
}
