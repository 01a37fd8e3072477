// Package summary turns a session's recent utterances into a briefing for the
// receiving agent.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aretw0/warmtransfer/internal/logging"
	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/aretw0/warmtransfer/pkg/ports"
)

const (
	// Empty is returned, without calling the provider, when there is nothing to summarize.
	Empty = "No conversation history available for summary generation."
	// Unavailable is the placeholder callers may show when summarization failed.
	Unavailable = "Summary unavailable."

	DefaultMaxUtterances = 10
	DefaultMaxChars      = 600
	DefaultMaxTokens     = 150
	DefaultTemperature   = 0.7
	DefaultTimeout       = 15 * time.Second
)

// Gateway bounds every request to the text-generation provider.
type Gateway struct {
	gen           ports.TextGenerator
	prompts       PromptSet
	maxUtterances int
	maxChars      int
	maxTokens     int
	temperature   float64
	timeout       time.Duration
	hooks         domain.LifecycleHooks
	logger        *slog.Logger
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithMaxUtterances sets how many of the most recent utterances are summarized.
func WithMaxUtterances(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxUtterances = n
		}
	}
}

// WithMaxChars sets the character ceiling of a summary.
func WithMaxChars(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxChars = n
		}
	}
}

// WithMaxTokens sets the completion token budget passed to the provider.
func WithMaxTokens(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature passed to the provider.
func WithTemperature(t float64) Option {
	return func(g *Gateway) { g.temperature = t }
}

// WithTimeout bounds a single provider call.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithPromptSet replaces the embedded prompts.
func WithPromptSet(p PromptSet) Option {
	return func(g *Gateway) { g.prompts = p }
}

// WithHooks registers callbacks fired after each provider call.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(g *Gateway) { g.hooks = h }
}

// WithLogger configures a logger for the Gateway.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// New creates a Gateway around gen.
func New(gen ports.TextGenerator, opts ...Option) *Gateway {
	g := &Gateway{
		gen:           gen,
		prompts:       DefaultPromptSet(),
		maxUtterances: DefaultMaxUtterances,
		maxChars:      DefaultMaxChars,
		maxTokens:     DefaultMaxTokens,
		temperature:   DefaultTemperature,
		timeout:       DefaultTimeout,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Timeout returns the per-call bound.
func (g *Gateway) Timeout() time.Duration { return g.timeout }

// Summarize produces a briefing from utterances (oldest first).
// Provider failures are reported as domain.ErrGateway, deadline expiry as
// domain.ErrTimeout; provider error shapes never leak past this call.
func (g *Gateway) Summarize(ctx context.Context, utterances []string) (string, error) {
	recent := make([]string, 0, len(utterances))
	for _, u := range utterances {
		if u = strings.TrimSpace(u); u != "" {
			recent = append(recent, u)
		}
	}
	if len(recent) > g.maxUtterances {
		recent = recent[len(recent)-g.maxUtterances:]
	}
	if len(recent) == 0 {
		return Empty, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	system, user := g.prompts.Render(recent)
	start := time.Now()
	text, err := g.gen.Generate(ctx, system, user, g.maxTokens, g.temperature)
	g.hooks.EmitSummarize(ctx, &domain.SummarizeEvent{Utterances: len(recent), Duration: time.Since(start), Err: err})

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			g.logger.Warn("Summarizer timed out", "timeout", g.timeout, "utterances", len(recent))
			return "", fmt.Errorf("%w: summarizer did not answer within %s", domain.ErrTimeout, g.timeout)
		}
		g.logger.Error("Summarizer failed", "err", err, "utterances", len(recent))
		return "", fmt.Errorf("%w: summarizer: %v", domain.ErrGateway, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: summarizer returned an empty response", domain.ErrGateway)
	}
	return truncate(text, g.maxChars), nil
}

// truncate cuts s to at most max runes, preferring a word boundary, and marks the cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max-1])
	if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \n\t.,;:") + "…"
}
