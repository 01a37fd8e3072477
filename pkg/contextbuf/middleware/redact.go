package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/warmtransfer/pkg/contextbuf"
	"github.com/aretw0/warmtransfer/pkg/domain"
)

// Mask replaces every redacted span.
const Mask = "***"

type redactMiddleware struct {
	contextbuf.Store
	patterns []*regexp.Regexp
}

// NewRedaction masks spans of each utterance matching any of the patterns
// before it reaches the store, so neither the summary nor the transcript
// carries them.
func NewRedaction(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, 0, len(patternStrings))
	for _, p := range patternStrings {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: redaction pattern %q: %v", domain.ErrInvalidArgument, p, err)
		}
		patterns = append(patterns, re)
	}
	return func(next contextbuf.Store) contextbuf.Store {
		return &redactMiddleware{Store: next, patterns: patterns}
	}, nil
}

func (m *redactMiddleware) Append(ctx context.Context, session, text string) (domain.ContextEntry, error) {
	text, err := contextbuf.Normalize(text)
	if err != nil {
		return domain.ContextEntry{}, err
	}
	for _, re := range m.patterns {
		text = re.ReplaceAllString(text, Mask)
	}
	return m.Store.Append(ctx, session, text)
}
