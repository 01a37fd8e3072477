// Package contextbuf keeps the recent utterances of each session for summarization.
package contextbuf

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/warmtransfer/pkg/domain"
)

// DefaultRetention is how many entries a session keeps.
const DefaultRetention = 10

// Store is a bounded, per-session utterance log.
type Store interface {
	// Append records text with the next sequence number of the session,
	// evicting the oldest entries beyond the retention bound.
	Append(ctx context.Context, session, text string) (domain.ContextEntry, error)
	// Snapshot returns up to limit most recent utterances in chronological order.
	// limit <= 0 means all retained entries. An unknown session yields an empty slice.
	Snapshot(ctx context.Context, session string, limit int) ([]string, error)
	// Entries is Snapshot with sequence numbers and timestamps.
	Entries(ctx context.Context, session string, limit int) ([]domain.ContextEntry, error)
	// Drop forgets every entry of the session.
	Drop(ctx context.Context, session string) error
}

// Normalize validates an utterance before it is stored.
func Normalize(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty utterance", domain.ErrInvalidArgument)
	}
	return text, nil
}

// Texts projects entries onto their utterance text.
func Texts(entries []domain.ContextEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}
