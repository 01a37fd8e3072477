package contextbuf

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/warmtransfer/pkg/domain"
)

type sessionLog struct {
	entries []domain.ContextEntry
	seq     uint64
}

// Memory is the in-process Store.
type Memory struct {
	mu        sync.Mutex
	retention int
	logs      map[string]*sessionLog
	now       func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithRetention sets the per-session retention bound.
func WithRetention(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.retention = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-memory buffer.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		retention: DefaultRetention,
		logs:      make(map[string]*sessionLog),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Append(_ context.Context, session, text string) (domain.ContextEntry, error) {
	text, err := Normalize(text)
	if err != nil {
		return domain.ContextEntry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.logs[session]
	if !ok {
		l = &sessionLog{}
		m.logs[session] = l
	}
	l.seq++
	entry := domain.ContextEntry{Seq: l.seq, Text: text, At: m.now()}
	l.entries = append(l.entries, entry)
	if over := len(l.entries) - m.retention; over > 0 {
		// FIFO eviction; copy so the backing array does not grow without bound.
		l.entries = append([]domain.ContextEntry(nil), l.entries[over:]...)
	}
	return entry, nil
}

func (m *Memory) Entries(_ context.Context, session string, limit int) ([]domain.ContextEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.logs[session]
	if !ok {
		return []domain.ContextEntry{}, nil
	}
	entries := l.entries
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	return append([]domain.ContextEntry(nil), entries...), nil
}

func (m *Memory) Snapshot(ctx context.Context, session string, limit int) ([]string, error) {
	entries, err := m.Entries(ctx, session, limit)
	if err != nil {
		return nil, err
	}
	return Texts(entries), nil
}

func (m *Memory) Drop(_ context.Context, session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.logs, session)
	return nil
}
