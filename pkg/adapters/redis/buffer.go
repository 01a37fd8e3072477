package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/warmtransfer/pkg/contextbuf"
	"github.com/aretw0/warmtransfer/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// appendScript assigns the next sequence number and appends in one step, so
// concurrent writers from different processes never interleave out of order.
var appendScript = backend.NewScript(`
local seq = redis.call("incr", KEYS[2])
redis.call("rpush", KEYS[1], seq .. "|" .. ARGV[1])
redis.call("ltrim", KEYS[1], -tonumber(ARGV[2]), -1)
if tonumber(ARGV[3]) > 0 then
	redis.call("pexpire", KEYS[1], ARGV[3])
	redis.call("pexpire", KEYS[2], ARGV[3])
end
return seq
`)

type storedEntry struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Buffer implements contextbuf.Store on Redis lists, for deployments where
// transcription workers append from other processes.
type Buffer struct {
	client    *backend.Client
	prefix    string
	retention int
	ttl       time.Duration
	now       func() time.Time
}

var _ contextbuf.Store = (*Buffer)(nil)

type Option func(*Buffer)

// WithTTL expires idle session buffers.
func WithTTL(ttl time.Duration) Option {
	return func(b *Buffer) {
		b.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(b *Buffer) {
		b.prefix = prefix
	}
}

// WithRetention sets the per-session retention bound.
func WithRetention(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.retention = n
		}
	}
}

// New creates a Redis buffer with its own client.
func New(address, password string, db int, opts ...Option) *Buffer {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis buffer from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Buffer {
	b := &Buffer{
		client:    client,
		prefix:    "warm:",
		retention: contextbuf.DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Buffer) key(session string) string {
	return b.prefix + "ctx:" + session
}

func (b *Buffer) seqKey(session string) string {
	return b.prefix + "ctx:" + session + ":seq"
}

func (b *Buffer) Append(ctx context.Context, session, text string) (domain.ContextEntry, error) {
	text, err := contextbuf.Normalize(text)
	if err != nil {
		return domain.ContextEntry{}, err
	}
	at := b.now().UTC()
	data, err := json.Marshal(storedEntry{Text: text, At: at})
	if err != nil {
		return domain.ContextEntry{}, fmt.Errorf("failed to marshal entry: %w", err)
	}

	seq, err := appendScript.Run(ctx, b.client,
		[]string{b.key(session), b.seqKey(session)},
		string(data), b.retention, b.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return domain.ContextEntry{}, fmt.Errorf("failed to append to redis: %w", err)
	}
	return domain.ContextEntry{Seq: uint64(seq), Text: text, At: at}, nil
}

func (b *Buffer) Entries(ctx context.Context, session string, limit int) ([]domain.ContextEntry, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := b.client.LRange(ctx, b.key(session), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read from redis: %w", err)
	}

	out := make([]domain.ContextEntry, 0, len(raw))
	for _, item := range raw {
		seqText, payload, ok := strings.Cut(item, "|")
		if !ok {
			return nil, fmt.Errorf("malformed context entry %q", item)
		}
		seq, err := strconv.ParseUint(seqText, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed context sequence %q: %w", seqText, err)
		}
		var e storedEntry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		out = append(out, domain.ContextEntry{Seq: seq, Text: e.Text, At: e.At})
	}
	return out, nil
}

func (b *Buffer) Snapshot(ctx context.Context, session string, limit int) ([]string, error) {
	entries, err := b.Entries(ctx, session, limit)
	if err != nil {
		return nil, err
	}
	return contextbuf.Texts(entries), nil
}

func (b *Buffer) Drop(ctx context.Context, session string) error {
	return b.client.Del(ctx, b.key(session), b.seqKey(session)).Err()
}

// Close closes the redis client.
func (b *Buffer) Close() error {
	return b.client.Close()
}
