package warmtransfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/warmtransfer/internal/logging"
	"github.com/aretw0/warmtransfer/pkg/contextbuf"
	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/aretw0/warmtransfer/pkg/lock"
	"github.com/aretw0/warmtransfer/pkg/notify"
	"github.com/aretw0/warmtransfer/pkg/observability"
	"github.com/aretw0/warmtransfer/pkg/ports"
	"github.com/aretw0/warmtransfer/pkg/session"
	"github.com/aretw0/warmtransfer/pkg/summary"
	"github.com/aretw0/warmtransfer/pkg/transfer"
)

const (
	DefaultTransferTTL   = 5 * time.Minute
	DefaultSweepInterval = 30 * time.Second
)

// Service wires the registry, context buffer, summarizer, coordinator and
// notification hub into one object with an explicit lifecycle.
type Service struct {
	Registry    *session.Registry
	Buffer      contextbuf.Store
	Gateway     *summary.Gateway
	Coordinator *transfer.Coordinator
	Hub         *notify.Hub

	transferTTL   time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

type config struct {
	logger         *slog.Logger
	now            func() time.Time
	buffer         contextbuf.Store
	retention      int
	locker         ports.DistributedLocker
	hooks          domain.LifecycleHooks
	metrics        *observability.Metrics
	summaryOpts    []summary.Option
	transferTTL    time.Duration
	sweepInterval  time.Duration
	notifyBuffer   int
	summaryTimeout time.Duration
}

// Option defines a functional option for configuring the Service.
type Option func(*config)

// WithLogger sets a custom structured logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithBuffer replaces the in-memory context buffer, e.g. with the Redis one.
func WithBuffer(b contextbuf.Store) Option {
	return func(c *config) { c.buffer = b }
}

// WithRetention sets how many utterances the default buffer keeps per session.
// Non-positive values are ignored.
func WithRetention(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.retention = n
		}
	}
}

// WithLocker enables distributed per-entity locking.
func WithLocker(l ports.DistributedLocker) Option {
	return func(c *config) { c.locker = l }
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(c *config) { c.hooks = c.hooks.Merge(h) }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithSummaryOptions tunes the summarizer gateway.
func WithSummaryOptions(opts ...summary.Option) Option {
	return func(c *config) { c.summaryOpts = append(c.summaryOpts, opts...) }
}

// WithSummaryTimeout bounds summarization inside InitiateTransfer.
func WithSummaryTimeout(d time.Duration) Option {
	return func(c *config) {
		c.summaryTimeout = d
		c.summaryOpts = append(c.summaryOpts, summary.WithTimeout(d))
	}
}

// WithTransferTTL sets the age after which pending transfers expire.
func WithTransferTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.transferTTL = d
		}
	}
}

// WithSweepInterval sets how often stale transfers are swept.
// Non-positive values are ignored.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithNotifyBuffer sets the per-subscriber event queue length.
func WithNotifyBuffer(n int) Option {
	return func(c *config) { c.notifyBuffer = n }
}

// New builds a Service on top of the media and text-generation providers.
func New(rooms ports.RoomProvider, tokens ports.TokenIssuer, gen ports.TextGenerator, opts ...Option) *Service {
	cfg := &config{
		logger:        logging.NewNop(),
		now:           time.Now,
		transferTTL:   DefaultTransferTTL,
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	hooks := cfg.hooks
	hubOpts := []notify.Option{notify.WithLogger(cfg.logger), notify.WithBuffer(cfg.notifyBuffer)}
	if cfg.metrics != nil {
		hooks = hooks.Merge(cfg.metrics.Hooks())
		hubOpts = append(hubOpts, notify.WithOnDrop(cfg.metrics.NotifyDropped))
	}

	lockOpts := []lock.Option{lock.WithLogger(cfg.logger)}
	if cfg.locker != nil {
		lockOpts = append(lockOpts, lock.WithLocker(cfg.locker))
	}
	locks := lock.New(lockOpts...)

	buffer := cfg.buffer
	if buffer == nil {
		buffer = contextbuf.NewMemory(contextbuf.WithRetention(cfg.retention), contextbuf.WithClock(cfg.now))
	}

	hub := notify.NewHub(hubOpts...)
	registry := session.NewRegistry(rooms, tokens,
		session.WithLocks(locks),
		session.WithNotifier(hub),
		session.WithHooks(hooks),
		session.WithLogger(cfg.logger.With("component", "registry")),
		session.WithClock(cfg.now),
	)
	gateway := summary.New(gen, append([]summary.Option{
		summary.WithHooks(hooks),
		summary.WithLogger(cfg.logger.With("component", "summarizer")),
	}, cfg.summaryOpts...)...)
	coordinator := transfer.New(registry, buffer, gateway,
		transfer.WithLocks(locks),
		transfer.WithNotifier(hub),
		transfer.WithHooks(hooks),
		transfer.WithLogger(cfg.logger.With("component", "coordinator")),
		transfer.WithClock(cfg.now),
		transfer.WithSummaryTimeout(max(cfg.summaryTimeout, gateway.Timeout())+time.Second),
	)

	svc := &Service{
		Registry:      registry,
		Buffer:        buffer,
		Gateway:       gateway,
		Coordinator:   coordinator,
		Hub:           hub,
		transferTTL:   cfg.transferTTL,
		sweepInterval: cfg.sweepInterval,
		logger:        cfg.logger,
		now:           cfg.now,
	}
	registry.Observe(coordinator)
	registry.Observe(bufferJanitor{svc})
	return svc
}

// bufferJanitor forgets the context of closed sessions so a recreated session
// name never summarizes a previous call.
type bufferJanitor struct{ svc *Service }

func (j bufferJanitor) ParticipantLeft(ctx context.Context, d session.Departure) {
	if !d.Closed {
		return
	}
	if err := j.svc.Buffer.Drop(ctx, d.Session); err != nil {
		j.svc.logger.Warn("Failed to drop session context", "session", d.Session, "err", err)
	}
}

// Run sweeps stale transfers until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Transfer sweeper started", "interval", s.sweepInterval, "ttl", s.transferTTL)
	return s.Coordinator.Run(ctx, s.sweepInterval, s.transferTTL)
}

// Close waits for in-flight observer work and ends every subscription.
func (s *Service) Close() {
	s.Coordinator.Wait()
	s.Hub.Close()
}

// TransferTTL returns the configured expiry age.
func (s *Service) TransferTTL() time.Duration { return s.transferTTL }

func (s *Service) requireOpen(name string) (domain.Session, error) {
	sess, ok := s.Registry.GetSession(name)
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: session %q", domain.ErrNotFound, name)
	}
	if sess.Closed() {
		return sess, fmt.Errorf("%w: session %q", domain.ErrClosed, name)
	}
	return sess, nil
}

// RecordUtterance appends to the context buffer of an open session.
func (s *Service) RecordUtterance(ctx context.Context, name, text string) (domain.ContextEntry, error) {
	if _, err := s.requireOpen(name); err != nil {
		return domain.ContextEntry{}, err
	}
	entry, err := s.Buffer.Append(ctx, name, text)
	if err != nil {
		return domain.ContextEntry{}, err
	}
	s.Hub.Publish(name, domain.Event{Type: domain.EventContextAppended, Session: name, Timestamp: s.now(), Entry: &entry})
	return entry, nil
}

// Context returns the retained entries of a known session.
func (s *Service) Context(ctx context.Context, name string, limit int) ([]domain.ContextEntry, error) {
	if _, ok := s.Registry.GetSession(name); !ok {
		return nil, fmt.Errorf("%w: session %q", domain.ErrNotFound, name)
	}
	return s.Buffer.Entries(ctx, name, limit)
}

// Summarize briefs on history, or on the session's own context when history is empty.
func (s *Service) Summarize(ctx context.Context, name string, history []string) (string, error) {
	if len(history) == 0 {
		var err error
		if history, err = s.Buffer.Snapshot(ctx, name, 0); err != nil {
			return "", err
		}
	}
	return s.Gateway.Summarize(ctx, history)
}

// Subscribe streams events of an open session.
func (s *Service) Subscribe(ctx context.Context, name string) (<-chan domain.Event, func(), error) {
	if _, err := s.requireOpen(name); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.Hub.Subscribe(ctx, name)
	return ch, cancel, nil
}
