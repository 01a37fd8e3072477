package transfer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/warmtransfer/internal/logging"
	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/aretw0/warmtransfer/pkg/lock"
	"github.com/aretw0/warmtransfer/pkg/ports"
	"github.com/aretw0/warmtransfer/pkg/session"
	"github.com/aretw0/warmtransfer/pkg/summary"
	"github.com/google/uuid"
)

// Registry is the part of the session registry the coordinator drives.
type Registry interface {
	GetSession(name string) (domain.Session, bool)
	MarkTransferring(ctx context.Context, name string, on bool) error
	Handoff(ctx context.Context, from, to string) (domain.Token, error)
}

// ContextReader reads the recent utterances of a session.
type ContextReader interface {
	Snapshot(ctx context.Context, session string, limit int) ([]string, error)
}

// Summarizer produces the briefing for the receiving agent.
type Summarizer interface {
	Summarize(ctx context.Context, utterances []string) (string, error)
}

// Coordinator owns every TransferRecord.
type Coordinator struct {
	registry   Registry
	context    ContextReader
	summarizer Summarizer

	locks *lock.Manager

	mu      sync.RWMutex
	records map[string]domain.TransferRecord
	active  map[string]string // source session -> pending transfer id

	summaryTimeout time.Duration
	notifier       ports.Notifier
	hooks          domain.LifecycleHooks
	logger         *slog.Logger
	now            func() time.Time
	newID          func() string

	wg sync.WaitGroup
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLogger configures a logger for the Coordinator.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithClock overrides the time source used for record stamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithNotifier sets where transfer events are published.
func WithNotifier(n ports.Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithHooks registers callbacks fired for every transfer event.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(c *Coordinator) { c.hooks = h }
}

// WithLocks shares a lock manager with the registry.
func WithLocks(m *lock.Manager) Option {
	return func(c *Coordinator) { c.locks = m }
}

// WithIDGenerator overrides transfer id generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

// WithSummaryTimeout bounds the summarization step of InitiateTransfer.
func WithSummaryTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.summaryTimeout = d
		}
	}
}

// New creates a Coordinator.
func New(registry Registry, reader ContextReader, summarizer Summarizer, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:       registry,
		context:        reader,
		summarizer:     summarizer,
		locks:          lock.New(),
		records:        make(map[string]domain.TransferRecord),
		active:         make(map[string]string),
		summaryTimeout: summary.DefaultTimeout,
		notifier:       ports.NopNotifier{},
		logger:         logging.NewNop(),
		now:            time.Now,
		newID:          func() string { return "transfer_" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sourceKey(name string) string { return "source:" + name }
func transferKey(id string) string { return "transfer:" + id }

func (c *Coordinator) record(id string) (domain.TransferRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	return rec, ok
}

// put stores rec and maintains the pending index. The caller holds the entity locks.
func (c *Coordinator) put(rec domain.TransferRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.ID] = rec
	if rec.Pending() {
		c.active[rec.Source] = rec.ID
	} else if c.active[rec.Source] == rec.ID {
		delete(c.active, rec.Source)
	}
}

func (c *Coordinator) drop(rec domain.TransferRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, rec.ID)
	if c.active[rec.Source] == rec.ID {
		delete(c.active, rec.Source)
	}
}

func (c *Coordinator) pendingFor(source string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.active[source]
	return id, ok
}

func (c *Coordinator) requireOpen(name string) error {
	s, ok := c.registry.GetSession(name)
	if !ok {
		return fmt.Errorf("%w: session %q", domain.ErrNotFound, name)
	}
	if s.Closed() {
		return fmt.Errorf("%w: session %q", domain.ErrClosed, name)
	}
	return nil
}

// InitiateTransfer briefs the target of a transfer out of source. It waits for
// the summary. Summarization failures are not operation errors: the returned
// record is then in status failed.
func (c *Coordinator) InitiateTransfer(ctx context.Context, source, target, caller string) (domain.TransferRecord, error) {
	source, target, caller = strings.TrimSpace(source), strings.TrimSpace(target), strings.TrimSpace(caller)
	switch {
	case source == "" || target == "" || caller == "":
		return domain.TransferRecord{}, fmt.Errorf("%w: from_room, to_room and caller_room are required", domain.ErrInvalidArgument)
	case source == target:
		return domain.TransferRecord{}, fmt.Errorf("%w: cannot transfer a session to itself", domain.ErrInvalidArgument)
	case caller == target:
		return domain.TransferRecord{}, fmt.Errorf("%w: caller is already in the target session", domain.ErrInvalidArgument)
	}
	for _, name := range []string{source, target, caller} {
		if err := c.requireOpen(name); err != nil {
			return domain.TransferRecord{}, err
		}
	}

	var rec domain.TransferRecord
	err := c.locks.WithLock(ctx, sourceKey(source), func(ctx context.Context) error {
		if id, ok := c.pendingFor(source); ok {
			return fmt.Errorf("%w: session %q already has transfer %s in flight", domain.ErrConflict, source, id)
		}
		now := c.now()
		rec = domain.TransferRecord{
			ID:        c.newID(),
			Source:    source,
			Target:    target,
			Caller:    caller,
			Status:    domain.TransferInitiated,
			CreatedAt: now,
			UpdatedAt: now,
		}
		c.put(rec)
		// The source may have closed since the checks above. Re-checking after
		// put means a close either shows here or finds the record to fail.
		if err := c.requireOpen(source); err != nil {
			c.drop(rec)
			return err
		}
		if err := c.registry.MarkTransferring(ctx, source, true); err != nil {
			c.logger.Warn("Failed to flag source session", "session", source, "err", err)
		}
		return nil
	})
	if err != nil {
		return domain.TransferRecord{}, err
	}
	c.logger.Info("Transfer initiated", "transfer_id", rec.ID, "from", source, "to", target)
	c.emit(ctx, rec, nil)

	// Summarize without holding any lock; the caller's cancellation must not
	// leave the reservation dangling, so only the timeout bounds this step.
	detached := context.WithoutCancel(ctx)
	text, sumErr := c.summarize(detached, caller)

	var committed bool
	err = c.locks.WithLocks(detached, []string{sourceKey(source), transferKey(rec.ID)}, func(ctx context.Context) error {
		cur, ok := c.record(rec.ID)
		if !ok || cur.Status != domain.TransferInitiated {
			// Expired or failed while summarizing; report what happened.
			rec = cur
			return nil
		}
		now := c.now()
		if sumErr != nil {
			cur.FailureReason = sumErr.Error()
			if err := cur.Transition(domain.TransferFailed, now); err != nil {
				return err
			}
		} else {
			cur.Summary = text
			if err := cur.Transition(domain.TransferBriefed, now); err != nil {
				return err
			}
		}
		c.put(cur)
		if cur.Status == domain.TransferFailed {
			c.release(ctx, cur.Source)
		}
		rec, committed = cur, true
		return nil
	})
	if err != nil {
		// Commit could not take the locks (e.g. distributed lock outage). The
		// reservation stays initiated and the sweeper will expire it.
		return c.snapshot(rec.ID), err
	}

	if committed {
		if sumErr != nil {
			c.logger.Warn("Transfer failed", "transfer_id", rec.ID, "err", sumErr)
		} else {
			c.logger.Info("Transfer briefed", "transfer_id", rec.ID)
		}
		c.emit(ctx, rec, nil)
	}
	return rec, nil
}

func (c *Coordinator) summarize(ctx context.Context, caller string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.summaryTimeout)
	defer cancel()

	utterances, err := c.context.Snapshot(ctx, caller, 0)
	if err != nil {
		return "", fmt.Errorf("%w: read context: %v", domain.ErrGateway, err)
	}
	text, err := c.summarizer.Summarize(ctx, utterances)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		err = fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return text, err
}

// release restores the source session once its transfer did not go through.
func (c *Coordinator) release(ctx context.Context, source string) {
	if err := c.registry.MarkTransferring(ctx, source, false); err != nil && !errors.Is(err, domain.ErrNotFound) {
		c.logger.Warn("Failed to restore source session", "session", source, "err", err)
	}
}

// CompleteTransfer hands the caller to the target session. Only briefed records
// can complete; any other status yields domain.ErrInvalidState and no change.
func (c *Coordinator) CompleteTransfer(ctx context.Context, id string) (domain.TransferRecord, error) {
	rec, _, err := c.CompleteTransferWithToken(ctx, id)
	return rec, err
}

// CompleteTransferWithToken is CompleteTransfer that also returns the caller's
// credential for the target session.
func (c *Coordinator) CompleteTransferWithToken(ctx context.Context, id string) (domain.TransferRecord, domain.Token, error) {
	rec, ok := c.record(id)
	if !ok {
		return domain.TransferRecord{}, domain.Token{}, fmt.Errorf("%w: transfer %q", domain.ErrNotFound, id)
	}

	var token domain.Token
	err := c.locks.WithLocks(ctx, []string{sourceKey(rec.Source), transferKey(id)}, func(ctx context.Context) error {
		cur, _ := c.record(id)
		if cur.Status != domain.TransferBriefed {
			rec = cur
			return fmt.Errorf("%w: transfer %s is %s, not briefed", domain.ErrInvalidState, id, cur.Status)
		}
		var err error
		token, err = c.registry.Handoff(ctx, cur.Caller, cur.Target)
		if err != nil {
			return fmt.Errorf("handoff for transfer %s: %w", id, err)
		}
		if err := cur.Transition(domain.TransferCompleted, c.now()); err != nil {
			return err
		}
		c.put(cur)
		rec = cur
		return nil
	})
	if err != nil {
		return rec, domain.Token{}, err
	}

	c.logger.Info("Transfer completed", "transfer_id", id, "to", rec.Target)
	c.emit(ctx, rec, &token)
	return rec, token, nil
}

// ExpireStale moves every pending record created more than ttl before now to
// expired and returns how many it moved. Terminal records are never touched.
func (c *Coordinator) ExpireStale(ctx context.Context, now time.Time, ttl time.Duration) int {
	var candidates []domain.TransferRecord
	c.mu.RLock()
	for _, id := range c.active {
		if rec := c.records[id]; now.Sub(rec.CreatedAt) > ttl {
			candidates = append(candidates, rec)
		}
	}
	c.mu.RUnlock()

	expired := 0
	for _, cand := range candidates {
		var rec domain.TransferRecord
		err := c.locks.WithLocks(ctx, []string{sourceKey(cand.Source), transferKey(cand.ID)}, func(ctx context.Context) error {
			cur, _ := c.record(cand.ID)
			if !cur.Pending() || now.Sub(cur.CreatedAt) <= ttl {
				return nil
			}
			if err := cur.Transition(domain.TransferExpired, now); err != nil {
				return err
			}
			c.put(cur)
			c.release(ctx, cur.Source)
			rec = cur
			return nil
		})
		if err != nil {
			c.logger.Warn("Failed to expire transfer", "transfer_id", cand.ID, "err", err)
			continue
		}
		if rec.ID != "" {
			expired++
			c.logger.Info("Transfer expired", "transfer_id", rec.ID, "age", now.Sub(rec.CreatedAt))
			c.emit(ctx, rec, nil)
		}
	}
	return expired
}

// Run sweeps for stale transfers every interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval, ttl time.Duration) error {
	if interval <= 0 || ttl <= 0 {
		return fmt.Errorf("%w: sweep interval and ttl must be positive", domain.ErrInvalidArgument)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := c.ExpireStale(ctx, c.now(), ttl); n > 0 {
				c.logger.Debug("Sweep finished", "expired", n)
			}
		}
	}
}

// GetTransfer returns a snapshot of the record.
func (c *Coordinator) GetTransfer(id string) (domain.TransferRecord, bool) {
	return c.record(id)
}

func (c *Coordinator) snapshot(id string) domain.TransferRecord {
	rec, _ := c.record(id)
	return rec
}

// ListTransfers returns every record, oldest first. Records outlive their sessions.
func (c *Coordinator) ListTransfers() []domain.TransferRecord {
	c.mu.RLock()
	out := make([]domain.TransferRecord, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec)
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.TransferRecord) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Summary returns the briefing of a transfer.
func (c *Coordinator) Summary(id string) (string, error) {
	rec, ok := c.record(id)
	if !ok {
		return "", fmt.Errorf("%w: transfer %q", domain.ErrNotFound, id)
	}
	if rec.Summary == "" {
		return "", fmt.Errorf("%w: transfer %s is %s and has no summary", domain.ErrInvalidState, id, rec.Status)
	}
	return rec.Summary, nil
}

// ParticipantLeft implements session.Observer. When agent_a leaves a source
// session whose transfer is briefed, the transfer completes; when a session
// empties while one of its transfers is pending, that transfer fails.
// Work runs asynchronously because the registry may invoke this from inside a
// handoff the coordinator itself is driving.
func (c *Coordinator) ParticipantLeft(ctx context.Context, d session.Departure) {
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.handleDeparture(ctx, d)
	}()
}

func (c *Coordinator) handleDeparture(ctx context.Context, d session.Departure) {
	if d.Role == domain.RoleAgentA {
		if id, ok := c.pendingFor(d.Session); ok {
			// A caller who already hung up has nobody to hand off; the
			// transfer is left to fail with its source or expire.
			if rec, _ := c.record(id); rec.Status == domain.TransferBriefed && c.callerPresent(rec.Caller) {
				_, err := c.CompleteTransfer(ctx, id)
				if err == nil {
					return
				}
				c.logger.Warn("Auto-completion after agent_a left failed", "transfer_id", id, "err", err)
			}
		}
	}
	if d.Closed {
		c.failPendingFor(ctx, d.Session)
	}
}

func (c *Coordinator) callerPresent(name string) bool {
	s, ok := c.registry.GetSession(name)
	return ok && !s.Closed() && s.Occupied(domain.RoleCaller)
}

func (c *Coordinator) failPendingFor(ctx context.Context, name string) {
	var ids []string
	c.mu.RLock()
	for _, id := range c.active {
		if rec := c.records[id]; rec.Source == name || rec.Target == name {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()

	for _, id := range ids {
		rec, _ := c.record(id)
		var failed bool
		err := c.locks.WithLocks(ctx, []string{sourceKey(rec.Source), transferKey(id)}, func(ctx context.Context) error {
			cur, _ := c.record(id)
			if !cur.Pending() {
				return nil
			}
			cur.FailureReason = fmt.Sprintf("session %s closed", name)
			if err := cur.Transition(domain.TransferFailed, c.now()); err != nil {
				return err
			}
			c.put(cur)
			c.release(ctx, cur.Source)
			rec, failed = cur, true
			return nil
		})
		if err != nil {
			c.logger.Warn("Failed to fail transfer", "transfer_id", id, "err", err)
			continue
		}
		if failed {
			c.logger.Info("Transfer failed", "transfer_id", id, "reason", rec.FailureReason)
			c.emit(ctx, rec, nil)
		}
	}
}

// Wait blocks until asynchronous departure handling has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// emit announces rec on every session it touches. The caller's credential is
// only attached to the event on the caller session.
func (c *Coordinator) emit(ctx context.Context, rec domain.TransferRecord, callerToken *domain.Token) {
	now := c.now()
	for _, name := range slices.Compact(slices.Sorted(slices.Values([]string{rec.Source, rec.Target, rec.Caller}))) {
		r := rec
		ev := domain.Event{
			Type:      domain.TransferEventType(rec.Status),
			Session:   name,
			Timestamp: now,
			Transfer:  &r,
		}
		if name == rec.Caller {
			ev.Token = callerToken
		}
		c.notifier.Publish(name, ev)
	}
	ev := domain.Event{Type: domain.TransferEventType(rec.Status), Session: rec.Source, Timestamp: now, Transfer: &rec}
	c.hooks.EmitTransfer(ctx, &ev)
}
