package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/warmtransfer/internal/logging"
	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/aretw0/warmtransfer/pkg/lock"
	"github.com/aretw0/warmtransfer/pkg/ports"
)

// Departure describes a participant leaving a session.
type Departure struct {
	Session string
	Role    domain.Role
	// Closed is set when the departure emptied the session.
	Closed bool
}

// Observer reacts to departures. Callbacks run after the session lock is released.
type Observer interface {
	ParticipantLeft(ctx context.Context, d Departure)
}

// Registry tracks every session and its participants.
type Registry struct {
	rooms  ports.RoomProvider
	tokens ports.TokenIssuer

	locks *lock.Manager

	mu        sync.RWMutex
	sessions  map[string]domain.Session // copy-on-write values
	observers []Observer

	notifier ports.Notifier
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for the Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithClock overrides the time source used for join and update stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithNotifier sets where session events are published.
func WithNotifier(n ports.Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithHooks registers callbacks fired for every session event.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(r *Registry) { r.hooks = h }
}

// WithLocks shares a lock manager with other components.
func WithLocks(m *lock.Manager) Option {
	return func(r *Registry) { r.locks = m }
}

// NewRegistry creates an empty registry.
func NewRegistry(rooms ports.RoomProvider, tokens ports.TokenIssuer, opts ...Option) *Registry {
	r := &Registry{
		rooms:    rooms,
		tokens:   tokens,
		locks:    lock.New(),
		sessions: make(map[string]domain.Session),
		notifier: ports.NopNotifier{},
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Observe registers o for departure callbacks.
func (r *Registry) Observe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Key is the lock key of a session.
func Key(name string) string { return "session:" + name }

func (r *Registry) load(name string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[name]
	return s, ok
}

func (r *Registry) store(s domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.Name] = s
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: room name is required", domain.ErrInvalidArgument)
	}
	return nil
}

// CreateSession opens a session named name with role as its first occupant.
// A closed session of the same name is replaced.
func (r *Registry) CreateSession(ctx context.Context, name string, role domain.Role) (domain.Session, domain.Token, error) {
	if err := validName(name); err != nil {
		return domain.Session{}, domain.Token{}, err
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return domain.Session{}, domain.Token{}, err
	}

	var (
		created domain.Session
		token   domain.Token
	)
	err := r.locks.WithLock(ctx, Key(name), func(ctx context.Context) error {
		if existing, ok := r.load(name); ok && !existing.Closed() {
			return fmt.Errorf("%w: session %q already exists", domain.ErrConflict, name)
		}

		now := r.now()
		room, err := r.rooms.CreateRoom(ctx, name, map[string]string{
			"participant_type": string(role),
			"created_at":       now.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("%w: create room %q: %v", domain.ErrGateway, name, err)
		}
		token, err = r.tokens.IssueToken(name, string(role), domain.ParticipantGrants)
		if err != nil {
			return fmt.Errorf("%w: issue token: %v", domain.ErrGateway, err)
		}

		s := domain.NewSession(name, room, now)
		s.Participants[role] = domain.Participant{Role: role, Session: name, JoinedAt: now}
		r.store(s)
		created = s.Clone()
		return nil
	})
	if err != nil {
		return domain.Session{}, domain.Token{}, err
	}

	r.logger.Info("Session created", "session", name, "role", role)
	r.emit(ctx, domain.Event{Type: domain.EventSessionCreated, Session: name, Role: role, State: created.State})
	return created, token, nil
}

// JoinSession admits role into an existing session.
func (r *Registry) JoinSession(ctx context.Context, name string, role domain.Role) (domain.Token, error) {
	if err := validName(name); err != nil {
		return domain.Token{}, err
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return domain.Token{}, err
	}

	var (
		token   domain.Token
		state   domain.SessionState
		changed bool
	)
	err := r.locks.WithLock(ctx, Key(name), func(ctx context.Context) error {
		s, ok := r.load(name)
		if !ok {
			return fmt.Errorf("%w: session %q", domain.ErrNotFound, name)
		}
		if s.Closed() {
			return fmt.Errorf("%w: session %q", domain.ErrClosed, name)
		}
		if s.Occupied(role) {
			return fmt.Errorf("%w: role %s is already taken in %q", domain.ErrConflict, role, name)
		}

		var err error
		token, err = r.tokens.IssueToken(name, string(role), domain.ParticipantGrants)
		if err != nil {
			return fmt.Errorf("%w: issue token: %v", domain.ErrGateway, err)
		}

		now := r.now()
		s = s.Clone()
		s.Participants[role] = domain.Participant{Role: role, Session: name, JoinedAt: now}
		s.UpdatedAt = now
		if s.State == domain.SessionForming && len(s.Participants) >= 2 {
			s.State = domain.SessionActive
			changed = true
		}
		state = s.State
		r.store(s)
		return nil
	})
	if err != nil {
		return domain.Token{}, err
	}

	r.logger.Info("Participant joined", "session", name, "role", role)
	r.emit(ctx, domain.Event{Type: domain.EventParticipantJoined, Session: name, Role: role, State: state})
	if changed {
		r.emit(ctx, domain.Event{Type: domain.EventSessionState, Session: name, State: state})
	}
	return token, nil
}

// LeaveSession removes role from the session. Leaving an absent role or an
// unknown session is a no-op. Removing the last occupant closes the session.
func (r *Registry) LeaveSession(ctx context.Context, name string, role domain.Role) error {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return err
	}

	var left, closed bool
	err := r.locks.WithLock(ctx, Key(name), func(ctx context.Context) error {
		s, ok := r.load(name)
		if !ok || !s.Occupied(role) {
			return nil
		}
		left, closed = true, r.removeLocked(s, role)
		return nil
	})
	if err != nil || !left {
		return err
	}

	r.afterLeave(ctx, name, role, closed)
	return nil
}

// removeLocked drops role from s and stores the result. The caller holds the session lock.
func (r *Registry) removeLocked(s domain.Session, role domain.Role) (closed bool) {
	s = s.Clone()
	delete(s.Participants, role)
	s.UpdatedAt = r.now()
	if len(s.Participants) == 0 {
		s.State = domain.SessionClosed
		closed = true
	}
	r.store(s)
	return closed
}

func (r *Registry) afterLeave(ctx context.Context, name string, role domain.Role, closed bool) {
	r.logger.Info("Participant left", "session", name, "role", role, "closed", closed)
	r.emit(ctx, domain.Event{Type: domain.EventParticipantLeft, Session: name, Role: role})
	if closed {
		r.emit(ctx, domain.Event{Type: domain.EventSessionClosed, Session: name, State: domain.SessionClosed})
		r.notifier.CloseSession(name)
	}

	d := Departure{Session: name, Role: role, Closed: closed}
	for _, o := range r.snapshotObservers() {
		o.ParticipantLeft(ctx, d)
	}
}

func (r *Registry) snapshotObservers() []Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Observer(nil), r.observers...)
}

// GetSession returns a snapshot of the named session.
func (r *Registry) GetSession(name string) (domain.Session, bool) {
	s, ok := r.load(name)
	if !ok {
		return domain.Session{}, false
	}
	return s.Clone(), true
}

// ListSessions returns snapshots of every known session, closed ones included.
func (r *Registry) ListSessions() []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	return out
}

// MarkTransferring flags the session as part of an in-flight transfer, or
// restores it once the transfer is over. Closed sessions are left untouched.
func (r *Registry) MarkTransferring(ctx context.Context, name string, on bool) error {
	var (
		state   domain.SessionState
		changed bool
	)
	err := r.locks.WithLock(ctx, Key(name), func(ctx context.Context) error {
		s, ok := r.load(name)
		if !ok {
			return fmt.Errorf("%w: session %q", domain.ErrNotFound, name)
		}
		if s.Closed() {
			return nil
		}

		next := s.State
		switch {
		case on:
			next = domain.SessionTransferring
		case s.State == domain.SessionTransferring && len(s.Participants) >= 2:
			next = domain.SessionActive
		case s.State == domain.SessionTransferring:
			next = domain.SessionForming
		}
		if next == s.State {
			return nil
		}
		s = s.Clone()
		s.State = next
		s.UpdatedAt = r.now()
		r.store(s)
		state, changed = next, true
		return nil
	})
	if err == nil && changed {
		r.emit(ctx, domain.Event{Type: domain.EventSessionState, Session: name, State: state})
	}
	return err
}

// Handoff moves the caller of session from into the caller slot of session to
// and issues the caller a credential for to. If from has no caller (the caller
// hung up) nothing moves and to is left untouched, but the credential is still
// issued so they can rejoin.
func (r *Registry) Handoff(ctx context.Context, from, to string) (domain.Token, error) {
	if from == to {
		return domain.Token{}, fmt.Errorf("%w: handoff needs two distinct sessions", domain.ErrInvalidArgument)
	}

	var (
		token           domain.Token
		moved, closed   bool
		targetState     domain.SessionState
		targetActivated bool
	)
	err := r.locks.WithLocks(ctx, []string{Key(from), Key(to)}, func(ctx context.Context) error {
		target, ok := r.load(to)
		if !ok {
			return fmt.Errorf("%w: session %q", domain.ErrNotFound, to)
		}
		if target.Closed() {
			return fmt.Errorf("%w: session %q", domain.ErrClosed, to)
		}
		if target.Occupied(domain.RoleCaller) {
			return fmt.Errorf("%w: session %q already has a caller", domain.ErrConflict, to)
		}

		var err error
		token, err = r.tokens.IssueToken(to, string(domain.RoleCaller), domain.ParticipantGrants)
		if err != nil {
			return fmt.Errorf("%w: issue token: %v", domain.ErrGateway, err)
		}

		source, ok := r.load(from)
		if !ok || !source.Occupied(domain.RoleCaller) {
			// Nobody to move; the credential lets the caller rejoin through JoinSession.
			return nil
		}
		moved = true
		closed = r.removeLocked(source, domain.RoleCaller)

		now := r.now()
		target = target.Clone()
		target.Participants[domain.RoleCaller] = domain.Participant{Role: domain.RoleCaller, Session: to, JoinedAt: now}
		target.UpdatedAt = now
		if target.State == domain.SessionForming && len(target.Participants) >= 2 {
			target.State = domain.SessionActive
			targetActivated = true
		}
		targetState = target.State
		r.store(target)
		return nil
	})
	if err != nil {
		return domain.Token{}, err
	}

	r.logger.Info("Caller handed off", "from", from, "to", to, "moved", moved)
	if !moved {
		return token, nil
	}
	r.afterLeave(ctx, from, domain.RoleCaller, closed)
	r.emit(ctx, domain.Event{Type: domain.EventParticipantJoined, Session: to, Role: domain.RoleCaller, State: targetState})
	if targetActivated {
		r.emit(ctx, domain.Event{Type: domain.EventSessionState, Session: to, State: targetState})
	}
	return token, nil
}

func (r *Registry) emit(ctx context.Context, ev domain.Event) {
	ev.Timestamp = r.now()
	r.notifier.Publish(ev.Session, ev)
	r.hooks.EmitSession(ctx, &ev)
}
