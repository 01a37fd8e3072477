package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/warmtransfer/pkg/adapters/memory"
	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/aretw0/warmtransfer/pkg/notify"
	"github.com/aretw0/warmtransfer/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newRegistry(opts ...session.Option) *session.Registry {
	return session.NewRegistry(memory.NewRooms(), &memory.Tokens{}, opts...)
}

type recordingObserver struct {
	mu     sync.Mutex
	left   []string
	closed []string
}

func (o *recordingObserver) ParticipantLeft(_ context.Context, d session.Departure) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.left = append(o.left, d.Session+"/"+string(d.Role))
	if d.Closed {
		o.closed = append(o.closed, d.Session)
	}
}

func TestRegistry_CreateJoinActivates(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry()

	s, tok, err := reg.CreateSession(ctx, "r1", domain.RoleCaller)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionForming, s.State)
	assert.Equal(t, "caller", tok.Identity)
	assert.Equal(t, "r1", s.Room.Name)

	tok, err = reg.JoinSession(ctx, "r1", domain.RoleAgentA)
	require.NoError(t, err)
	assert.Equal(t, "agent_a", tok.Identity)

	got, ok := reg.GetSession("r1")
	require.True(t, ok)
	assert.Equal(t, domain.SessionActive, got.State)
	assert.Equal(t, []domain.Role{domain.RoleCaller, domain.RoleAgentA}, got.Occupants())
}

func TestRegistry_CreateConflictsAndReplacesClosed(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry()

	_, _, err := reg.CreateSession(ctx, "r1", domain.RoleCaller)
	require.NoError(t, err)

	_, _, err = reg.CreateSession(ctx, "r1", domain.RoleAgentA)
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, reg.LeaveSession(ctx, "r1", domain.RoleCaller))
	s, _ := reg.GetSession("r1")
	require.Equal(t, domain.SessionClosed, s.State)

	s, _, err = reg.CreateSession(ctx, "r1", domain.RoleAgentA)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionForming, s.State)
	assert.Equal(t, []domain.Role{domain.RoleAgentA}, s.Occupants())
}

func TestRegistry_CreateRoomFailureLeavesNoEntry(t *testing.T) {
	rooms := memory.NewRooms()
	rooms.Err = errors.New("livekit unreachable")
	reg := session.NewRegistry(rooms, &memory.Tokens{})

	_, _, err := reg.CreateSession(context.Background(), "r1", domain.RoleCaller)
	assert.ErrorIs(t, err, domain.ErrGateway)
	_, ok := reg.GetSession("r1")
	assert.False(t, ok)
}

func TestRegistry_JoinErrors(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry()

	_, err := reg.JoinSession(ctx, "ghost", domain.RoleCaller)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = reg.CreateSession(ctx, "r1", domain.RoleCaller)
	require.NoError(t, err)
	_, err = reg.JoinSession(ctx, "r1", domain.RoleCaller)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = reg.JoinSession(ctx, "r1", domain.Role("supervisor"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	require.NoError(t, reg.LeaveSession(ctx, "r1", domain.RoleCaller))
	_, err = reg.JoinSession(ctx, "r1", domain.RoleAgentA)
	assert.ErrorIs(t, err, domain.ErrClosed)
}

func TestRegistry_LeaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	reg := newRegistry()
	reg.Observe(obs)

	_, _, _ = reg.CreateSession(ctx, "r1", domain.RoleCaller)
	_, _ = reg.JoinSession(ctx, "r1", domain.RoleAgentA)

	require.NoError(t, reg.LeaveSession(ctx, "r1", domain.RoleAgentA))
	before, _ := reg.GetSession("r1")
	require.NoError(t, reg.LeaveSession(ctx, "r1", domain.RoleAgentA))
	after, _ := reg.GetSession("r1")

	assert.Equal(t, before, after)
	assert.Equal(t, []string{"r1/agent_a"}, obs.left)
	assert.NoError(t, reg.LeaveSession(ctx, "unknown", domain.RoleCaller))
}

func TestRegistry_LastLeaveClosesAndNotifies(t *testing.T) {
	ctx := context.Background()
	hub := notify.NewHub()
	obs := &recordingObserver{}
	reg := newRegistry(session.WithNotifier(hub))
	reg.Observe(obs)

	_, _, _ = reg.CreateSession(ctx, "r1", domain.RoleCaller)
	events, cancel := hub.Subscribe(ctx, "r1")
	defer cancel()

	require.NoError(t, reg.LeaveSession(ctx, "r1", domain.RoleCaller))

	var types []domain.EventType
	for ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []domain.EventType{domain.EventParticipantLeft, domain.EventSessionClosed}, types)
	assert.Equal(t, []string{"r1"}, obs.closed)
}

func TestRegistry_MarkTransferring(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry()
	_, _, _ = reg.CreateSession(ctx, "r1", domain.RoleCaller)
	_, _ = reg.JoinSession(ctx, "r1", domain.RoleAgentA)

	require.NoError(t, reg.MarkTransferring(ctx, "r1", true))
	s, _ := reg.GetSession("r1")
	assert.Equal(t, domain.SessionTransferring, s.State)

	require.NoError(t, reg.MarkTransferring(ctx, "r1", false))
	s, _ = reg.GetSession("r1")
	assert.Equal(t, domain.SessionActive, s.State)

	assert.ErrorIs(t, reg.MarkTransferring(ctx, "ghost", true), domain.ErrNotFound)
}

func TestRegistry_Handoff(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	reg := newRegistry()
	reg.Observe(obs)

	_, _, _ = reg.CreateSession(ctx, "r1", domain.RoleCaller)
	_, _ = reg.JoinSession(ctx, "r1", domain.RoleAgentA)
	_, _, _ = reg.CreateSession(ctx, "r2", domain.RoleAgentB)

	tok, err := reg.Handoff(ctx, "r1", "r2")
	require.NoError(t, err)
	assert.Equal(t, "r2", tok.Room)
	assert.Equal(t, "caller", tok.Identity)

	src, _ := reg.GetSession("r1")
	dst, _ := reg.GetSession("r2")
	assert.Equal(t, []domain.Role{domain.RoleAgentA}, src.Occupants())
	assert.Equal(t, []domain.Role{domain.RoleCaller, domain.RoleAgentB}, dst.Occupants())
	assert.Equal(t, domain.SessionActive, dst.State)
	assert.Equal(t, []string{"r1/caller"}, obs.left)

	_, err = reg.Handoff(ctx, "r1", "r2")
	assert.ErrorIs(t, err, domain.ErrConflict, "target caller slot is occupied")

	_, err = reg.Handoff(ctx, "r1", "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_HandoffWithoutCaller(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry()
	_, _, _ = reg.CreateSession(ctx, "r1", domain.RoleAgentA)
	_, _, _ = reg.CreateSession(ctx, "r2", domain.RoleAgentB)

	tok, err := reg.Handoff(ctx, "r1", "r2")
	require.NoError(t, err)
	assert.Equal(t, "r2", tok.Room)
	assert.Equal(t, "caller", tok.Identity)

	src, _ := reg.GetSession("r1")
	assert.Equal(t, []domain.Role{domain.RoleAgentA}, src.Occupants())
	dst, _ := reg.GetSession("r2")
	assert.Equal(t, []domain.Role{domain.RoleAgentB}, dst.Occupants(), "no caller moved, so none is seated")
	assert.Equal(t, domain.SessionForming, dst.State)

	// The credential is for rejoining: the slot is still free.
	_, err = reg.JoinSession(ctx, "r2", domain.RoleCaller)
	require.NoError(t, err)
}

func TestRegistry_ConcurrentJoinOneWinner(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry()
	_, _, _ = reg.CreateSession(ctx, "r1", domain.RoleCaller)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.JoinSession(ctx, "r1", domain.RoleAgentA); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrConflict)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRegistry_SlotInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		reg := newRegistry()
		if _, _, err := reg.CreateSession(ctx, "s", domain.RoleCaller); err != nil {
			t.Fatalf("create: %v", err)
		}
		occupied := map[domain.Role]bool{domain.RoleCaller: true}
		closed := false

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			role := rapid.SampledFrom(domain.Roles).Draw(t, "role")
			if rapid.Bool().Draw(t, "join") {
				_, err := reg.JoinSession(ctx, "s", role)
				switch {
				case closed:
					if !errors.Is(err, domain.ErrClosed) {
						t.Fatalf("join on closed session: %v", err)
					}
				case occupied[role]:
					if !errors.Is(err, domain.ErrConflict) {
						t.Fatalf("double join of %s: %v", role, err)
					}
				default:
					if err != nil {
						t.Fatalf("join %s: %v", role, err)
					}
					occupied[role] = true
				}
			} else {
				if err := reg.LeaveSession(ctx, "s", role); err != nil {
					t.Fatalf("leave %s: %v", role, err)
				}
				if occupied[role] {
					delete(occupied, role)
					closed = closed || len(occupied) == 0
				}
			}

			s, _ := reg.GetSession("s")
			if len(s.Participants) != len(occupied) {
				t.Fatalf("registry has %v, model has %v", s.Occupants(), occupied)
			}
			if s.Closed() != closed {
				t.Fatalf("closed=%v, model closed=%v", s.Closed(), closed)
			}
		}
	})
}
