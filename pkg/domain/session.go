package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is a participant slot within a session.
type Role string

const (
	RoleCaller Role = "caller"
	RoleAgentA Role = "agent_a"
	RoleAgentB Role = "agent_b"
)

// Roles lists the slots of a session in their canonical order.
var Roles = []Role{RoleCaller, RoleAgentA, RoleAgentB}

// ParseRole validates a role tag coming from an inbound request.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	for _, known := range Roles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown participant type %q", ErrInvalidArgument, s)
}

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	SessionForming      SessionState = "forming"
	SessionActive       SessionState = "active"
	SessionTransferring SessionState = "transferring"
	SessionClosed       SessionState = "closed"
)

// Participant occupies one role slot of a session.
type Participant struct {
	Role     Role      `json:"role"`
	Session  string    `json:"session"`
	JoinedAt time.Time `json:"joined_at"`
}

// Session is one logical call with up to three role slots.
type Session struct {
	Name         string               `json:"name"`
	State        SessionState         `json:"state"`
	Participants map[Role]Participant `json:"participants"`
	Room         RoomInfo             `json:"room_info"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// NewSession returns a forming session with no occupants.
func NewSession(name string, room RoomInfo, now time.Time) Session {
	return Session{
		Name:         name,
		State:        SessionForming,
		Participants: make(map[Role]Participant, len(Roles)),
		Room:         room,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy, safe to hand to callers.
func (s Session) Clone() Session {
	out := s
	out.Participants = make(map[Role]Participant, len(s.Participants))
	for r, p := range s.Participants {
		out.Participants[r] = p
	}
	return out
}

// Occupied reports whether the given slot has an occupant.
func (s Session) Occupied(r Role) bool {
	_, ok := s.Participants[r]
	return ok
}

// Occupants returns the occupied roles in canonical order.
func (s Session) Occupants() []Role {
	out := make([]Role, 0, len(s.Participants))
	for _, r := range Roles {
		if s.Occupied(r) {
			out = append(out, r)
		}
	}
	return out
}

// Closed reports whether the session reached its terminal state.
func (s Session) Closed() bool {
	return s.State == SessionClosed
}
