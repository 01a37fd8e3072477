package domain

import "time"

// ContextEntry is one recorded utterance of a session.
type ContextEntry struct {
	Seq  uint64    `json:"seq"`
	Text string    `json:"text"`
	At   time.Time `json:"timestamp"`
}

// RoomInfo describes the real-time room backing a session.
type RoomInfo struct {
	Name            string    `json:"name" mapstructure:"name"`
	SID             string    `json:"sid,omitempty" mapstructure:"sid"`
	MaxParticipants uint32    `json:"max_participants" mapstructure:"max_participants"`
	NumParticipants uint32    `json:"num_participants" mapstructure:"num_participants"`
	Metadata        string    `json:"metadata,omitempty" mapstructure:"metadata"`
	CreatedAt       time.Time `json:"created_at" mapstructure:"-"`
}

// Grants scopes what a credential allows inside a room.
type Grants struct {
	RoomJoin     bool `json:"room_join"`
	CanPublish   bool `json:"can_publish"`
	CanSubscribe bool `json:"can_subscribe"`
}

// ParticipantGrants are the capabilities every session participant receives.
var ParticipantGrants = Grants{RoomJoin: true, CanPublish: true, CanSubscribe: true}

// Token is an opaque join credential scoped to a room and identity.
type Token struct {
	Value     string    `json:"token"`
	Room      string    `json:"room_name"`
	Identity  string    `json:"identity"`
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}
