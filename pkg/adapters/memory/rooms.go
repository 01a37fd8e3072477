// Package memory provides in-process media adapters for development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/warmtransfer/pkg/domain"
)

// Rooms is an in-process ports.RoomProvider.
type Rooms struct {
	mu              sync.Mutex
	rooms           map[string]domain.RoomInfo
	maxParticipants uint32
	seq             atomic.Uint64

	// Err, when set, is returned by CreateRoom.
	Err error
}

// NewRooms creates an empty provider.
func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]domain.RoomInfo), maxParticipants: 10}
}

func (r *Rooms) CreateRoom(_ context.Context, name string, metadata map[string]string) (domain.RoomInfo, error) {
	if r.Err != nil {
		return domain.RoomInfo{}, r.Err
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return domain.RoomInfo{}, err
	}
	info := domain.RoomInfo{
		Name:            name,
		SID:             fmt.Sprintf("RM_%06d", r.seq.Add(1)),
		MaxParticipants: r.maxParticipants,
		Metadata:        string(meta),
		CreatedAt:       time.Now(),
	}
	r.mu.Lock()
	r.rooms[name] = info
	r.mu.Unlock()
	return info, nil
}

// Room returns the last room created under name.
func (r *Rooms) Room(name string) (domain.RoomInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.rooms[name]
	return info, ok
}

// Tokens is a ports.TokenIssuer producing readable, unsigned credentials.
type Tokens struct {
	URL string
	seq atomic.Uint64
}

func (t *Tokens) IssueToken(room, identity string, grants domain.Grants) (domain.Token, error) {
	if !grants.RoomJoin {
		return domain.Token{}, fmt.Errorf("token for %s in %s has no join grant", identity, room)
	}
	return domain.Token{
		Value:    fmt.Sprintf("dev.%s.%s.%d", room, identity, t.seq.Add(1)),
		Room:     room,
		Identity: identity,
		URL:      t.URL,
	}, nil
}
