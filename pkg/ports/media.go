package ports

import (
	"context"

	"github.com/aretw0/warmtransfer/pkg/domain"
)

// RoomProvider creates the real-time room backing a session.
type RoomProvider interface {
	CreateRoom(ctx context.Context, name string, metadata map[string]string) (domain.RoomInfo, error)
}

// TokenIssuer signs join credentials. Issuance is local and does not block on I/O.
type TokenIssuer interface {
	IssueToken(room, identity string, grants domain.Grants) (domain.Token, error)
}
