package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRooms_CreateRoom(t *testing.T) {
	rooms := NewRooms()
	info, err := rooms.CreateRoom(context.Background(), "r1", map[string]string{"participant_type": "caller"})
	require.NoError(t, err)
	assert.Equal(t, "r1", info.Name)
	assert.Equal(t, uint32(10), info.MaxParticipants)
	assert.JSONEq(t, `{"participant_type":"caller"}`, info.Metadata)

	stored, ok := rooms.Room("r1")
	assert.True(t, ok)
	assert.Equal(t, info.SID, stored.SID)

	rooms.Err = errors.New("down")
	_, err = rooms.CreateRoom(context.Background(), "r2", nil)
	assert.Error(t, err)
}

func TestTokens_IssueToken(t *testing.T) {
	tokens := &Tokens{URL: "ws://localhost:7880"}
	a, err := tokens.IssueToken("r1", "caller", domain.ParticipantGrants)
	require.NoError(t, err)
	b, err := tokens.IssueToken("r1", "caller", domain.ParticipantGrants)
	require.NoError(t, err)
	assert.NotEqual(t, a.Value, b.Value)
	assert.Equal(t, "ws://localhost:7880", a.URL)

	_, err = tokens.IssueToken("r1", "caller", domain.Grants{})
	assert.Error(t, err)
}
