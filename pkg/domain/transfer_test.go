package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var allStatuses = []domain.TransferStatus{
	domain.TransferInitiated,
	domain.TransferBriefed,
	domain.TransferCompleted,
	domain.TransferFailed,
	domain.TransferExpired,
}

func TestTransferStatus_Edges(t *testing.T) {
	tests := []struct {
		from, to domain.TransferStatus
		ok       bool
	}{
		{domain.TransferInitiated, domain.TransferBriefed, true},
		{domain.TransferInitiated, domain.TransferFailed, true},
		{domain.TransferInitiated, domain.TransferExpired, true},
		{domain.TransferInitiated, domain.TransferCompleted, false},
		{domain.TransferBriefed, domain.TransferCompleted, true},
		{domain.TransferBriefed, domain.TransferExpired, true},
		{domain.TransferBriefed, domain.TransferInitiated, false},
		{domain.TransferCompleted, domain.TransferExpired, false},
		{domain.TransferFailed, domain.TransferBriefed, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestTransferRecord_TransitionStampsTime(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := domain.TransferRecord{ID: "t1", Status: domain.TransferInitiated, CreatedAt: created, UpdatedAt: created}

	later := created.Add(time.Second)
	require.NoError(t, rec.Transition(domain.TransferBriefed, later))
	assert.Equal(t, domain.TransferBriefed, rec.Status)
	assert.Equal(t, later, rec.UpdatedAt)

	err := rec.Transition(domain.TransferInitiated, later)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, domain.TransferBriefed, rec.Status)
}

func TestTransferStatus_TerminalHasNoExit(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		from := rapid.SampledFrom(allStatuses).Draw(t, "from")
		to := rapid.SampledFrom(allStatuses).Draw(t, "to")

		rec := domain.TransferRecord{ID: "x", Status: from}
		err := rec.Transition(to, time.Now())
		if from.Terminal() {
			if err == nil {
				t.Fatalf("transition out of terminal %s to %s accepted", from, to)
			}
			if rec.Status != from {
				t.Fatalf("terminal record mutated to %s", rec.Status)
			}
		}
	})
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want domain.Kind
	}{
		{fmt.Errorf("%w: session r1", domain.ErrNotFound), domain.KindNotFound},
		{fmt.Errorf("%w: slot caller", domain.ErrConflict), domain.KindConflict},
		{domain.ErrInvalidState, domain.KindInvalidState},
		{domain.ErrClosed, domain.KindClosed},
		{fmt.Errorf("%w: %w", domain.ErrGateway, domain.ErrTimeout), domain.KindTimeout},
		{fmt.Errorf("%w: upstream 500", domain.ErrGateway), domain.KindGateway},
		{domain.ErrInvalidArgument, domain.KindInvalidArgument},
		{errors.New("boom"), domain.KindInternal},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.KindOf(tt.err))
	}
}

func TestParseRole(t *testing.T) {
	r, err := domain.ParseRole(" agent_b ")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAgentB, r)

	_, err = domain.ParseRole("supervisor")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
