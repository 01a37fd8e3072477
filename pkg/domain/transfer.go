package domain

import (
	"fmt"
	"time"
)

// TransferStatus is the state of one handoff attempt.
type TransferStatus string

const (
	TransferInitiated TransferStatus = "initiated"
	TransferBriefed   TransferStatus = "briefed"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
	TransferExpired   TransferStatus = "expired"
)

// transitions enumerates every legal edge of the transfer state machine.
var transitions = map[TransferStatus][]TransferStatus{
	TransferInitiated: {TransferBriefed, TransferFailed, TransferExpired},
	TransferBriefed:   {TransferCompleted, TransferFailed, TransferExpired},
}

// Terminal reports whether no transition leaves s.
func (s TransferStatus) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// CanTransition reports whether s -> to is a legal edge.
func (s TransferStatus) CanTransition(to TransferStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// TransferRecord tracks one handoff attempt. Session ids are weak references:
// a record outlives the sessions it names.
type TransferRecord struct {
	ID            string         `json:"id"`
	Source        string         `json:"from_room"`
	Target        string         `json:"to_room"`
	Caller        string         `json:"caller_room"`
	Status        TransferStatus `json:"status"`
	Summary       string         `json:"summary,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Transition moves the record to the given status, stamping UpdatedAt.
func (t *TransferRecord) Transition(to TransferStatus, now time.Time) error {
	if !t.Status.CanTransition(to) {
		return fmt.Errorf("%w: transfer %s cannot move from %s to %s", ErrInvalidState, t.ID, t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = now
	return nil
}

// Pending reports whether the record still blocks its source session.
func (t TransferRecord) Pending() bool {
	return !t.Status.Terminal()
}
