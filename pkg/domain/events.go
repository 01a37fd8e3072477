package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSessionCreated    EventType = "session.created"
	EventParticipantJoined EventType = "participant.joined"
	EventParticipantLeft   EventType = "participant.left"
	EventSessionState      EventType = "session.state"
	EventSessionClosed     EventType = "session.closed"
	EventContextAppended   EventType = "context.appended"

	EventTransferInitiated EventType = "transfer.initiated"
	EventTransferBriefed   EventType = "transfer.briefed"
	EventTransferCompleted EventType = "transfer.completed"
	EventTransferFailed    EventType = "transfer.failed"
	EventTransferExpired   EventType = "transfer.expired"
)

// TransferEventType maps a transfer status to the event announcing it.
func TransferEventType(s TransferStatus) EventType {
	return EventType("transfer." + string(s))
}

// Event is a state change pushed to session observers.
type Event struct {
	Type      EventType       `json:"type"`
	Session   string          `json:"session"`
	Timestamp time.Time       `json:"timestamp"`
	Role      Role            `json:"role,omitempty"`
	State     SessionState    `json:"state,omitempty"`
	Transfer  *TransferRecord `json:"transfer,omitempty"`
	Token     *Token          `json:"token,omitempty"`
	Entry     *ContextEntry   `json:"entry,omitempty"`
}

// SummarizeEvent reports one call to the text-generation provider.
type SummarizeEvent struct {
	Utterances int
	Duration   time.Duration
	Err        error
}

// LifecycleHooks defines callbacks for observability. Nil fields are skipped.
type LifecycleHooks struct {
	OnSessionEvent  func(context.Context, *Event)
	OnTransferEvent func(context.Context, *Event)
	OnSummarize     func(context.Context, *SummarizeEvent)
}

// EmitSession invokes OnSessionEvent when set.
func (h LifecycleHooks) EmitSession(ctx context.Context, ev *Event) {
	if h.OnSessionEvent != nil {
		h.OnSessionEvent(ctx, ev)
	}
}

// EmitTransfer invokes OnTransferEvent when set.
func (h LifecycleHooks) EmitTransfer(ctx context.Context, ev *Event) {
	if h.OnTransferEvent != nil {
		h.OnTransferEvent(ctx, ev)
	}
}

// EmitSummarize invokes OnSummarize when set.
func (h LifecycleHooks) EmitSummarize(ctx context.Context, ev *SummarizeEvent) {
	if h.OnSummarize != nil {
		h.OnSummarize(ctx, ev)
	}
}

// Merge returns hooks that call h and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnSessionEvent: func(ctx context.Context, ev *Event) {
			h.EmitSession(ctx, ev)
			other.EmitSession(ctx, ev)
		},
		OnTransferEvent: func(ctx context.Context, ev *Event) {
			h.EmitTransfer(ctx, ev)
			other.EmitTransfer(ctx, ev)
		},
		OnSummarize: func(ctx context.Context, ev *SummarizeEvent) {
			h.EmitSummarize(ctx, ev)
			other.EmitSummarize(ctx, ev)
		},
	}
}
