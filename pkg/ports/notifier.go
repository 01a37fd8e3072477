package ports

import "github.com/aretw0/warmtransfer/pkg/domain"

// Notifier delivers session events to observers. Publish never blocks.
type Notifier interface {
	Publish(session string, ev domain.Event)
	// CloseSession ends every subscription of the session.
	CloseSession(session string)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Publish(string, domain.Event) {}
func (NopNotifier) CloseSession(string)          {}
