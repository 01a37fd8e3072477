package ports

import "context"

// Telephony is the optional phone transport. It is orthogonal to the room flow.
type Telephony interface {
	PlaceCall(ctx context.Context, to, from, callbackURL string) (callID string, err error)
	SendMessage(ctx context.Context, to, from, body string) (bool, error)
}
