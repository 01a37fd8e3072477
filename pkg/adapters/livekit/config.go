// Package livekit talks to a LiveKit server: it signs participant access tokens
// and creates rooms through the RoomService Twirp API.
package livekit

import (
	"strings"
	"time"
)

// DefaultTokenTTL matches the lifetime LiveKit SDKs use for access tokens.
const DefaultTokenTTL = 6 * time.Hour

// Config holds LiveKit credentials. Field names follow the deployment's
// environment variables.
type Config struct {
	URL       string        `envconfig:"LIVEKIT_URL" default:"ws://localhost:7880"`
	APIKey    string        `envconfig:"LIVEKIT_API_KEY"`
	APISecret string        `envconfig:"LIVEKIT_API_SECRET"`
	TokenTTL  time.Duration `envconfig:"LIVEKIT_TOKEN_TTL" default:"6h"`
}

// Configured reports whether API credentials are present.
func (c Config) Configured() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// HTTPURL maps the websocket signalling URL clients use to the HTTP base URL of
// the server API.
func (c Config) HTTPURL() string {
	u := strings.TrimRight(c.URL, "/")
	switch {
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	}
	return u
}
