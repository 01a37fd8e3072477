package livekit

import (
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/aretw0/warmtransfer/pkg/ports"
	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingCredentials = errors.New("livekit api key and secret are required")

// videoGrant is the "video" claim LiveKit reads from access tokens.
type videoGrant struct {
	RoomCreate   bool   `json:"roomCreate,omitempty"`
	RoomList     bool   `json:"roomList,omitempty"`
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	Room         string `json:"room,omitempty"`
	CanPublish   *bool  `json:"canPublish,omitempty"`
	CanSubscribe *bool  `json:"canSubscribe,omitempty"`
}

type claims struct {
	jwt.RegisteredClaims
	Name  string      `json:"name,omitempty"`
	Video *videoGrant `json:"video,omitempty"`
}

// TokenIssuer signs HS256 access tokens with the API secret.
type TokenIssuer struct {
	cfg Config
	now func() time.Time
}

var _ ports.TokenIssuer = (*TokenIssuer)(nil)

// NewTokenIssuer creates an issuer. A zero TokenTTL uses DefaultTokenTTL.
func NewTokenIssuer(cfg Config) *TokenIssuer {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &TokenIssuer{cfg: cfg, now: time.Now}
}

// IssueToken signs a join token for identity in room.
func (t *TokenIssuer) IssueToken(room, identity string, grants domain.Grants) (domain.Token, error) {
	if !grants.RoomJoin {
		return domain.Token{}, fmt.Errorf("token for %q in %q carries no room grant", identity, room)
	}
	grant := &videoGrant{
		RoomJoin:     true,
		Room:         room,
		CanPublish:   boolPtr(grants.CanPublish),
		CanSubscribe: boolPtr(grants.CanSubscribe),
	}
	now := t.now()
	signed, err := t.sign(identity, grant, now, t.cfg.TokenTTL)
	if err != nil {
		return domain.Token{}, err
	}
	return domain.Token{
		Value:     signed,
		Room:      room,
		Identity:  identity,
		URL:       t.cfg.URL,
		ExpiresAt: now.Add(t.cfg.TokenTTL).UTC(),
	}, nil
}

// serviceToken signs a short-lived token for server API calls.
func (t *TokenIssuer) serviceToken(grant *videoGrant) (string, error) {
	return t.sign("", grant, t.now(), 10*time.Minute)
}

func (t *TokenIssuer) sign(identity string, grant *videoGrant, now time.Time, ttl time.Duration) (string, error) {
	if !t.cfg.Configured() {
		return "", ErrMissingCredentials
	}
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.APIKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:  identity,
		Video: grant,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(t.cfg.APISecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign livekit token: %w", err)
	}
	return signed, nil
}

func boolPtr(b bool) *bool { return &b }
