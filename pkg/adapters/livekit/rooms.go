package livekit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/aretw0/warmtransfer/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

const (
	createRoomPath = "/twirp/livekit.RoomService/CreateRoom"

	defaultEmptyTimeout    = 300
	defaultMaxParticipants = 10
)

// RoomService creates rooms via the LiveKit server API.
type RoomService struct {
	cfg    Config
	tokens *TokenIssuer
	client *http.Client
}

var _ ports.RoomProvider = (*RoomService)(nil)

type RoomOption func(*RoomService)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) RoomOption {
	return func(s *RoomService) {
		s.client = c
	}
}

func NewRoomService(cfg Config, opts ...RoomOption) *RoomService {
	s := &RoomService{
		cfg:    cfg,
		tokens: NewTokenIssuer(cfg),
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type createRoomRequest struct {
	Name            string `json:"name"`
	EmptyTimeout    uint32 `json:"empty_timeout"`
	MaxParticipants uint32 `json:"max_participants"`
	Metadata        string `json:"metadata,omitempty"`
}

// room mirrors the Twirp JSON Room message. int64 fields arrive as strings.
type room struct {
	domain.RoomInfo `mapstructure:",squash"`
	CreationTime    int64 `mapstructure:"creation_time"`
}

type twirpError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// CreateRoom creates (or returns the existing) room with the given name.
func (s *RoomService) CreateRoom(ctx context.Context, name string, metadata map[string]string) (domain.RoomInfo, error) {
	token, err := s.tokens.serviceToken(&videoGrant{RoomCreate: true})
	if err != nil {
		return domain.RoomInfo{}, err
	}

	reqBody := createRoomRequest{
		Name:            name,
		EmptyTimeout:    defaultEmptyTimeout,
		MaxParticipants: defaultMaxParticipants,
	}
	if len(metadata) > 0 {
		meta, err := json.Marshal(metadata)
		if err != nil {
			return domain.RoomInfo{}, fmt.Errorf("failed to encode room metadata: %w", err)
		}
		reqBody.Metadata = string(meta)
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return domain.RoomInfo{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.HTTPURL()+createRoomPath, bytes.NewReader(body))
	if err != nil {
		return domain.RoomInfo{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.RoomInfo{}, fmt.Errorf("livekit create room: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.RoomInfo{}, fmt.Errorf("livekit create room: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var te twirpError
		if json.Unmarshal(raw, &te) == nil && te.Code != "" {
			return domain.RoomInfo{}, fmt.Errorf("livekit create room: %s: %s", te.Code, te.Msg)
		}
		return domain.RoomInfo{}, fmt.Errorf("livekit create room: unexpected status %d", resp.StatusCode)
	}

	return decodeRoom(raw)
}

func decodeRoom(raw []byte) (domain.RoomInfo, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.RoomInfo{}, fmt.Errorf("livekit create room: decode: %w", err)
	}

	var r room
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &r,
	})
	if err != nil {
		return domain.RoomInfo{}, err
	}
	if err := dec.Decode(payload); err != nil {
		return domain.RoomInfo{}, fmt.Errorf("livekit create room: decode room: %w", err)
	}

	info := r.RoomInfo
	if r.CreationTime > 0 {
		info.CreatedAt = time.Unix(r.CreationTime, 0).UTC()
	}
	return info, nil
}
