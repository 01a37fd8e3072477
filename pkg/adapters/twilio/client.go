// Package twilio bridges transfers onto the public phone network. It is optional:
// the room flow never depends on it.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/aretw0/warmtransfer/pkg/ports"
)

const DefaultBaseURL = "https://api.twilio.com/2010-04-01"

var ErrDisabled = errors.New("twilio integration not enabled")

type Config struct {
	AccountSID  string `envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken   string `envconfig:"TWILIO_AUTH_TOKEN"`
	PhoneNumber string `envconfig:"TWILIO_PHONE_NUMBER"`
	// WebhookURL is the public base URL Twilio calls back for conference markup.
	WebhookURL string `envconfig:"TWILIO_WEBHOOK_URL" default:"http://localhost:8000"`
	BaseURL    string `envconfig:"TWILIO_BASE_URL"`
}

// Enabled reports whether every credential is present.
func (c Config) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.PhoneNumber != ""
}

// Client is a minimal Twilio REST client for calls and messages.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ ports.Telephony = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Enabled() bool { return c.cfg.Enabled() }

// From is the configured outbound number.
func (c *Client) From() string { return c.cfg.PhoneNumber }

type resource struct {
	SID string `json:"sid"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// PlaceCall dials to and fetches call instructions from callbackURL.
func (c *Client) PlaceCall(ctx context.Context, to, from, callbackURL string) (string, error) {
	form := url.Values{
		"To":     {to},
		"From":   {from},
		"Url":    {callbackURL},
		"Method": {http.MethodPost},
	}
	var res resource
	if err := c.post(ctx, "Calls.json", form, &res); err != nil {
		return "", err
	}
	return res.SID, nil
}

// SendMessage sends an SMS. The boolean is false when the message was not accepted.
func (c *Client) SendMessage(ctx context.Context, to, from, body string) (bool, error) {
	form := url.Values{
		"To":   {to},
		"From": {from},
		"Body": {body},
	}
	var res resource
	if err := c.post(ctx, "Messages.json", form, &res); err != nil {
		return false, err
	}
	return res.SID != "", nil
}

func (c *Client) post(ctx context.Context, resourcePath string, form url.Values, out any) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountSID), resourcePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: twilio: %v", domain.ErrTimeout, err)
		}
		return fmt.Errorf("%w: twilio: %v", domain.ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: twilio: read body: %v", domain.ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Message != "" {
			return fmt.Errorf("%w: twilio %d: %s", domain.ErrGateway, ae.Code, ae.Message)
		}
		return fmt.Errorf("%w: twilio status %d", domain.ErrGateway, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: twilio: decode: %v", domain.ErrGateway, err)
	}
	return nil
}
