package twilio

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/aretw0/warmtransfer/pkg/ports"
)

const conferencePrefix = "warm-transfer-"

// ConferenceName is the phone conference that hosts a transfer.
func ConferenceName(transferID string) string {
	return conferencePrefix + transferID
}

// TransferID extracts the transfer identifier from a conference name.
func TransferID(conference string) (string, bool) {
	id, ok := strings.CutPrefix(conference, conferencePrefix)
	return id, ok && id != ""
}

// DialResult identifies the two legs of a phone transfer.
type DialResult struct {
	AgentCallID  string `json:"agent_call_sid"`
	CallerCallID string `json:"caller_call_sid"`
	Conference   string `json:"conference_name"`
}

// Bridge maps transfer records onto telephony calls.
type Bridge struct {
	tel        ports.Telephony
	from       string
	webhookURL string
}

func NewBridge(tel ports.Telephony, from, webhookURL string) *Bridge {
	return &Bridge{
		tel:        tel,
		from:       from,
		webhookURL: strings.TrimRight(webhookURL, "/"),
	}
}

func requireSummary(rec domain.TransferRecord) error {
	if rec.Status != domain.TransferBriefed && rec.Status != domain.TransferCompleted {
		return fmt.Errorf("%w: transfer %s is %s", domain.ErrInvalidState, rec.ID, rec.Status)
	}
	return nil
}

// SendSummary texts the transfer summary to the receiving agent.
func (b *Bridge) SendSummary(ctx context.Context, rec domain.TransferRecord, agentPhone string) (bool, error) {
	if err := requireSummary(rec); err != nil {
		return false, err
	}
	return b.tel.SendMessage(ctx, agentPhone, b.from, "Warm Transfer Summary: "+rec.Summary)
}

// Dial calls the agent first, then the caller, into the transfer's conference.
func (b *Bridge) Dial(ctx context.Context, rec domain.TransferRecord, callerPhone, agentPhone string) (DialResult, error) {
	if err := requireSummary(rec); err != nil {
		return DialResult{}, err
	}
	name := ConferenceName(rec.ID)
	res := DialResult{Conference: name}

	var err error
	res.AgentCallID, err = b.tel.PlaceCall(ctx, agentPhone, b.from, b.callbackURL(name, "agent"))
	if err != nil {
		return res, fmt.Errorf("dial agent: %w", err)
	}
	res.CallerCallID, err = b.tel.PlaceCall(ctx, callerPhone, b.from, b.callbackURL(name, "caller"))
	if err != nil {
		return res, fmt.Errorf("dial caller: %w", err)
	}
	return res, nil
}

func (b *Bridge) callbackURL(conference, leg string) string {
	return b.webhookURL + "/api/twilio/conference/" + url.PathEscape(conference) + "?leg=" + leg
}

type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Say     string   `xml:"Say,omitempty"`
	Dial    struct {
		Conference string `xml:"Conference"`
	} `xml:"Dial"`
}

func render(say, conference string) (string, error) {
	var doc twiml
	doc.Say = say
	doc.Dial.Conference = conference
	out, err := xml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return xml.Header + string(out), nil
}

// ConferenceTwiML announces the summary to the receiving agent and joins the conference.
func ConferenceTwiML(conference, summary string) (string, error) {
	return render("Warm transfer initiated. Call summary: "+summary, conference)
}

// CallerTwiML holds the caller with a short message and joins the conference.
func CallerTwiML(conference string) (string, error) {
	return render("Please hold while we connect you to the next available agent.", conference)
}
