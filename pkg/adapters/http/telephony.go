package http

import (
	"net/http"

	"github.com/aretw0/warmtransfer/pkg/adapters/twilio"
	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/go-chi/chi/v5"
)

type phoneRequest struct {
	TransferID  string `json:"transfer_id"`
	CallerPhone string `json:"caller_phone"`
	AgentPhone  string `json:"agent_phone"`
}

func (s *Server) phoneTransfer(w http.ResponseWriter, r *http.Request) (phoneRequest, domain.TransferRecord, bool) {
	var body phoneRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return body, domain.TransferRecord{}, false
	}
	body.TransferID = field(r, "transfer_id", body.TransferID)
	body.CallerPhone = field(r, "caller_phone", body.CallerPhone)
	body.AgentPhone = field(r, "agent_phone", body.AgentPhone)
	if err := required("transfer_id", body.TransferID); err != nil {
		s.writeError(w, r, err)
		return body, domain.TransferRecord{}, false
	}
	if err := required("agent_phone", body.AgentPhone); err != nil {
		s.writeError(w, r, err)
		return body, domain.TransferRecord{}, false
	}
	rec, ok := s.svc.Coordinator.GetTransfer(body.TransferID)
	if !ok {
		s.writeError(w, r, notFound("transfer", body.TransferID))
		return body, domain.TransferRecord{}, false
	}
	return body, rec, true
}

func (s *Server) twilioTransfer(w http.ResponseWriter, r *http.Request) {
	body, rec, ok := s.phoneTransfer(w, r)
	if !ok {
		return
	}
	if err := required("caller_phone", body.CallerPhone); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.bridge.Dial(r.Context(), rec, body.CallerPhone, body.AgentPhone)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "transfer_info": res})
}

func (s *Server) twilioSMS(w http.ResponseWriter, r *http.Request) {
	body, rec, ok := s.phoneTransfer(w, r)
	if !ok {
		return
	}
	sent, err := s.bridge.SendSummary(r.Context(), rec, body.AgentPhone)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := "success"
	if !sent {
		status = "failed"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// twilioConference serves the call instructions Twilio fetches for each leg.
func (s *Server) twilioConference(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "conference_name")

	var (
		markup string
		err    error
	)
	if r.URL.Query().Get("leg") == "caller" {
		markup, err = twilio.CallerTwiML(name)
	} else {
		summary := r.URL.Query().Get("call_summary")
		if id, ok := twilio.TransferID(name); ok {
			if sum, serr := s.svc.Coordinator.Summary(id); serr == nil {
				summary = sum
			}
		}
		markup, err = twilio.ConferenceTwiML(name, summary)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(markup))
}
