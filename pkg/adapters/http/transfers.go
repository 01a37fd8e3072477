package http

import (
	"net/http"

	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/go-chi/chi/v5"
)

var nextSteps = []string{
	"Agent A should explain summary to Agent B",
	"Agent A should exit original room",
	"Caller will be connected to Agent B",
}

type transferRequest struct {
	FromRoom   string `json:"from_room"`
	ToRoom     string `json:"to_room"`
	CallerRoom string `json:"caller_room"`
}

func (s *Server) initiateTransfer(w http.ResponseWriter, r *http.Request) {
	var body transferRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, f := range []struct{ name, value string }{
		{"from_room", body.FromRoom},
		{"to_room", body.ToRoom},
		{"caller_room", body.CallerRoom},
	} {
		if err := required(f.name, f.value); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	rec, err := s.svc.Coordinator.InitiateTransfer(r.Context(), body.FromRoom, body.ToRoom, body.CallerRoom)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transfer_id":  rec.ID,
		"status":       rec.Status,
		"call_summary": rec.Summary,
		"next_steps":   nextSteps,
		"transfer":     rec,
	})
}

func (s *Server) completeTransfer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "transfer_id")
	rec, tok, err := s.svc.Coordinator.CompleteTransferWithToken(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transfer_id": rec.ID,
		"status":      rec.Status,
		"room_name":   tok.Room,
		"token":       tok.Value,
		"url":         tok.URL,
		"transfer":    rec,
	})
}

func (s *Server) getTransfer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "transfer_id")
	rec, ok := s.svc.Coordinator.GetTransfer(id)
	if !ok {
		s.writeError(w, r, notFound("transfer", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getTransferSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "transfer_id")
	summary, err := s.svc.Coordinator.Summary(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transfer_id": id, "summary": summary})
}

func (s *Server) listTransfers(w http.ResponseWriter, r *http.Request) {
	transfers := s.svc.Coordinator.ListTransfers()
	if transfers == nil {
		transfers = []domain.TransferRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

type summaryRequest struct {
	RoomName            string   `json:"room_name"`
	ConversationHistory []string `json:"conversation_history"`
}

func (s *Server) generateSummary(w http.ResponseWriter, r *http.Request) {
	var body summaryRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := required("room_name", body.RoomName); err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.svc.Summarize(r.Context(), body.RoomName, body.ConversationHistory)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}
