package http

import (
	"net/http"
	"strconv"

	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/go-chi/chi/v5"
)

type roomRequest struct {
	RoomName        string `json:"room_name"`
	ParticipantType string `json:"participant_type"`
}

func (s *Server) roomParams(w http.ResponseWriter, r *http.Request) (string, domain.Role, error) {
	var body roomRequest
	if err := decode(w, r, &body); err != nil {
		return "", "", err
	}
	name := chi.URLParam(r, "room_name")
	if name == "" {
		name = field(r, "room_name", body.RoomName)
	}
	if err := required("room_name", name); err != nil {
		return "", "", err
	}
	role, err := domain.ParseRole(field(r, "participant_type", body.ParticipantType))
	if err != nil {
		return "", "", err
	}
	return name, role, nil
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	name, role, err := s.roomParams(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, tok, err := s.svc.Registry.CreateSession(r.Context(), name, role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_name": sess.Name,
		"token":     tok.Value,
		"url":       tok.URL,
		"room_info": sess.Room,
		"session":   sess,
	})
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	name, role, err := s.roomParams(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, err := s.svc.Registry.JoinSession(r.Context(), name, role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_name": name,
		"token":     tok.Value,
		"url":       tok.URL,
		"status":    "success",
	})
}

func (s *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	name, role, err := s.roomParams(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.Registry.LeaveSession(r.Context(), name, role); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": string(role) + " left " + name,
	})
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := make(map[string]domain.Session)
	for _, sess := range s.svc.Registry.ListSessions() {
		rooms[sess.Name] = sess
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "room_name")
	sess, ok := s.svc.Registry.GetSession(name)
	if !ok {
		s.writeError(w, r, notFound("session", name))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": sess})
}

type contextRequest struct {
	Utterance  string   `json:"utterance"`
	Utterances []string `json:"utterances"`
}

func (s *Server) appendContext(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "room_name")
	var body contextRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	texts := body.Utterances
	if body.Utterance != "" {
		texts = append([]string{body.Utterance}, texts...)
	}
	if len(texts) == 0 {
		s.writeError(w, r, required("utterance", ""))
		return
	}

	entries := make([]domain.ContextEntry, 0, len(texts))
	for _, text := range texts {
		e, err := s.svc.RecordUtterance(r.Context(), name, text)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_name": name, "entries": entries})
}

func (s *Server) getContext(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "room_name")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, invalid("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	entries, err := s.svc.Context(r.Context(), name, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_name": name, "entries": entries})
}
