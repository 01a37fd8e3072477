package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// subscribeEvents streams session events as server-sent events. The stream
// ends when the client disconnects or the session closes.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, fmt.Errorf("streaming not supported"))
		return
	}
	name := chi.URLParam(r, "room_name")

	events, cancel, err := s.svc.Subscribe(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: Subscribed to session", "session", name)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: Client disconnected", "session", name)
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("SSE: Event encode failed", "session", name, "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

type wsMessage struct {
	Type    string          `json:"type"`
	Session *domain.Session `json:"session,omitempty"`
	Event   *domain.Event   `json:"event,omitempty"`
}

// streamWebSocket sends a snapshot of the session, then every event published to it.
func (s *Server) streamWebSocket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "room_name")

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	events, cancel, err := s.svc.Subscribe(ctx, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WS: Upgrade failed", "session", name, "err", err)
		return
	}
	defer conn.Close()

	// The read loop only drains control frames; a read error means the peer is gone.
	go func() {
		defer stop()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if sess, ok := s.svc.Registry.GetSession(name); ok {
		if err := s.writeWS(conn, wsMessage{Type: "snapshot", Session: &sess}); err != nil {
			return
		}
	}

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
			if err := s.writeWS(conn, wsMessage{Type: "event", Event: &ev}); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, msg wsMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debug("WS: Write failed", "err", err)
		return err
	}
	return nil
}
