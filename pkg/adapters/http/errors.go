package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/warmtransfer/pkg/domain"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Detail string      `json:"detail"`
	Kind   domain.Kind `json:"kind"`
}

var errRateLimited = errors.New("too many requests")

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindClosed:
		return http.StatusGone
	case domain.KindGateway:
		return http.StatusBadGateway
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "err", err)
	} else {
		s.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "kind", kind, "err", err)
	}
	writeJSON(w, status, errorBody{Detail: err.Error(), Kind: kind})
}

func notFound(what, name string) error {
	return fmt.Errorf("%w: %s %q", domain.ErrNotFound, what, name)
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, msg)
}
