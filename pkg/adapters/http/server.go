// Package http exposes the warm transfer service over HTTP: JSON endpoints for
// sessions, context and transfers, plus SSE and WebSocket event streams.
package http

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/warmtransfer"
	"github.com/aretw0/warmtransfer/pkg/adapters/twilio"
	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

//go:embed openapi.yaml
var specYAML []byte

const maxBodyBytes = 1 << 20

// Spec parses the embedded OpenAPI document.
func Spec() (*openapi3.T, error) {
	return openapi3.NewLoader().LoadFromData(specYAML)
}

// Server routes HTTP requests to the service.
type Server struct {
	svc       *warmtransfer.Service
	bridge    *twilio.Bridge
	metrics   http.Handler
	logger    *slog.Logger
	limiter   *clientLimiter
	origins   []string
	keepAlive time.Duration
	upgrader  websocket.Upgrader
	router    chi.Router
}

type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCORSOrigins sets the browser origins allowed to call the API. "*" allows any.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithRateLimit enables a per-client token bucket. Non-positive rps disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = newClientLimiter(rps, max(burst, 1))
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithTelephony mounts the phone bridge routes under /api/twilio.
func WithTelephony(b *twilio.Bridge) Option {
	return func(s *Server) {
		s.bridge = b
	}
}

// WithKeepAlive sets the interval of SSE comments and WebSocket pings.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// NewServer builds the router.
func NewServer(svc *warmtransfer.Service, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		logger:    slog.Default(),
		keepAlive: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors(s.origins))
	if s.limiter != nil {
		r.Use(s.rateLimit)
	}

	r.Get("/", s.getRoot)
	r.Get("/health", s.getHealth)
	r.Get("/info", s.getInfo)
	r.Get("/openapi.yaml", s.getSpec)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/create", s.createRoom)
		r.Post("/join", s.joinRoom)
		r.Get("/", s.listRooms)
		r.Get("/{room_name}", s.getRoom)
		r.Post("/{room_name}/leave", s.leaveRoom)
		r.Post("/{room_name}/context", s.appendContext)
		r.Get("/{room_name}/context", s.getContext)
		r.Get("/{room_name}/events", s.subscribeEvents)
	})
	r.Get("/api/transfers", s.listTransfers)
	r.Route("/api/transfer", func(r chi.Router) {
		r.Post("/initiate", s.initiateTransfer)
		r.Post("/{transfer_id}/complete", s.completeTransfer)
		r.Get("/{transfer_id}", s.getTransfer)
		r.Get("/{transfer_id}/summary", s.getTransferSummary)
	})
	r.Post("/api/summary/generate", s.generateSummary)
	r.Get("/ws/{room_name}", s.streamWebSocket)

	if s.bridge != nil {
		r.Route("/api/twilio", func(r chi.Router) {
			r.Post("/transfer", s.twilioTransfer)
			r.Post("/sms-summary", s.twilioSMS)
			r.Post("/conference/{conference_name}", s.twilioConference)
		})
	}

	s.router = r
	return s
}

// NewHandler is NewServer as a plain http.Handler.
func NewHandler(svc *warmtransfer.Service, opts ...Option) http.Handler {
	return NewServer(svc, opts...)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// decode reads an optional JSON body into v. An empty body is not an error.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || err == io.EOF {
		return nil
	}
	return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidArgument, err)
}

// field prefers the query parameter, falling back to the decoded body value.
func field(r *http.Request, name, fromBody string) string {
	if q := strings.TrimSpace(r.URL.Query().Get(name)); q != "" {
		return q
	}
	return strings.TrimSpace(fromBody)
}

func required(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrInvalidArgument, name)
	}
	return nil
}

func (s *Server) getRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Warm Transfer API",
		"status":  "running",
	})
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if spec, err := Spec(); err == nil && spec.Info != nil {
		apiVersion = spec.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"app":         "warmtransfer-http",
		"version":     strings.TrimSpace(warmtransfer.Version),
		"api_version": apiVersion,
		"telephony":   s.bridge != nil,
	})
}

func (s *Server) getSpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(specYAML)
}
