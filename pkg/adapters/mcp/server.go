package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/warmtransfer"
	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SessionResult is returned by tools that hand out a join credential.
type SessionResult struct {
	RoomName string          `json:"room_name" jsonschema_description:"Session name"`
	Token    string          `json:"token" jsonschema_description:"Join credential for the media room"`
	URL      string          `json:"url,omitempty" jsonschema_description:"Media server URL"`
	Session  *domain.Session `json:"session,omitempty" jsonschema_description:"Session snapshot after the operation"`
}

// TransferResult describes a transfer after a tool call.
type TransferResult struct {
	Transfer domain.TransferRecord `json:"transfer" jsonschema_description:"The transfer record"`
	Token    string                `json:"token,omitempty" jsonschema_description:"Caller credential for the target session, set on completion"`
}

type sessionArgs struct {
	RoomName        string `json:"room_name"`
	ParticipantType string `json:"participant_type"`
}

type utteranceArgs struct {
	RoomName  string `json:"room_name"`
	Utterance string `json:"utterance"`
}

type initiateArgs struct {
	FromRoom   string `json:"from_room"`
	ToRoom     string `json:"to_room"`
	CallerRoom string `json:"caller_room"`
}

type transferArgs struct {
	TransferID string `json:"transfer_id"`
}

// Server exposes the warm transfer service as MCP tools, so an assistant can
// drive sessions and transfers on behalf of an agent.
type Server struct {
	svc       *warmtransfer.Service
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(svc *warmtransfer.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:       svc,
		mcpServer: server.NewMCPServer("warmtransfer-mcp", strings.TrimSpace(warmtransfer.Version)),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func roleOption() mcp.PropertyOption {
	return mcp.Enum(string(domain.RoleCaller), string(domain.RoleAgentA), string(domain.RoleAgentB))
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create a call session and occupy its first participant slot."),
		mcp.WithString("room_name", mcp.Required(), mcp.Description("Unique session name")),
		mcp.WithString("participant_type", mcp.Required(), roleOption(), mcp.Description("Slot to occupy")),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleCreateSession))

	s.mcpServer.AddTool(mcp.NewTool("join_session",
		mcp.WithDescription("Occupy a free slot of an existing session."),
		mcp.WithString("room_name", mcp.Required(), mcp.Description("Session name")),
		mcp.WithString("participant_type", mcp.Required(), roleOption(), mcp.Description("Slot to occupy")),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleJoinSession))

	s.mcpServer.AddTool(mcp.NewTool("leave_session",
		mcp.WithDescription("Vacate a slot. The session closes once it is empty."),
		mcp.WithString("room_name", mcp.Required(), mcp.Description("Session name")),
		mcp.WithString("participant_type", mcp.Required(), roleOption(), mcp.Description("Slot to vacate")),
	), s.handleLeaveSession)

	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List every known session, closed ones included."),
	), s.handleListSessions)

	s.mcpServer.AddTool(mcp.NewTool("record_utterance",
		mcp.WithDescription("Append one transcribed utterance to a session's call context."),
		mcp.WithString("room_name", mcp.Required(), mcp.Description("Session name")),
		mcp.WithString("utterance", mcp.Required(), mcp.Description("Utterance text")),
	), s.handleRecordUtterance)

	s.mcpServer.AddTool(mcp.NewTool("initiate_transfer",
		mcp.WithDescription("Start a warm transfer and brief the receiving agent with a call summary."),
		mcp.WithString("from_room", mcp.Required(), mcp.Description("Session of the transferring agent")),
		mcp.WithString("to_room", mcp.Required(), mcp.Description("Session of the receiving agent")),
		mcp.WithString("caller_room", mcp.Required(), mcp.Description("Session whose context is summarized")),
		mcp.WithOutputSchema[TransferResult](),
	), mcp.NewStructuredToolHandler(s.handleInitiateTransfer))

	s.mcpServer.AddTool(mcp.NewTool("complete_transfer",
		mcp.WithDescription("Move the caller into the receiving agent's session."),
		mcp.WithString("transfer_id", mcp.Required(), mcp.Description("Transfer identifier")),
		mcp.WithOutputSchema[TransferResult](),
	), mcp.NewStructuredToolHandler(s.handleCompleteTransfer))

	s.mcpServer.AddTool(mcp.NewTool("get_transfer",
		mcp.WithDescription("Fetch a transfer record."),
		mcp.WithString("transfer_id", mcp.Required(), mcp.Description("Transfer identifier")),
		mcp.WithOutputSchema[TransferResult](),
	), mcp.NewStructuredToolHandler(s.handleGetTransfer))
}

func (s *Server) handleCreateSession(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (SessionResult, error) {
	role, err := domain.ParseRole(args.ParticipantType)
	if err != nil {
		return SessionResult{}, err
	}
	sess, tok, err := s.svc.Registry.CreateSession(ctx, args.RoomName, role)
	if err != nil {
		return SessionResult{}, err
	}
	return SessionResult{RoomName: sess.Name, Token: tok.Value, URL: tok.URL, Session: &sess}, nil
}

func (s *Server) handleJoinSession(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (SessionResult, error) {
	role, err := domain.ParseRole(args.ParticipantType)
	if err != nil {
		return SessionResult{}, err
	}
	tok, err := s.svc.Registry.JoinSession(ctx, args.RoomName, role)
	if err != nil {
		return SessionResult{}, err
	}
	res := SessionResult{RoomName: args.RoomName, Token: tok.Value, URL: tok.URL}
	if sess, ok := s.svc.Registry.GetSession(args.RoomName); ok {
		res.Session = &sess
	}
	return res, nil
}

func (s *Server) handleLeaveSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("room_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	role, err := domain.ParseRole(request.GetString("participant_type", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Registry.LeaveSession(ctx, name, role); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("leave failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s left %s", role, name)), nil
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(s.svc.Registry.ListSessions())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleRecordUtterance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args utteranceArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	entry, err := s.svc.RecordUtterance(ctx, args.RoomName, args.Utterance)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("record failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("recorded #%d in %s", entry.Seq, args.RoomName)), nil
}

func (s *Server) handleInitiateTransfer(ctx context.Context, _ mcp.CallToolRequest, args initiateArgs) (TransferResult, error) {
	rec, err := s.svc.Coordinator.InitiateTransfer(ctx, args.FromRoom, args.ToRoom, args.CallerRoom)
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Transfer: rec}, nil
}

func (s *Server) handleCompleteTransfer(ctx context.Context, _ mcp.CallToolRequest, args transferArgs) (TransferResult, error) {
	rec, tok, err := s.svc.Coordinator.CompleteTransferWithToken(ctx, args.TransferID)
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Transfer: rec, Token: tok.Value}, nil
}

func (s *Server) handleGetTransfer(ctx context.Context, _ mcp.CallToolRequest, args transferArgs) (TransferResult, error) {
	rec, ok := s.svc.Coordinator.GetTransfer(args.TransferID)
	if !ok {
		return TransferResult{}, fmt.Errorf("%w: transfer %q", domain.ErrNotFound, args.TransferID)
	}
	return TransferResult{Transfer: rec}, nil
}

func (s *Server) registerResources() {
	// EXPOSE: warmtransfer://transfers
	s.mcpServer.AddResource(mcp.NewResource("warmtransfer://transfers", "Transfer Records",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.svc.Coordinator.ListTransfers())
		if err != nil {
			return nil, fmt.Errorf("failed to encode transfers: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "warmtransfer://transfers",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
