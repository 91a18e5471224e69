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

	"github.com/aretw0/tripchat/internal/logging"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

const resourcePrefix = "tripchat://users/"

// Sessions is the conversation core exposed as MCP tools.
type Sessions interface {
	StartSession(ctx context.Context, userID, destination string) (*domain.Session, error)
	Resume(ctx context.Context, userID string) (*domain.Session, error)
	CurrentSession(userID string) (*domain.Session, error)
	TrackTurn(ctx context.Context, in session.TurnInput) (domain.Turn, error)
	EndSession(ctx context.Context, userID string) error
	ConversationHistory(ctx context.Context, userID string, n int) ([]domain.Turn, error)
	ContextualSuggestions(userID string) []string
	Analytics(ctx context.Context, userID string) (domain.Analytics, error)
}

var _ Sessions = (*session.Manager)(nil)

// TurnResponse is returned by track_turn.
type TurnResponse struct {
	Turn        domain.Turn `json:"turn" jsonschema_description:"The recorded turn"`
	Suggestions []string    `json:"suggestions" jsonschema_description:"Suggested next messages"`
}

// HistoryResponse is returned by get_history.
type HistoryResponse struct {
	Turns []domain.Turn `json:"turns" jsonschema_description:"Recent turns, oldest first"`
}

// Server exposes the session manager as an MCP Server.
type Server struct {
	sessions  Sessions
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions Sessions, version string, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		mcpServer: server.NewMCPServer("tripchat-mcp", strings.TrimSpace(version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start or resume the user's travel planning session."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User identifier")),
		mcp.WithString("destination", mcp.Description("Trip destination (optional)")),
		mcp.WithOutputSchema[domain.Session](),
	), mcp.NewStructuredToolHandler(s.handleStartSession))

	s.mcpServer.AddTool(mcp.NewTool("track_turn",
		mcp.WithDescription("Record a conversation turn in the user's session."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User identifier")),
		mcp.WithString("role", mcp.Required(), mcp.Enum(string(domain.RoleUser), string(domain.RoleAssistant))),
		mcp.WithString("content", mcp.Required(), mcp.Description("Message text")),
		mcp.WithString("intent", mcp.Description("Classified intent, e.g. NEW_ITINERARY (optional)")),
		mcp.WithString("destination", mcp.Description("Destination parameter of the turn (optional)")),
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleTrackTurn))

	s.mcpServer.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Get recent turns of the user's conversation."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User identifier")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of turns (optional)")),
		mcp.WithOutputSchema[HistoryResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetHistory))

	s.mcpServer.AddTool(mcp.NewTool("get_suggestions",
		mcp.WithDescription("Suggest next messages for the user's conversation."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User identifier")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := request.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(strings.Join(s.sessions.ContextualSuggestions(userID), "\n")), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("get_analytics",
		mcp.WithDescription("Summarize the user's past sessions."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User identifier")),
		mcp.WithOutputSchema[domain.Analytics](),
	), mcp.NewStructuredToolHandler(s.handleGetAnalytics))

	s.mcpServer.AddTool(mcp.NewTool("end_session",
		mcp.WithDescription("End the user's active session and archive it."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User identifier")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := request.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := s.sessions.EndSession(ctx, userID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("end session failed: %v", err)), nil
		}
		return mcp.NewToolResultText("session ended"), nil
	})
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func requireUser(args map[string]interface{}) (string, error) {
	userID := stringArg(args, "user_id")
	if userID == "" {
		return "", errors.New("user_id is required")
	}
	return userID, nil
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.Session, error) {
	userID, err := requireUser(args)
	if err != nil {
		return domain.Session{}, err
	}
	sess, err := s.sessions.StartSession(ctx, userID, stringArg(args, "destination"))
	if err != nil {
		return domain.Session{}, fmt.Errorf("start session failed: %w", err)
	}
	return *sess, nil
}

func (s *Server) handleTrackTurn(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TurnResponse, error) {
	userID, err := requireUser(args)
	if err != nil {
		return TurnResponse{}, err
	}
	in := session.TurnInput{
		UserID:  userID,
		Role:    domain.Role(stringArg(args, "role")),
		Content: stringArg(args, "content"),
		Intent:  domain.Intent(stringArg(args, "intent")),
	}
	if dest := stringArg(args, "destination"); dest != "" {
		in.Parameters = &domain.Parameters{Destination: dest}
	}

	turn, err := s.sessions.TrackTurn(ctx, in)
	if err != nil {
		s.logger.Warn("MCP track_turn: turn rejected", "user", userID, "err", err)
		return TurnResponse{}, fmt.Errorf("track turn failed: %w", err)
	}
	return TurnResponse{Turn: turn, Suggestions: s.sessions.ContextualSuggestions(userID)}, nil
}

func (s *Server) handleGetHistory(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (HistoryResponse, error) {
	userID, err := requireUser(args)
	if err != nil {
		return HistoryResponse{}, err
	}
	limit := 0
	if n, ok := args["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}
	turns, err := s.sessions.ConversationHistory(ctx, userID, limit)
	if err != nil {
		return HistoryResponse{}, fmt.Errorf("get history failed: %w", err)
	}
	return HistoryResponse{Turns: turns}, nil
}

func (s *Server) handleGetAnalytics(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.Analytics, error) {
	userID, err := requireUser(args)
	if err != nil {
		return domain.Analytics{}, err
	}
	return s.sessions.Analytics(ctx, userID)
}

func (s *Server) registerResources() {
	// EXPOSE: tripchat://users/{user_id}/session
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(resourcePrefix+"{user_id}/session", "Current Session",
		mcp.WithTemplateDescription("The user's active or most recently persisted session"),
		mcp.WithTemplateMIMEType("application/json"),
	), s.readSession)
}

func (s *Server) readSession(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	userID, ok := strings.CutSuffix(strings.TrimPrefix(uri, resourcePrefix), "/session")
	if !ok || userID == "" || strings.Contains(userID, "/") {
		return nil, fmt.Errorf("unknown resource %q", uri)
	}

	sess, err := s.sessions.CurrentSession(userID)
	if errors.Is(err, domain.ErrNoActiveSession) {
		sess, err = s.sessions.Resume(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	jsonBytes, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
