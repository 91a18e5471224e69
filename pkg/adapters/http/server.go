package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aretw0/tripchat/internal/logging"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds request bodies; imports carry whole conversations.
const maxBodyBytes = 1 << 20

// Sessions is the conversation core served over HTTP.
type Sessions interface {
	StartSession(ctx context.Context, userID, destination string) (*domain.Session, error)
	Resume(ctx context.Context, userID string) (*domain.Session, error)
	CurrentSession(userID string) (*domain.Session, error)
	TrackTurn(ctx context.Context, in session.TurnInput) (domain.Turn, error)
	EndSession(ctx context.Context, userID string) error
	ConversationHistory(ctx context.Context, userID string, n int) ([]domain.Turn, error)
	Messages(ctx context.Context, userID string) ([]domain.Turn, error)
	ContextualSuggestions(userID string) []string
	Analytics(ctx context.Context, userID string) (domain.Analytics, error)
	Export(ctx context.Context, userID string) (*domain.ExportData, error)
	Import(ctx context.Context, data *domain.ExportData) error
	ClearUserData(ctx context.Context, userID string) error
	ClearAllData(ctx context.Context) error
}

var _ Sessions = (*session.Manager)(nil)

// Server serves the session API.
type Server struct {
	Sessions Sessions
	Streams  *StreamManager

	version  string
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for request failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics exposes gatherer on GET /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates a server over sessions.
func NewServer(sessions Sessions, opts ...Option) *Server {
	s := &Server{
		Sessions: sessions,
		Streams:  NewStreamManager(),
		version:  "dev",
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Delete("/data", s.ClearAll)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Delete("/", s.ClearUser)
		r.Post("/session", s.StartSession)
		r.Get("/session", s.GetSession)
		r.Delete("/session", s.EndSession)
		r.Post("/turns", s.TrackTurn)
		r.Get("/history", s.GetHistory)
		r.Get("/messages", s.GetMessages)
		r.Get("/suggestions", s.GetSuggestions)
		r.Get("/analytics", s.GetAnalytics)
		r.Get("/export", s.Export)
		r.Post("/import", s.Import)
		r.Get("/events", s.SubscribeEvents)
	})
	return r
}

// NewHandler creates a server over sessions and returns its handler.
func NewHandler(sessions Sessions, opts ...Option) http.Handler {
	return NewServer(sessions, opts...).Handler()
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartRequest is the body of POST /users/{userID}/session.
type StartRequest struct {
	Destination string `json:"destination,omitempty"`
}

// StartSession handles POST /users/{userID}/session.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if r.ContentLength != 0 && !s.decode(w, r, &body) {
		return
	}
	sess, err := s.Sessions.StartSession(r.Context(), chi.URLParam(r, "userID"), body.Destination)
	if err != nil {
		s.fail(w, "StartSession", err)
		return
	}
	s.respond(w, http.StatusOK, sess)
}

// GetSession handles GET /users/{userID}/session, restoring a persisted
// session when none is in memory.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	sess, err := s.Sessions.CurrentSession(userID)
	if errors.Is(err, domain.ErrNoActiveSession) {
		sess, err = s.Sessions.Resume(r.Context(), userID)
	}
	if err != nil {
		s.fail(w, "GetSession", err)
		return
	}
	s.respond(w, http.StatusOK, sess)
}

// EndSession handles DELETE /users/{userID}/session.
func (s *Server) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.EndSession(r.Context(), chi.URLParam(r, "userID")); err != nil {
		s.fail(w, "EndSession", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TrackTurn handles POST /users/{userID}/turns.
func (s *Server) TrackTurn(w http.ResponseWriter, r *http.Request) {
	var in session.TurnInput
	if !s.decode(w, r, &in) {
		return
	}
	in.UserID = chi.URLParam(r, "userID")
	turn, err := s.Sessions.TrackTurn(r.Context(), in)
	if err != nil {
		s.fail(w, "TrackTurn", err)
		return
	}
	s.respond(w, http.StatusCreated, turn)
}

// GetHistory handles GET /users/{userID}/history?limit=n.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	turns, err := s.Sessions.ConversationHistory(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.fail(w, "GetHistory", err)
		return
	}
	s.respond(w, http.StatusOK, turns)
}

// GetMessages handles GET /users/{userID}/messages.
func (s *Server) GetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.Sessions.Messages(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, "GetMessages", err)
		return
	}
	s.respond(w, http.StatusOK, msgs)
}

// GetSuggestions handles GET /users/{userID}/suggestions.
func (s *Server) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.Sessions.ContextualSuggestions(chi.URLParam(r, "userID")))
}

// GetAnalytics handles GET /users/{userID}/analytics.
func (s *Server) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.Sessions.Analytics(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, "GetAnalytics", err)
		return
	}
	s.respond(w, http.StatusOK, a)
}

// Export handles GET /users/{userID}/export.
func (s *Server) Export(w http.ResponseWriter, r *http.Request) {
	data, err := s.Sessions.Export(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, "Export", err)
		return
	}
	s.respond(w, http.StatusOK, data)
}

// Import handles POST /users/{userID}/import.
func (s *Server) Import(w http.ResponseWriter, r *http.Request) {
	var data domain.ExportData
	if !s.decode(w, r, &data) {
		return
	}
	data.UserID = chi.URLParam(r, "userID")
	if err := s.Sessions.Import(r.Context(), &data); err != nil {
		s.fail(w, "Import", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearUser handles DELETE /users/{userID}.
func (s *Server) ClearUser(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.ClearUserData(r.Context(), chi.URLParam(r, "userID")); err != nil {
		s.fail(w, "ClearUser", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearAll handles DELETE /data.
func (s *Server) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.ClearAllData(r.Context()); err != nil {
		s.fail(w, "ClearAll", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{
		"app":     "tripchat-http",
		"version": s.version,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Invalid request body", "path", r.URL.Path, "err", err)
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// fail maps domain errors to status codes.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNoActiveSession), errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTurn), errors.Is(err, domain.ErrInvalidImport), errors.Is(err, domain.ErrInvalidUser):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	}
	http.Error(w, fmt.Sprintf("%s: %v", op, err), status)
}
