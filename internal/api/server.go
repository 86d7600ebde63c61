package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"codepair/internal/runner"
	"codepair/internal/websocket"
	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// Registry is the slice of the connection registry the API reads.
type Registry interface {
	GetSessionConnections(sessionKey string) []*websocket.Connection
	GetStats() map[string]int
}

// Server is the HTTP surface: session lifecycle, question catalog, code
// execution and AI review. No business logic here, only HTTP handling and
// JSON serialization. Runner and reviewer may be nil; the corresponding
// endpoints answer 503.
type Server struct {
	store    interfaces.SessionStore
	catalog  interfaces.QuestionCatalog
	runner   interfaces.CodeRunner
	reviewer interfaces.CodeReviewer
	registry Registry
	router   *http.ServeMux
}

// NewServer creates the API server and sets up routing.
func NewServer(store interfaces.SessionStore, catalog interfaces.QuestionCatalog, codeRunner interfaces.CodeRunner, reviewer interfaces.CodeReviewer, registry Registry) *Server {
	s := &Server{
		store:    store,
		catalog:  catalog,
		runner:   codeRunner,
		reviewer: reviewer,
		registry: registry,
		router:   http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByKey))))
	s.router.Handle("/api/questions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.listQuestions))))
	s.router.Handle("/api/questions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.getQuestion))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSession(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionByKey dispatches /api/sessions/{key} and its subresources
// /run and /review.
func (s *Server) handleSessionByKey(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if path == "" {
		s.sendError(w, "Session key required", http.StatusBadRequest)
		return
	}

	parts := strings.Split(path, "/")
	sessionKey := parts[0]
	if sessionKey == "" {
		s.sendError(w, "Invalid session key", http.StatusBadRequest)
		return
	}

	if len(parts) > 1 && parts[1] != "" {
		switch parts[1] {
		case "run":
			s.runCode(w, r, sessionKey)
		case "review":
			s.handleReview(w, r, sessionKey)
		default:
			s.sendError(w, "Unknown resource", http.StatusNotFound)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getSession(w, r, sessionKey)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Request/Response types for JSON serialization.
type CreateSessionRequest struct {
	SessionKey    string `json:"session_key"`
	ParticipantID string `json:"participant_id"`
	Language      string `json:"language"`
	InitialCode   string `json:"initial_code"`
}

type SessionResponse struct {
	Session         *types.Session `json:"session"`
	ConnectionCount int            `json:"connection_count"`
}

type RunRequest struct {
	ParticipantID string `json:"participant_id"`
}

type RunResponse struct {
	ExecutionResult *types.ExecutionResult `json:"execution_result"`
}

type ReviewRequest struct {
	ParticipantID string `json:"participant_id"`
}

type ListQuestionsResponse struct {
	Questions []*types.Question `json:"questions"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// createSession initializes a session, creating it if absent. Racing
// creators all get the same winning row back, so the response is 200 with
// the authoritative state rather than distinguishing created from found.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Language == "" {
		req.Language = types.LanguageJavaScript
	}

	session, err := s.store.Initialize(r.Context(), req.SessionKey, req.InitialCode, req.Language, req.ParticipantID)
	if err != nil {
		if isValidationError(err) {
			s.sendError(w, err.Error(), http.StatusBadRequest)
		} else {
			s.sendError(w, "Failed to initialize session", http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, SessionResponse{
		Session:         session,
		ConnectionCount: len(s.registry.GetSessionConnections(session.SessionKey)),
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionKey string) {
	session, err := s.store.Get(r.Context(), sessionKey)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, SessionResponse{
		Session:         session,
		ConnectionCount: len(s.registry.GetSessionConnections(sessionKey)),
	})
}

// runCode executes the session's current buffer and shares the outcome.
// Failed runs are persisted too, so every participant sees the error.
func (s *Server) runCode(w http.ResponseWriter, r *http.Request, sessionKey string) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.runner == nil {
		s.sendError(w, "Code execution is not configured", http.StatusServiceUnavailable)
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	session, err := s.store.Get(r.Context(), sessionKey)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		}
		return
	}

	languageID, ok := types.ExecutionLanguageIDs[session.Language]
	if !ok {
		s.sendError(w, "Session language has no execution mapping", http.StatusBadRequest)
		return
	}

	runResult, runErr := s.runner.Run(r.Context(), &types.RunRequest{
		LanguageID: languageID,
		SourceCode: session.Code,
		Stdin:      session.Stdin,
	})
	result := runner.NormalizeOutcome(runResult, runErr, session.Stdin)

	if _, err := s.store.UpdateExecutionResult(r.Context(), sessionKey, result, req.ParticipantID); err != nil {
		if isValidationError(err) {
			s.sendError(w, err.Error(), http.StatusBadRequest)
		} else {
			s.sendError(w, "Failed to save execution result", http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, RunResponse{ExecutionResult: result})
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request, sessionKey string) {
	switch r.Method {
	case http.MethodPost:
		s.requestReview(w, r, sessionKey)
	case http.MethodGet:
		s.getReview(w, r, sessionKey)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) requestReview(w http.ResponseWriter, r *http.Request, sessionKey string) {
	if s.reviewer == nil {
		s.sendError(w, "Code review is not configured", http.StatusServiceUnavailable)
		return
	}

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidParticipantID(req.ParticipantID) {
		s.sendError(w, "Invalid participant_id", http.StatusBadRequest)
		return
	}

	session, err := s.store.Get(r.Context(), sessionKey)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		}
		return
	}

	review, err := s.reviewer.Review(r.Context(), session.Code, session.Language)
	if err != nil {
		s.sendError(w, fmt.Sprintf("Review failed: %v", err), http.StatusBadGateway)
		return
	}

	review.ID = uuid.New().String()
	review.SessionKey = sessionKey
	review.ParticipantID = req.ParticipantID

	if err := s.store.SaveReview(r.Context(), review); err != nil {
		s.sendError(w, "Failed to save review", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, review)
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request, sessionKey string) {
	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" {
		s.sendError(w, "participant_id query parameter required", http.StatusBadRequest)
		return
	}

	review, err := s.store.GetReview(r.Context(), sessionKey, participantID)
	if err != nil {
		if errors.Is(err, interfaces.ErrReviewNotFound) {
			s.sendError(w, "Review not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get review", http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, review)
}

func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	questions, err := s.catalog.ListQuestions(r.Context())
	if err != nil {
		s.sendError(w, "Failed to list questions", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, ListQuestionsResponse{Questions: questions})
}

func (s *Server) getQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/questions/")
	if id == "" {
		s.sendError(w, "Question ID required", http.StatusBadRequest)
		return
	}

	question, err := s.catalog.GetQuestion(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrQuestionNotFound) {
			s.sendError(w, "Question not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get question", http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, question)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: s.registry.GetStats(),
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func isValidationError(err error) bool {
	return errors.Is(err, types.ErrInvalidSessionKey) ||
		errors.Is(err, types.ErrInvalidParticipantID) ||
		errors.Is(err, types.ErrInvalidLanguage) ||
		errors.Is(err, types.ErrInvalidCursor) ||
		errors.Is(err, types.ErrEmptyPatch) ||
		errors.Is(err, types.ErrCodeTooLarge)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
