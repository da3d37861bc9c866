package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/repo-backfill/pkg/logging"
	"github.com/Sternrassler/repo-backfill/pkg/metrics"
	"github.com/Sternrassler/repo-backfill/pkg/repo"
	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			return runServer(ctx, a)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides PORT)")
	return cmd
}

// runServer serves until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, a *app) error {
	srv := newServer(ctx, a)
	defer srv.sessions.closeAll()

	httpServer := &http.Server{
		Addr:              ":" + a.config.Server.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info().
			Str("addr", httpServer.Addr).
			Str("user_agent", a.config.GitHub.UserAgent).
			Msg("Starting repo-search server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	srv.logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// server is the HTTP surface over the search coordinator.
type server struct {
	app      *app
	baseCtx  context.Context
	sessions *sessionRegistry
	decoder  *schema.Decoder
	logger   zerolog.Logger
}

// newServer creates the HTTP surface. Sessions are scoped to baseCtx and
// outlive the request that created them.
func newServer(baseCtx context.Context, a *app) *server {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &server{
		app:      a,
		baseCtx:  baseCtx,
		sessions: newSessionRegistry(a.config.Server.MaxSessions),
		decoder:  decoder,
		logger:   logging.NewLogger("server"),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", s.readyHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /search", s.searchHandler)
	mux.HandleFunc("GET /sessions/{id}", s.sessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSessionHandler)
	mux.HandleFunc("GET /sessions/{id}/pages/{page}", s.pageHandler)
	mux.HandleFunc("GET /sessions/{id}/errors", s.errorsHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.app.ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Readiness check failed")
		http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

type searchRequest struct {
	Query string `schema:"q"`
}

type sessionResponse struct {
	SessionID string   `json:"session_id"`
	Query     string   `json:"query"`
	Cursor    int      `json:"cursor"`
	InFlight  bool     `json:"in_flight"`
	Exhausted bool     `json:"exhausted"`
	Stored    int      `json:"stored"`
	Errors    []string `json:"errors"`
}

type pageResponse struct {
	SessionID   string      `json:"session_id"`
	Page        int         `json:"page"`
	Items       []repo.Repo `json:"items"`
	HasMore     bool        `json:"has_more"`
	Backfilling bool        `json:"backfilling"`
	Exhausted   bool        `json:"exhausted"`
	Errors      []string    `json:"errors"`
}

type errorMessage struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *server) searchHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	var req searchRequest
	if err := s.decoder.Decode(&req, r.Form); err != nil {
		s.logger.Warn().Err(err).Msg("Invalid search parameters")
		writeError(w, http.StatusBadRequest, "Invalid query parameters")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter q is required")
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	result := s.app.coordinator.Search(ctx, req.Query)
	s.sessions.add(result, cancel)

	w.Header().Set("Location", "/sessions/"+result.Session.ID.String())
	writeJSON(w, http.StatusCreated, s.describe(r.Context(), result.Session.ID))
}

func (s *server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	resp := s.describe(r.Context(), id)
	if resp == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	if !s.sessions.remove(id) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) describe(ctx context.Context, id uuid.UUID) *sessionResponse {
	result, ok := s.sessions.get(id)
	if !ok {
		return nil
	}

	stored, err := result.View.Count(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str(logging.FieldSessionID, id.String()).Msg("Count failed")
	}

	session := result.Session
	return &sessionResponse{
		SessionID: session.ID.String(),
		Query:     session.Query,
		Cursor:    session.Cursor(),
		InFlight:  session.InFlight(),
		Exhausted: session.Exhausted(),
		Stored:    stored,
		Errors:    result.Errors.Messages(),
	}
}

func (s *server) pageHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "Page must be a non-negative integer")
		return
	}

	result, ok := s.sessions.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	if err := result.Controller.Fatal(); err != nil {
		s.logger.Error().Err(err).Str(logging.FieldSessionID, id.String()).Msg("Session stopped by store failure")
		writeError(w, http.StatusInternalServerError, "Local store failure")
		return
	}

	page, err := result.View.Page(r.Context(), index)
	if err != nil {
		s.logger.Error().Err(err).Str(logging.FieldSessionID, id.String()).Int("page", index).Msg("Page read failed")
		writeError(w, http.StatusInternalServerError, "Failed to read page")
		return
	}

	writeJSON(w, http.StatusOK, pageResponse{
		SessionID:   id.String(),
		Page:        page.Index,
		Items:       page.Items,
		HasMore:     page.HasMore,
		Backfilling: page.Backfilling,
		Exhausted:   result.Session.Exhausted(),
		Errors:      result.Errors.Messages(),
	})
}

// errorsHandler streams the session's fetch failures over a websocket,
// starting with those already published.
func (s *server) errorsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	result, ok := s.sessions.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	messages, unsubscribe := result.Errors.Subscribe()
	defer unsubscribe()

	// Reads only detect the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	sessionDone := result.Session.Context().Done()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(errorMessage{SessionID: id.String(), Message: msg}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sessionDone:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(writeWait))
			return
		case <-closed:
			return
		}
	}
}

func (s *server) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
