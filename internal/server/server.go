// Package server exposes the tool-call contract over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonathan/cv-tailor/internal/server/middleware"
	"github.com/jonathan/cv-tailor/internal/server/ratelimit"
	"github.com/jonathan/cv-tailor/internal/stage"
	"github.com/jonathan/cv-tailor/internal/tools"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxRequestBytes bounds a tool-call body. A CV record with its photo stays
// well below it.
const maxRequestBytes = 1 << 20

// Server is the HTTP front of the tool dispatcher.
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	dispatcher  *tools.Dispatcher
	tokens      *TokenService
	rateLimiter *ratelimit.Limiter
	logger      *slog.Logger

	shutdownTimeout time.Duration
}

// Config holds server configuration.
type Config struct {
	Port            int
	AllowedOrigin   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// toolResponse is a tool response plus, for ingest_cv, the new session token.
type toolResponse struct {
	*tools.Response
	SessionToken string `json:"session_token,omitempty"`
}

// New creates a server. limiter may be nil to disable rate limiting.
func New(cfg Config, dispatcher *tools.Dispatcher, tokens *TokenService, limiter *ratelimit.Limiter, logger *slog.Logger) (*Server, error) {
	if dispatcher == nil {
		return nil, errors.New("server requires a dispatcher")
	}
	if tokens == nil {
		return nil, errors.New("server requires a token service")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Long enough for a full render.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		dispatcher:  dispatcher,
		tokens:      tokens,
		rateLimiter: limiter,
		logger:      logger,

		shutdownTimeout: cfg.ShutdownTimeout,
	}

	validator := tokens.AsTokenValidator()
	optional := middleware.OptionalSession(validator)
	required := middleware.RequireSession(validator)

	mux := http.NewServeMux()
	mux.Handle("POST /tools", optional(http.HandlerFunc(s.handleTools)))
	mux.Handle("GET /sessions/{id}", required(http.HandlerFunc(s.handleGetSession)))
	mux.Handle("GET /sessions/{id}/pdf", required(http.HandlerFunc(s.handleGetPDF)))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(cfg.AllowedOrigin, mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	s.httpServer.RegisterOnShutdown(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
	})
	return s, nil
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// handleTools runs one tool call. Every tool but ingest_cv needs a bearer
// token issued for the request's session.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	var req tools.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ingest := req.ToolName == string(stage.ActionIngestCV)
	if !ingest && !s.authorize(w, r, req.SessionID) {
		return
	}
	if !s.allow(w, r, ratelimit.ToolRoute(req.ToolName)) {
		return
	}

	resp := s.dispatcher.Dispatch(r.Context(), req)
	if !resp.Success {
		s.jsonResponse(w, HTTPStatus(resp.Error.Code), toolResponse{Response: resp})
		return
	}

	out := toolResponse{Response: resp}
	if ingest {
		token, err := s.tokens.GenerateToken(resp.SessionID)
		if err != nil {
			s.logger.Error("failed to issue session token", "session_id", resp.SessionID, "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "failed to issue session token")
			return
		}
		out.SessionToken = token
	}
	s.jsonResponse(w, http.StatusOK, out)
}

// handleGetSession returns the session view of the get_session tool.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.authorize(w, r, id) {
		return
	}
	resp := s.dispatcher.Dispatch(r.Context(), tools.Request{
		ToolName:  string(stage.ActionGetSession),
		SessionID: id,
	})
	if !resp.Success {
		s.jsonResponse(w, HTTPStatus(resp.Error.Code), toolResponse{Response: resp})
		return
	}
	s.jsonResponse(w, http.StatusOK, toolResponse{Response: resp})
}

// handleGetPDF streams the latest rendered PDF.
func (s *Server) handleGetPDF(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.authorize(w, r, id) {
		return
	}
	data, ref, err := s.dispatcher.PDF(r.Context(), id)
	if err != nil {
		code := tools.Code(err)
		if tools.Fatal(code) {
			s.logger.Error("failed to load pdf", "session_id", id, "code", code, "error", err)
		}
		s.errorResponse(w, HTTPStatus(code), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "cv-"+id+".pdf"))
	w.Header().Set("ETag", strconv.Quote(ref.ContentHash))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("failed to write pdf", "session_id", id, "error", err)
	}
}

// authorize checks that the request carries a token for sessionID.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, sessionID string) bool {
	subject, ok := middleware.SessionID(r)
	if !ok {
		s.errorResponse(w, http.StatusUnauthorized, "session token required")
		return false
	}
	if subject != sessionID {
		s.errorResponse(w, http.StatusForbidden, "session token does not grant access to this session")
		return false
	}
	return true
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withCORS adds CORS headers.
func (s *Server) withCORS(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies the per-route limit.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.allow(w, r, ratelimit.HTTPRoute(r.Method, r.URL.Path)) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow checks route against the limiter and writes a 429 when it is
// exhausted.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, route string) bool {
	if s.rateLimiter == nil {
		return true
	}
	allowed, info := s.rateLimiter.Allow(s.extractClientID(r), route)
	s.setRateLimitHeaders(w, info)
	if !allowed {
		s.rateLimitResponse(w, route, info)
		return false
	}
	return true
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withLogging adds request logging.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response.
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID returns the client IP from RemoteAddr. Forwarded headers
// are not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response.
func (s *Server) rateLimitResponse(w http.ResponseWriter, route string, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Seconds())
		response["retry_after"] = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	s.logger.Info("rate limit exceeded", "route", route, "limit", info.Limit)
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
