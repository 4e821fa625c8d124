// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strconv"
	"time"

	"tvalert/pipeline"
	"tvalert/pkg/tvalert"
	"tvalert/token"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Issuer interface for sending magic links.
type Issuer interface {
	SendMagicLink(ctx context.Context, email string) error
}

// Verifier interface for proving token triples.
type Verifier interface {
	Verify(ctx context.Context, tok tvalert.Token) (token.Result, error)
	VerifyForSuppression(tok tvalert.Token) token.Result
}

// Suppressor interface for the blacklist action.
type Suppressor interface {
	Suppress(ctx context.Context, email string) error
}

// Subscriptions interface for per-identity tracked sets.
type Subscriptions interface {
	AddMedia(ctx context.Context, email, mediaID string) error
	RemoveMedia(ctx context.Context, email, mediaID string) error
	MediaIDs(ctx context.Context, email string) ([]string, error)
}

// Lookup interface for show metadata.
type Lookup interface {
	Show(ctx context.Context, mediaID string) (*tvalert.ShowSummary, error)
	Search(ctx context.Context, query string) ([]tvalert.ShowSummary, error)
}

// Runner interface for triggering pipeline runs.
type Runner interface {
	Run(ctx context.Context) (pipeline.Report, error)
}

// IsConflict checks if an error means the email was already suppressed.
type IsConflict func(error) bool

// Server handles HTTP requests.
type Server struct {
	issuer        Issuer
	verifier      Verifier
	suppressor    Suppressor
	subscriptions Subscriptions
	lookup        Lookup
	runner        Runner
	logger        *slog.Logger
	isConflict    IsConflict
	clientURL     string
}

// Config holds server configuration.
type Config struct {
	Issuer        Issuer
	Verifier      Verifier
	Suppressor    Suppressor
	Subscriptions Subscriptions
	Lookup        Lookup
	Runner        Runner
	Logger        *slog.Logger
	IsConflict    IsConflict
	ClientURL     string
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		issuer:        cfg.Issuer,
		verifier:      cfg.Verifier,
		suppressor:    cfg.Suppressor,
		subscriptions: cfg.Subscriptions,
		lookup:        cfg.Lookup,
		runner:        cfg.Runner,
		logger:        cfg.Logger,
		isConflict:    cfg.IsConflict,
		clientURL:     cfg.ClientURL,
	}
}

// Routes registers all endpoints on the mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/pollz", s.handlePoll)
	mux.HandleFunc("/auth/send-verification-link", s.handleSendVerificationLink)
	mux.HandleFunc("/auth/redirect", s.handleAuthRedirect)
	mux.HandleFunc("/auth/blacklist", s.handleBlacklist)
	mux.HandleFunc("/subscription", s.handleSubscription)
	mux.HandleFunc("/subscription/shallow-info", s.handleShallowInfo)
	mux.HandleFunc("/subscription/", s.handleSubscriptionItem)
	mux.HandleFunc("/integration/search", s.handleSearch)
}

// ListenAndServe starts the server with timeouts to prevent resource exhaustion.
func (s *Server) ListenAndServe(port string) error {
	mux := http.NewServeMux()
	s.Routes(mux)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "port", port)
	return server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("Poll endpoint triggered")

	report, err := s.runner.Run(r.Context())
	if err != nil {
		s.logger.Error("Pipeline run failed", "error", err)
		http.Error(w, "Run failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, `{"status":"completed","dispatched":%d,"processed":%d}`, report.Dispatched, report.Processed); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

// writeJSON writes v as a JSON response body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write JSON response", "error", err)
	}
}

// tokenFromValues reconstructs the token triple from query or body parameters.
func tokenFromValues(email, expires, signature string) (tvalert.Token, error) {
	millis, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return tvalert.Token{}, fmt.Errorf("parse expires: %w", err)
	}
	return tvalert.Token{
		Email:     tvalert.NormalizeEmail(email),
		Expires:   millis,
		Signature: signature,
	}, nil
}

func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}

	// Use mail.ParseAddress for robust validation
	_, err := mail.ParseAddress(email)
	return err == nil && emailRegex.MatchString(email)
}
