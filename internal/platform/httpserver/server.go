package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	proposalledger "govledger/contexts/governance/proposal-ledger"
	"govledger/internal/platform/auth"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "govledger/internal/platform/httpserver/docs"
)

// TokenVerifier resolves the caller identity from an Authorization header.
type TokenVerifier interface {
	Verify(header string) (string, error)
}

type Server struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	addr     string
	srv      *http.Server
	ledger   proposalledger.Module
	verifier TokenVerifier
}

func New(
	ledger proposalledger.Module,
	verifier TokenVerifier,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		ledger:   ledger,
		verifier: verifier,
	}
	s.registerRoutes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed mux.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return s.srv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.mux.HandleFunc("POST /v1/proposals", s.handleCreateProposal)
	s.mux.HandleFunc("GET /v1/proposals", s.handleListProposals)
	s.mux.HandleFunc("GET /v1/proposals/{proposal_id}", s.handleGetProposal)
	s.mux.HandleFunc("GET /v1/proposals/{proposal_id}/ballots/{voter_id}", s.handleGetBallot)
	s.mux.HandleFunc("POST /v1/proposals/{proposal_id}/votes", s.handleVote)
	s.mux.HandleFunc("POST /v1/proposals/{proposal_id}/close", s.handleCloseProposal)
	s.mux.HandleFunc("POST /v1/instructions", s.handleInstruction)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authenticate returns the verified caller identity or writes a 401.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.verifier == nil {
		writeLedgerError(w, http.StatusUnauthorized, "unauthenticated", "authentication is not configured")
		return "", false
	}
	identity, err := s.verifier.Verify(r.Header.Get("Authorization"))
	if err != nil {
		code := "invalid_token"
		if errors.Is(err, auth.ErrMissingToken) {
			code = "missing_token"
		}
		s.logger.Warn("request authentication failed",
			"event", "http_auth_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeLedgerError(w, http.StatusUnauthorized, code, "a valid bearer token is required")
		return "", false
	}
	return identity, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
