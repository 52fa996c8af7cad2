package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tandemhq/aigate/pkg/keystore"
	"github.com/tandemhq/aigate/pkg/ledger"
	"github.com/tandemhq/aigate/pkg/models"
	"github.com/tandemhq/aigate/pkg/orchestrator"
)

// Server exposes the governance layer over HTTP to the application backend:
// the Execute surface, usage/status reads, and credential management.
type Server struct {
	listen string
	orch   *orchestrator.Orchestrator
	keys   keystore.Store
	ledger ledger.Ledger
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Server wired with all dependencies.
func New(listen string, orch *orchestrator.Orchestrator, keys keystore.Store, l ledger.Ledger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		listen: listen,
		orch:   orch,
		keys:   keys,
		ledger: l,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /v1/generate", s.handleGenerate)
	s.mux.HandleFunc("GET /v1/status", s.handleStatus)
	s.mux.HandleFunc("GET /v1/usage/months", s.handleUsageMonths)
	s.mux.HandleFunc("GET /v1/usage/recent", s.handleUsageRecent)
	s.mux.HandleFunc("GET /v1/keys", s.handleKeysList)
	s.mux.HandleFunc("POST /v1/keys", s.handleKeysAdd)
	s.mux.HandleFunc("DELETE /v1/keys/{id}", s.handleKeysDeactivate)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("aigate listening", "addr", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req models.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "unknown", "invalid request body")
		return
	}

	resp, err := s.orch.Execute(r.Context(), req)
	if err != nil {
		writeAIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p := models.Provider(r.URL.Query().Get("provider"))
	if !p.Known() {
		writeJSONError(w, http.StatusBadRequest, "unknown", "unknown provider")
		return
	}

	status, err := s.orch.GetUsageStatus(r.Context(), p)
	if err != nil {
		s.logger.Error("status read failed", "provider", string(p), "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unknown", "status read failed")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleUsageMonths(w http.ResponseWriter, r *http.Request) {
	p := models.Provider(r.URL.Query().Get("provider"))
	if p != "" && !p.Known() {
		writeJSONError(w, http.StatusBadRequest, "unknown", "unknown provider")
		return
	}

	stats, err := s.ledger.AggregateByMonth(r.Context(), p)
	if err != nil {
		s.logger.Error("monthly aggregate failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unknown", "aggregate failed")
		return
	}
	if stats == nil {
		stats = []models.MonthlyStats{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleUsageRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "unknown", "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.ledger.QueryRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("recent usage read failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unknown", "recent usage read failed")
		return
	}
	if records == nil {
		records = []models.UsageRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleKeysList(w http.ResponseWriter, r *http.Request) {
	creds, err := s.keys.List(r.Context())
	if err != nil {
		s.logger.Error("key list failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unknown", "key list failed")
		return
	}
	if creds == nil {
		creds = []models.Credential{}
	}
	writeJSON(w, http.StatusOK, creds)
}

type addKeyRequest struct {
	Provider      models.Provider `json:"provider"`
	Secret        string          `json:"secret"`
	Name          string          `json:"name"`
	MonthlyBudget float64         `json:"monthly_budget_usd"`
}

func (s *Server) handleKeysAdd(w http.ResponseWriter, r *http.Request) {
	var req addKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "unknown", "invalid request body")
		return
	}
	if !req.Provider.Known() {
		writeJSONError(w, http.StatusBadRequest, "unknown", "unknown provider")
		return
	}

	cred, err := s.keys.Save(r.Context(), req.Provider, req.Secret, req.Name, req.MonthlyBudget)
	switch {
	case errors.Is(err, keystore.ErrInvalidFormat):
		writeJSONError(w, http.StatusBadRequest, "invalid_format", "API key format is invalid for this provider")
		return
	case errors.Is(err, keystore.ErrValidationFailed):
		writeJSONError(w, http.StatusUnprocessableEntity, "validation_failed", "provider rejected the API key")
		return
	case err != nil:
		s.logger.Error("key save failed", "provider", string(req.Provider), "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unknown", "key save failed")
		return
	}
	writeJSON(w, http.StatusCreated, cred)
}

func (s *Server) handleKeysDeactivate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.keys.Deactivate(r.Context(), id)
	if errors.Is(err, keystore.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "not_found", "no credential with that ID")
		return
	}
	if err != nil {
		s.logger.Error("key deactivate failed", "id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unknown", "key deactivate failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeAIError maps the orchestrator's error taxonomy onto HTTP statuses.
func writeAIError(w http.ResponseWriter, err error) {
	var aiErr *orchestrator.AIError
	if !errors.As(err, &aiErr) {
		writeJSONError(w, http.StatusInternalServerError, "unknown", err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch aiErr.Kind {
	case orchestrator.KindNoKey:
		status = http.StatusPreconditionFailed
	case orchestrator.KindRateLimited:
		status = http.StatusTooManyRequests
	case orchestrator.KindUsageLimitExceeded:
		status = http.StatusPaymentRequired
	case orchestrator.KindNetworkError:
		status = http.StatusBadGateway
	}
	writeJSONError(w, status, string(aiErr.Kind), aiErr.Message)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"kind":%q,"message":%q}}`, kind, message)
}
