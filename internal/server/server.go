// Package server exposes the launcher's HTTP surface: the inbound oracle
// webhook, the health probe, and the Prometheus scrape endpoint.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crowdforge/launcher/internal/core"
	"github.com/crowdforge/launcher/internal/orchestrator"
	"github.com/crowdforge/launcher/internal/webhook"
)

// Server handles the HTTP surface.
type Server struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// New creates the HTTP server over the orchestrator.
func New(orch *orchestrator.Orchestrator) *Server {
	return &Server{
		orch:   orch,
		logger: slog.With("component", "server"),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(LimitBody)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/webhook", s.handleWebhook)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook receives one oracle-reported escrow event.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, core.NewValidationError("unreadable request body", nil))
		return
	}

	var event orchestrator.InboundEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, core.NewValidationError("malformed event payload", nil))
		return
	}

	signature := r.Header.Get(webhook.HeaderSignature)
	if err := s.orch.HandleInbound(r.Context(), event, body, signature); err != nil {
		s.logger.Warn("inbound webhook rejected",
			"chain_id", event.ChainID,
			"escrow_address", event.EscrowAddress,
			"event_type", event.EventType,
			"error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func writeError(w http.ResponseWriter, err error) {
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch coreErr.Code {
	case core.ErrCodeValidation:
		status = http.StatusBadRequest
	case core.ErrCodeNotFound:
		status = http.StatusNotFound
	case core.ErrCodeConflict:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": coreErr.Message, "code": coreErr.Code})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
