// Package agentserver exposes the operator API of the update agent on a
// local HTTP listener: status, check-now, rollback-now, plus health and
// metrics endpoints.
package agentserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fotad-io/fotad/internal/agent"
	"github.com/fotad-io/fotad/pkg/log"
	"github.com/fotad-io/fotad/pkg/options"
)

type Server struct {
	server *http.Server
}

func NewServer(opts *options.HttpOptions, a Agent) *Server {
	h := &handlers{agent: a, logger: log.WithName("api")}

	return &Server{
		server: &http.Server{
			Addr:         opts.Addr,
			Handler:      newRouter(h),
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		},
	}
}

func newRouter(h *handlers) *mux.Router {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	})

	api := r.PathPrefix("/api/v1").Subrouter()
	api.MethodNotAllowedHandler = r.MethodNotAllowedHandler
	api.HandleFunc("/status", h.status).Methods(http.MethodGet)
	api.HandleFunc("/check", h.check).Methods(http.MethodPost)
	api.HandleFunc("/rollback", h.rollback).Methods(http.MethodPost)

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Readiness Probe
	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting operator API server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

// Agent is the surface the handlers drive. Satisfied by *agent.Agent.
type Agent interface {
	Status() agent.Status
	ForceCheck() bool
	ForceRollback() (agent.Status, error)
}

type handlers struct {
	agent  Agent
	logger log.Logger
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.agent.Status())
}

type checkResponse struct {
	Queued  bool   `json:"queued"`
	Message string `json:"message"`
}

func (h *handlers) check(w http.ResponseWriter, r *http.Request) {
	queued := h.agent.ForceCheck()
	msg := "check queued"
	if !queued {
		msg = "a check is already pending"
	}
	writeJSON(w, http.StatusAccepted, checkResponse{Queued: queued, Message: msg})
}

type rollbackResponse struct {
	ActiveSlot string `json:"active_slot"`
	Message    string `json:"message"`
}

func (h *handlers) rollback(w http.ResponseWriter, r *http.Request) {
	st, err := h.agent.ForceRollback()
	if err != nil {
		h.logger.Error(err, "Forced rollback failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rollbackResponse{
		ActiveSlot: st.ActiveSlot,
		Message:    "rollback staged, effective on next power cycle",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
