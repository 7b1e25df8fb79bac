package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"car-sniper/models"
	"car-sniper/utils"
)

// Scanner is the orchestrator surface the status endpoints read.
type Scanner interface {
	StateName() string
	LastReport() *models.TickReport
}

// Trigger starts an out-of-band tick; false means one is already running.
type Trigger interface {
	TriggerNow() bool
}

// Server is the operational HTTP surface: health, status and manual scans.
type Server struct {
	httpServer *http.Server
	logger     *utils.Logger
}

func NewServer(addr string, scanner Scanner, trigger Trigger, logger *utils.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(scanner, trigger, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter wires the routes; exposed for tests.
func NewRouter(scanner Scanner, trigger Trigger, logger *utils.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			State:      scanner.StateName(),
			LastReport: scanner.LastReport(),
		})
	})

	r.Post("/scan", func(w http.ResponseWriter, _ *http.Request) {
		if !trigger.TriggerNow() {
			writeJSON(w, http.StatusConflict, map[string]string{"status": "busy"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	})

	return r
}

type statusResponse struct {
	State      string             `json:"state"`
	LastReport *models.TickReport `json:"last_report"`
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("[server] Listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("[server] Stopping")
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(logger *utils.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("[server] %s %s -> %d in %v (req %s)",
				r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
