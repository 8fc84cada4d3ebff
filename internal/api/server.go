package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"waveline/internal/config"
	"waveline/internal/delivery"
	"waveline/internal/ingest"
	"waveline/internal/ledger"
	"waveline/internal/logging"
)

// Pinger reports queue-backend connectivity for the health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server hosts the HTTP boundary.
type Server struct {
	bind      string
	maxUpload int64
	logger    *slog.Logger

	ingestSvc   *ingest.Service
	deliverySvc *delivery.Service
	store       *ledger.Store
	queuePing   Pinger

	listener net.Listener
	server   *http.Server
}

// NewServer wires the HTTP boundary against the pipeline services.
func NewServer(cfg *config.Config, ingestSvc *ingest.Service, deliverySvc *delivery.Service, store *ledger.Store, queuePing Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &Server{
		bind:        strings.TrimSpace(cfg.Server.Bind),
		maxUpload:   cfg.Server.MaxUploadMiB << 20,
		logger:      logging.NewComponentLogger(logger, "api"),
		ingestSvc:   ingestSvc,
		deliverySvc: deliverySvc,
		store:       store,
		queuePing:   queuePing,
	}
	srv.server = &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Router builds the route table. Exposed so tests can drive handlers through
// httptest without binding a socket.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/recordings", s.handleUpload).Methods(http.MethodPost)
	v1.HandleFunc("/recordings/{id}", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/recordings/{id}/download", s.handleDownload).Methods(http.MethodGet)
	v1.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	return r
}

// Start begins serving and returns once the listener is bound. The server
// shuts down when ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound listen address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop drains in-flight requests within a grace period.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}
