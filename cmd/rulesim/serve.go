package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/liamcoop/rulesim/engine"
	"github.com/liamcoop/rulesim/internal/logger"
)

// Server exposes the simulation engine over HTTP.
type Server struct {
	ctrl   *engine.Controller
	sim    *engine.Simulator
	opts   engine.Options
	router *chi.Mux
}

// NewServer creates an HTTP server over an uninitialized controller. Clients
// drive the lifecycle through /api/v1/initialize and /api/v1/reset.
func NewServer(fixturesRoot string, opts engine.Options) *Server {
	ctrl := engine.NewController(fixturesRoot)
	s := &Server{
		ctrl: ctrl,
		sim:  engine.NewSimulator(ctrl),
		opts: opts,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/files", s.handleFiles)

	r.Post("/api/v1/initialize", s.handleInitialize)
	r.Post("/api/v1/reset", s.handleReset)

	r.Post("/api/v1/simulate", s.handleSimulate)
	r.Post("/api/v1/simulate/content", s.handleSimulateContent)
	r.Post("/api/v1/simulate/global", s.handleSimulateGlobal)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.ctrl.State()

	resp := HealthResponse{Status: "ok", State: state.String()}
	if err := s.ctrl.InitError(); err != nil {
		resp.Error = err.Error()
	}
	if state == engine.StateError {
		resp.Status = "unhealthy"
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.ctrl.AvailableFiles()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, FilesResponse{Files: files})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.SourceSet == "" {
		respondError(w, http.StatusBadRequest, "sourceSet is required", nil)
		return
	}

	err := s.ctrl.Initialize(r.Context(), req.SourceSet, func(step string, percent int) {
		logger.Info("initializing", "step", step, "percent", percent)
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"state":     s.ctrl.State().String(),
		"sourceSet": req.SourceSet,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Reset()
	respondJSON(w, http.StatusOK, map[string]string{
		"state": s.ctrl.State().String(),
	})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Rule == nil || req.FileName == "" {
		respondError(w, http.StatusBadRequest, "rule and fileName are required", nil)
		return
	}

	result, err := s.sim.Simulate(r.Context(), req.Rule, req.FileName, s.opts)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSimulateContent(w http.ResponseWriter, r *http.Request) {
	var req SimulateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Rule == nil || req.FileName == "" {
		respondError(w, http.StatusBadRequest, "rule and fileName are required", nil)
		return
	}

	result, err := s.sim.SimulateWithContent(r.Context(), req.Rule, req.FileName, req.Content, s.opts)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSimulateGlobal(w http.ResponseWriter, r *http.Request) {
	var req SimulateGlobalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Rule == nil {
		respondError(w, http.StatusBadRequest, "rule is required", nil)
		return
	}

	result, err := s.sim.SimulateGlobal(r.Context(), req.Rule, req.AdditionalFiles, s.opts)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// respondEngineError maps engine errors onto HTTP status codes.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotReady):
		respondError(w, http.StatusConflict, "engine is not initialized", err)
	case errors.Is(err, engine.ErrInitInProgress):
		respondError(w, http.StatusConflict, "initialization already in progress", err)
	case errors.Is(err, engine.ErrUnknownFile):
		respondError(w, http.StatusNotFound, "file not found", err)
	default:
		respondError(w, http.StatusInternalServerError, "engine error", err)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation HTTP server",
		Long: `Run the simulation engine behind an HTTP API.

The server starts uninitialized; clients select a source set through
POST /api/v1/initialize and may switch via /api/v1/reset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts)
		},
	}
}

func runServe(opts *RootOptions) error {
	server := NewServer(opts.Config.FixturesRoot, simOptions(opts))

	httpServer := &http.Server{
		Addr:         opts.Config.ListenAddr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", opts.Config.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
