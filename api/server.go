package api

import (
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/wricardo/gridworld-viewer/logging"
	"github.com/wricardo/gridworld-viewer/viewer/render"
	"github.com/wricardo/gridworld-viewer/viewer/session"
	"github.com/wricardo/gridworld-viewer/viewer/world"
	"go.uber.org/zap"
)

const defaultLogLimit = 20

// Viewer is the session surface the API drives. *session.Session implements it.
type Viewer interface {
	ID() string
	URI() string
	Stats() session.Stats
	Snapshot() (world.Snapshot, bool)
	Panel() *session.Panel
	Surface() render.Surface
	Step() error
	StartStepping() error
	StopStepping() error
}

// Server handles HTTP requests for the viewer control API
type Server struct {
	viewer Viewer
	logger *zap.Logger
	router *mux.Router
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	ID    string        `json:"id"`
	URI   string        `json:"uri"`
	Stats session.Stats `json:"stats"`
}

// NewServer creates a new API server
func NewServer(viewer Viewer, logger *zap.Logger) *Server {
	s := &Server{
		viewer: viewer,
		logger: logging.OrNop(logger).Named("api"),
		router: mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET")
	api.HandleFunc("/frame.png", s.handleFrame).Methods("GET")
	api.HandleFunc("/log", s.handleLog).Methods("GET")

	api.HandleFunc("/step", s.handleStep).Methods("POST")
	api.HandleFunc("/stepping/start", s.handleStartStepping).Methods("POST")
	api.HandleFunc("/stepping/stop", s.handleStopStepping).Methods("POST")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondCommand maps a session command result to a response
func (s *Server) respondCommand(w http.ResponseWriter, command string, err error) {
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, session.ErrNotConnected) {
			status = http.StatusConflict
		}
		s.logger.Debug("command failed", zap.String("command", command), zap.Error(err))
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"command": command,
		"stats":   s.viewer.Stats(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		ID:    s.viewer.ID(),
		URI:   s.viewer.URI(),
		Stats: s.viewer.Stats(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.viewer.Snapshot()
	if !ok {
		respondError(w, http.StatusNotFound, "no snapshot received yet")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	surface, ok := s.viewer.Surface().(*render.ImageSurface)
	if !ok {
		respondError(w, http.StatusNotImplemented, "frame capture is not supported by this surface")
		return
	}

	frame, version := surface.Frame()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Frame-Version", strconv.FormatUint(version, 10))
	if err := png.Encode(w, frame); err != nil {
		s.logger.Warn("failed to encode frame", zap.Error(err))
	}
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = l
	}

	lines := s.viewer.Panel().Tail(limit)
	if lines == nil {
		lines = []session.Line{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lines": lines,
		"total": s.viewer.Panel().Len(),
	})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	s.respondCommand(w, string(session.CommandStep), s.viewer.Step())
}

func (s *Server) handleStartStepping(w http.ResponseWriter, r *http.Request) {
	s.respondCommand(w, "start_stepping", s.viewer.StartStepping())
}

func (s *Server) handleStopStepping(w http.ResponseWriter, r *http.Request) {
	s.respondCommand(w, "stop_stepping", s.viewer.StopStepping())
}
