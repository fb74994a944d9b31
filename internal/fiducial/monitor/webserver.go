// Package monitor serves the fiducial tracker's live state over HTTP:
// JSON snapshots, a consume-updated poll endpoint, an echarts scatter of
// marker centroids, trajectory plots from the event log and Prometheus
// metrics.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/fiducial-tracker/internal/db"
	"github.com/banshee-data/fiducial-tracker/internal/fiducial"
	sqlite "github.com/banshee-data/fiducial-tracker/internal/fiducial/storage/sqlite"
	"github.com/banshee-data/fiducial-tracker/internal/monitoring"
	"github.com/banshee-data/fiducial-tracker/internal/version"
)

// WebServer handles the HTTP interface for monitoring a tracker.
type WebServer struct {
	address  string
	tracker  *fiducial.Tracker
	events   *sqlite.EventStore
	sessions *sqlite.SessionStore
	db       *db.DB
	metrics  *Metrics
	plotter  *TrackPlotter
	server   *http.Server
}

// WebServerConfig contains configuration options for the web server.
// Events, Sessions, DB and Metrics are optional.
type WebServerConfig struct {
	Address  string
	Tracker  *fiducial.Tracker
	Events   *sqlite.EventStore
	Sessions *sqlite.SessionStore
	DB       *db.DB
	Metrics  *Metrics
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:  config.Address,
		tracker:  config.Tracker,
		events:   config.Events,
		sessions: config.Sessions,
		db:       config.DB,
		metrics:  config.Metrics,
		plotter:  NewTrackPlotter(),
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the server's route multiplexer.
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("[monitor] starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("monitor server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	monitoring.Logf("[monitor] shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[monitor] HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("[monitor] HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", ws.handleHealth)
	mux.HandleFunc("GET /api/markers", ws.handleMarkers)
	mux.HandleFunc("GET /api/markers/{id}", ws.handleMarker)
	mux.HandleFunc("POST /api/markers/{id}/updated", ws.handleConsumeUpdated)
	mux.HandleFunc("GET /api/stats", ws.handleStats)
	mux.HandleFunc("GET /debug/markers/chart", ws.handleMarkerChart)

	if ws.events != nil {
		mux.HandleFunc("GET /api/sessions/{session}/events", ws.handleSessionEvents)
		mux.HandleFunc("GET /api/sessions/{session}/trajectories.png", ws.handleTrajectoryPlot)
	}
	if ws.sessions != nil {
		mux.HandleFunc("GET /api/sessions", ws.handleSessions)
	}
	if ws.metrics != nil {
		mux.Handle("GET /metrics", ws.metrics.Handler())
	}
	if ws.db != nil {
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			monitoring.Logf("[monitor] admin routes disabled: %v", err)
		}
	}
	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

func (ws *WebServer) handleMarkers(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, ws.tracker.Markers())
}

func (ws *WebServer) handleMarker(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.markerID(w, r)
	if !ok {
		return
	}
	snap, found := ws.tracker.Marker(id)
	if !found {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("marker %d not tracked", id))
		return
	}
	ws.writeJSON(w, http.StatusOK, snap)
}

// handleConsumeUpdated polls the one-shot updated flag; the read clears it.
func (ws *WebServer) handleConsumeUpdated(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.markerID(w, r)
	if !ok {
		return
	}
	updated, found := ws.tracker.ConsumeUpdated(id)
	if !found {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("marker %d not tracked", id))
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      id,
		"updated": updated,
	})
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, ws.tracker.Stats())
}

func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := ws.sessions.List()
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws.writeJSON(w, http.StatusOK, sessions)
}

func (ws *WebServer) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	session := ws.sessionID(r)
	var (
		events []*sqlite.MarkerEvent
		err    error
	)
	if m := r.URL.Query().Get("marker_id"); m != "" {
		id, perr := strconv.ParseUint(m, 10, 32)
		if perr != nil {
			ws.writeJSONError(w, http.StatusBadRequest, "invalid marker_id")
			return
		}
		events, err = ws.events.ListByMarker(session, fiducial.MarkerID(id))
	} else {
		events, err = ws.events.ListBySession(session)
	}
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*sqlite.MarkerEvent{}
	}
	ws.writeJSON(w, http.StatusOK, events)
}

func (ws *WebServer) handleTrajectoryPlot(w http.ResponseWriter, r *http.Request) {
	session := ws.sessionID(r)
	trajectories, err := ws.events.Trajectories(session)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(trajectories) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no trajectories for session")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := ws.plotter.Render(w, session, trajectories); err != nil {
		monitoring.Logf("[monitor] trajectory plot for session %s: %v", session, err)
	}
}

// sessionID resolves the {session} path value; "current" names the
// session the event store is writing to.
func (ws *WebServer) sessionID(r *http.Request) string {
	s := r.PathValue("session")
	if s == "current" {
		return ws.events.SessionID()
	}
	return s
}

func (ws *WebServer) markerID(w http.ResponseWriter, r *http.Request) (fiducial.MarkerID, bool) {
	v, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "invalid marker id")
		return 0, false
	}
	return fiducial.MarkerID(v), true
}

// writeJSON writes a JSON response with the given status code.
func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("[monitor] JSON encoding error: %v", err)
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	ws.writeJSON(w, status, map[string]string{"error": msg})
}
