// Package api exposes the HTTP surface: telemetry ingestion for agents,
// session reads for the dashboard, proctor status control, and metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"examwatch/internal/engine"
	"examwatch/internal/logger"
	"examwatch/pkg/models"
)

// NewRouter creates and configures a router with all API endpoints.
func NewRouter(eng *engine.Engine) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", GetHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/telemetry", IngestEnvelope(eng)).Methods("POST")
	api.HandleFunc("/telemetry/{session_id}", IngestReport(eng)).Methods("POST")
	api.HandleFunc("/sessions", ListSessions(eng)).Methods("GET")
	api.HandleFunc("/sessions/{session_id}", GetSession(eng)).Methods("GET")
	api.HandleFunc("/sessions/{session_id}/status", SetSessionStatus(eng)).Methods("POST")

	return r
}

// GetHealth reports liveness.
func GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "active",
		"system": "examwatch fusion engine",
	})
}

// IngestEnvelope accepts one signal envelope per request.
func IngestEnvelope(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env models.SignalEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		if env.ObservedAt.IsZero() {
			env.ObservedAt = time.Now()
		}

		snap, alert, err := eng.Ingest(&env)
		if err != nil {
			var invalid *models.InvalidSignalError
			if errors.As(err, &invalid) {
				writeError(w, http.StatusUnprocessableEntity, invalid.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "ingestion failed")
			return
		}

		writeJSON(w, http.StatusOK, ingestResponse{
			Status:    "processed",
			RiskScore: snap.FusedScore,
			RiskLevel: snap.RiskLevel,
			Actions:   snap.Actions,
			Alerted:   alert != nil,
		})
	}
}

// IngestReport accepts the agent's combined per-interval report and splits it
// into one envelope per detector section.
func IngestReport(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["session_id"]

		var report AgentReport
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}

		envelopes := report.Envelopes(sessionID)
		if len(envelopes) == 0 {
			writeError(w, http.StatusUnprocessableEntity, "report carries no detector sections")
			return
		}

		var snap models.SessionSnapshot
		alerted := false
		for _, env := range envelopes {
			s, alert, err := eng.Ingest(env)
			if err != nil {
				var invalid *models.InvalidSignalError
				if errors.As(err, &invalid) {
					writeError(w, http.StatusUnprocessableEntity, invalid.Error())
					return
				}
				writeError(w, http.StatusInternalServerError, "ingestion failed")
				return
			}
			snap = s
			if alert != nil {
				alerted = true
			}
		}

		writeJSON(w, http.StatusOK, ingestResponse{
			Status:    "processed",
			RiskScore: snap.FusedScore,
			RiskLevel: snap.RiskLevel,
			Actions:   snap.Actions,
			Alerted:   alerted,
		})
	}
}

// ListSessions returns a point-in-time view of all live sessions.
func ListSessions(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshots := eng.Store().SnapshotAll()
		if snapshots == nil {
			snapshots = []models.SessionSnapshot{}
		}
		writeJSON(w, http.StatusOK, sessionListResponse{
			Count:    len(snapshots),
			Sessions: snapshots,
		})
	}
}

// GetSession returns one live session's snapshot.
func GetSession(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["session_id"]
		snap, ok := eng.Store().Get(sessionID)
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// SetSessionStatus moves a session through the proctoring lifecycle.
func SetSessionStatus(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["session_id"]

		var req statusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		if !models.ValidStatus(req.Status) {
			writeError(w, http.StatusUnprocessableEntity, "status must be OPEN, INVESTIGATING, or RESOLVED")
			return
		}

		snap, ok := eng.Store().SetStatus(sessionID, req.Status)
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		logger.Infof("Session %s status set to %s", sessionID, req.Status)
		writeJSON(w, http.StatusOK, snap)
	}
}

type ingestResponse struct {
	Status    string           `json:"status"`
	RiskScore int              `json:"risk_score"`
	RiskLevel models.RiskLevel `json:"risk_level"`
	Actions   []string         `json:"actions_required,omitempty"`
	Alerted   bool             `json:"alerted"`
}

type sessionListResponse struct {
	Count    int                      `json:"count"`
	Sessions []models.SessionSnapshot `json:"sessions"`
}

type statusRequest struct {
	Status models.SessionStatus `json:"status"`
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
