package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/attention.report/internal/db"
	"github.com/banshee-data/attention.report/internal/monitoring"
	"github.com/banshee-data/attention.report/internal/vision"
)

// Server exposes the proctoring analysis pipeline over HTTP. Each session
// owns one vision.Pipeline; frames are fed in batches and the session is
// finalized into a persisted report.
type Server struct {
	db    *db.DB
	store *vision.ReportStore
	cfg   vision.PipelineConfig

	mu       sync.Mutex
	sessions map[string]*vision.Pipeline
}

// NewServer creates an API server backed by the given database.
func NewServer(database *db.DB, cfg vision.PipelineConfig) *Server {
	return &Server{
		db:       database,
		store:    vision.NewReportStore(database.DB),
		cfg:      cfg,
		sessions: make(map[string]*vision.Pipeline),
	}
}

// ServeMux returns the route table for the server.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/session/start", s.handleStartSession)
	mux.HandleFunc("/api/session/signals", s.handleIngestSignals)
	mux.HandleFunc("/api/session/frames", s.handleIngestRawFrames)
	mux.HandleFunc("/api/session/finalize", s.handleFinalizeSession)
	mux.HandleFunc("/api/reports", s.handleReports)
	mux.HandleFunc("/api/reports/summary", s.handleReportSummary)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := uuid.NewString()

	s.mu.Lock()
	s.sessions[sessionID] = vision.NewPipeline(s.cfg)
	s.mu.Unlock()

	monitoring.Logf("started session %s", sessionID)
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}

func (s *Server) handleIngestSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pipeline, sessionID, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var signals []vision.FrameSignal
	if err := json.NewDecoder(r.Body).Decode(&signals); err != nil {
		http.Error(w, fmt.Sprintf("Failed to decode signals: %v", err), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sig := range signals {
		if err := pipeline.ProcessSignal(sig); err != nil {
			http.Error(w, fmt.Sprintf("Failed to process signal for %s: %v", sessionID, err), http.StatusBadRequest)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{"frames_processed": pipeline.FramesProcessed()})
}

func (s *Server) handleIngestRawFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pipeline, sessionID, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var frames []vision.RawFrame
	if err := json.NewDecoder(r.Body).Decode(&frames); err != nil {
		http.Error(w, fmt.Sprintf("Failed to decode frames: %v", err), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, frame := range frames {
		if _, err := pipeline.ProcessRawFrame(frame); err != nil {
			http.Error(w, fmt.Sprintf("Failed to process frame for %s: %v", sessionID, err), http.StatusBadRequest)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{"frames_processed": pipeline.FramesProcessed()})
}

// finalizeResponse mirrors the external report envelope.
type finalizeResponse struct {
	SessionID string         `json:"session_id"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Analysis  *vision.Report `json:"analysis"`
}

func (s *Server) handleFinalizeSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pipeline, sessionID, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	report := pipeline.Finalize()
	events := pipeline.Events()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if err := s.store.SaveReport(sessionID, report, events); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save report: %v", err), http.StatusInternalServerError)
		return
	}

	monitoring.Logf("finalized session %s: %d frames, %d events",
		sessionID, report.Metadata.FramesProcessed, len(events))

	writeJSON(w, http.StatusOK, finalizeResponse{
		SessionID: sessionID,
		Status:    "success",
		Message:   "Video processed successfully",
		Analysis:  report,
	})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		report, err := s.store.GetReport(sessionID)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to retrieve report: %v", err), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	reports, err := s.store.ListReports(limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve reports: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	summary, err := s.store.EventSummary(sessionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve summary: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// lookupSession resolves the session_id query parameter to a live pipeline,
// writing the error response itself when the session is missing.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*vision.Pipeline, string, bool) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return nil, "", false
	}

	s.mu.Lock()
	pipeline, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown session: %s", sessionID), http.StatusNotFound)
		return nil, "", false
	}
	return pipeline, sessionID, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("failed to encode response: %v", err)
	}
}
