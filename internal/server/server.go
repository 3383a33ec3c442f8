package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/raysh454/webaudit/internal/app"
	"github.com/raysh454/webaudit/internal/logging"
	"github.com/raysh454/webaudit/internal/scheduler"
	"github.com/raysh454/webaudit/internal/store"

	_ "github.com/raysh454/webaudit/internal/server/docs" // registers the OpenAPI document
)

// Server is the HTTP + WebSocket API surface for webaudit.
type Server struct {
	cfg          Config
	app          *app.Application
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
}

// NewServer serves the services of a.
func NewServer(cfg Config, a *app.Application) (*Server, error) {
	if a == nil || a.Orch == nil {
		return nil, fmt.Errorf("application has no orchestrator")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = a.Logger
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	r := chi.NewRouter()
	s := &Server{
		cfg:          cfg,
		app:          a,
		orchestrator: a.Orch,
		router:       r,
		logger:       logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || cfg.originAllowed(origin)
			},
		},
	}

	s.routes()
	return s, nil
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/run-tests", s.optionsHandler("POST"))
	r.Options("/results", s.optionsHandler("GET"))
	r.Options("/summary", s.optionsHandler("GET"))
	r.Options("/jobs", s.optionsHandler("GET"))
	r.Options("/jobs/{jobID}", s.optionsHandler("GET, DELETE"))
	r.Options("/scans", s.optionsHandler("GET"))
	r.Options("/scans/{scanID}", s.optionsHandler("GET"))
	r.Options("/scans/{scanID}/diff", s.optionsHandler("GET"))

	// Scans
	r.Post("/run-tests", s.handleRunTests)
	r.Get("/results", s.handleResults)
	r.Get("/summary", s.handleSummary)

	// Jobs
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	// History
	r.Get("/scans", s.handleListScans)
	r.Get("/scans/{scanID}", s.handleGetScan)
	r.Get("/scans/{scanID}/diff", s.handleScanDiff)
	r.Get("/schedules", s.handleSchedules)

	// WebSockets
	r.Get("/ws/results", s.handleResultsWS)
	r.Get("/ws/jobs/{jobID}", s.handleJobWS)

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.cfg.AllowedOrigins) == 0 {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin := r.Header.Get("Origin"); origin != "" && s.cfg.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Debug("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeLookupError maps orchestrator and store errors to a status code.
func (s *Server) writeLookupError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrNoStore):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Warn(what, logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// --- HTTP handlers ---

// handleRunTests godoc
// @Summary Start a scan
// @Accept json
// @Produce json
// @Param request body RunTestsRequest true "Target page"
// @Success 202 {object} app.Job
// @Failure 400 {object} ErrorResponse
// @Router /run-tests [post]
func (s *Server) handleRunTests(w http.ResponseWriter, r *http.Request) {
	var body RunTestsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Warn("decoding run-tests body", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// A client that went away before submission starts nothing; once
	// started, the scan outlives the request.
	job, err := s.orchestrator.StartScan(r.Context(), body.URL)
	switch {
	case errors.Is(err, app.ErrEmptyURL):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, app.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.logger.Warn("starting scan", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("started scan", logging.Field{Key: "job_id", Value: job.ID}, logging.Field{Key: "url", Value: job.URL})
	writeJSON(w, http.StatusAccepted, job)
}

// @Summary Live results of the current scan
// @Produce json
// @Success 200 {object} model.ResultSnapshot
// @Router /results [get]
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.Results())
}

// @Summary Plain-language summary of the live results
// @Produce json
// @Success 200 {object} SummaryResponse
// @Router /summary [get]
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SummaryResponse{Summary: s.orchestrator.Summary()})
}

// Jobs

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		s.logger.Warn("getting job: not found", logging.Field{Key: "job_id", Value: jobID})
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if s.orchestrator.CancelJob(jobID) {
		s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.ListJobs())
}

// History

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}
	scans, err := s.orchestrator.ListScans(r.Context(), limit)
	if err != nil {
		s.writeLookupError(w, "listing scans", err)
		return
	}
	if scans == nil {
		scans = []*store.Scan{}
	}
	writeJSON(w, http.StatusOK, scans)
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	sc, err := s.orchestrator.GetScan(r.Context(), chi.URLParam(r, "scanID"))
	if err != nil {
		s.writeLookupError(w, "getting scan", err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleScanDiff(w http.ResponseWriter, r *http.Request) {
	d, err := s.orchestrator.DiffScan(r.Context(), chi.URLParam(r, "scanID"))
	if err != nil {
		s.writeLookupError(w, "diffing scan", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	entries := []scheduler.Entry{}
	if s.app.Scheduler != nil {
		entries = s.app.Scheduler.Entries()
	}
	writeJSON(w, http.StatusOK, entries)
}

// WebSockets

func (s *Server) handleResultsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	id, updates := s.orchestrator.Subscribe()
	defer s.orchestrator.Unsubscribe(id)

	gone := readUntilClosed(conn)
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	// Every client gets the events seen so far, then the live ones.
	id, events, ok := s.orchestrator.SubscribeJob(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	defer s.orchestrator.UnsubscribeJob(jobID, id)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(job); err != nil {
		return
	}

	gone := readUntilClosed(conn)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

// readUntilClosed discards client messages and closes the returned channel
// once the connection fails.
func readUntilClosed(conn *websocket.Conn) <-chan struct{} {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return gone
}
