package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RajaChaiban/InstaAgent/internal/config"
	"github.com/RajaChaiban/InstaAgent/internal/domain"
	"github.com/RajaChaiban/InstaAgent/internal/scheduler"
)

// Server is the HTTP control plane. Expected skip/failed outcomes ride in
// 200 response bodies; 4xx is reserved for validation problems and 500 for
// control-plane bugs.
type Server struct {
	cfg        *config.Config
	sched      *scheduler.Scheduler
	runner     scheduler.BatchRunner
	ledger     domain.CommentLedger
	logger     *slog.Logger
	httpServer *http.Server

	// inflight tracks webhook jobs by their sorted account set so the
	// same set cannot be queued twice concurrently.
	mu       sync.Mutex
	inflight map[string]string
}

// NewServer creates the control-plane server.
func NewServer(
	cfg *config.Config,
	sched *scheduler.Scheduler,
	runner scheduler.BatchRunner,
	ledger domain.CommentLedger,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:      cfg,
		sched:    sched,
		runner:   runner,
		ledger:   ledger,
		logger:   logger,
		inflight: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /run-bot", s.handleRunBot)
	mux.HandleFunc("POST /smart-comment/run", s.handleSmartCommentRun)
	mux.HandleFunc("GET /smart-comment/stats", s.handleStats)
	mux.HandleFunc("GET /smart-comment/history", s.handleHistory)
	mux.HandleFunc("POST /scheduler/start", s.handleSchedulerStart)
	mux.HandleFunc("POST /scheduler/stop", s.handleSchedulerStop)
	mux.HandleFunc("POST /scheduler/run-now", s.handleSchedulerRunNow)
	mux.HandleFunc("GET /scheduler/status", s.handleSchedulerStatus)
	mux.HandleFunc("GET /scheduler/events", s.handleSchedulerEvents)
	mux.HandleFunc("POST /webhook/run-bot", s.handleWebhookRunBot)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     withLogging(logger, mux),
		ReadTimeout: 10 * time.Second,
		// No write timeout: batch runs triggered synchronously can
		// outlive any reasonable fixed value, and /scheduler/events
		// streams indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRunBot(w http.ResponseWriter, r *http.Request) {
	if len(s.cfg.Targets) == 0 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "no target accounts configured")
		return
	}

	results := s.runner.Run(r.Context(), s.cfg.Targets)
	engaged, skipped, failed := tally(results)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("processed %d accounts: %d engaged, %d skipped, %d failed",
			len(results), engaged, skipped, failed),
	})
}

func (s *Server) handleSmartCommentRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Targets []string `json:"targets"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed JSON body")
			return
		}
	}

	targets := body.Targets
	if len(targets) == 0 {
		targets = s.cfg.Targets
	}
	if err := validateTargets(targets); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	results := s.runner.Run(r.Context(), targets)
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "days must be a positive integer")
			return
		}
		days = parsed
	}

	stats, err := s.ledger.Stats(r.Context(), r.URL.Query().Get("account"), days)
	if err != nil {
		s.logger.Error("stats query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to query stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats, "windowDays": days})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 200 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}

	records, err := s.ledger.RecentRecords(r.Context(), limit)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to query history")
		return
	}
	if records == nil {
		records = []domain.CommentRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleSchedulerStart(w http.ResponseWriter, _ *http.Request) {
	s.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"status": s.sched.Status()})
}

func (s *Server) handleSchedulerStop(w http.ResponseWriter, _ *http.Request) {
	s.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"status": s.sched.Status()})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": s.sched.Status()})
}

func (s *Server) handleSchedulerRunNow(w http.ResponseWriter, r *http.Request) {
	snapshot := s.sched.RunNow(r.Context(), nil)
	if snapshot == nil {
		// Overlap guard dropped the run; that is not an error.
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "a run is already in progress, trigger skipped",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runId":   snapshot.RunID,
		"results": snapshot.Results,
	})
}

func (s *Server) handleWebhookRunBot(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Accounts []string `json:"accounts"`
		APIKey   string   `json:"apiKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed JSON body")
		return
	}

	if s.cfg.WebhookAPIKey != "" && body.APIKey != s.cfg.WebhookAPIKey {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid api key")
		return
	}
	if err := validateTargets(body.Accounts); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	// The job key is the sorted account set, so the same set cannot be
	// queued twice while one run is in flight regardless of order.
	sorted := append([]string(nil), body.Accounts...)
	sort.Strings(sorted)
	jobKey := strings.Join(sorted, ",")

	s.mu.Lock()
	if runningID, ok := s.inflight[jobKey]; ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "Conflict",
			"message": fmt.Sprintf("job %s is already running for these accounts", runningID),
		})
		return
	}
	jobID := uuid.NewString()
	s.inflight[jobKey] = jobID
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inflight, jobKey)
			s.mu.Unlock()
		}()
		s.logger.Info("webhook job started", "job_id", jobID, "accounts", len(body.Accounts))
		results := s.runner.Run(context.Background(), body.Accounts)
		engaged, skipped, failed := tally(results)
		s.logger.Info("webhook job finished",
			"job_id", jobID, "engaged", engaged, "skipped", skipped, "failed", failed)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

func validateTargets(targets []string) error {
	if len(targets) == 0 {
		return fmt.Errorf("account list must not be empty")
	}
	for _, t := range targets {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("account list contains an empty entry")
		}
	}
	return nil
}

func tally(results []domain.CommentResult) (engaged, skipped, failed int) {
	for _, res := range results {
		switch res.Action {
		case domain.ActionEngaged:
			engaged++
		case domain.ActionSkipped:
			skipped++
		case domain.ActionFailed:
			failed++
		}
	}
	return engaged, skipped, failed
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack exposes the underlying connection so the websocket upgrade on
// /scheduler/events works through the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
