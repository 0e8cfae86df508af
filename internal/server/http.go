package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/newscast-audio-service/internal/config"
	"github.com/skypro1111/newscast-audio-service/internal/gemini"
	"github.com/skypro1111/newscast-audio-service/internal/metrics"
	"github.com/skypro1111/newscast-audio-service/internal/session"
)

// UpstreamStats exposes generative client statistics for the /stats endpoint
type UpstreamStats interface {
	GetStats() gemini.ClientStats
}

// HTTPServer provides the HTTP API for driving broadcast sessions
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	sessionMgr *session.Manager
	upstream   UpstreamStats
	metrics    *metrics.Metrics

	// Server state
	startTime time.Time
	mu        sync.RWMutex
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, sessionMgr *session.Manager, upstream UpstreamStats, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		sessionMgr: sessionMgr,
		upstream:   upstream,
		metrics:    m,
		startTime:  time.Now(),
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // synthesis can take a while
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session lifecycle and workflow endpoints
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	// Voice catalog endpoint
	mux.HandleFunc("/voices", h.withMetrics("/voices", h.handleVoices))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call the original handler
		handler(ww, r)

		// Record metrics
		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		// Record error if status code indicates an error
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// writeJSON writes a JSON response with the given status code
func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps workflow errors to HTTP status codes
func (h *HTTPServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, session.ErrUnknownItem),
		errors.Is(err, session.ErrUnknownLine),
		errors.Is(err, session.ErrNoArtifact):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrUnknownVoice):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidStage),
		errors.Is(err, session.ErrEmptySelection),
		errors.Is(err, session.ErrEmptyScript),
		errors.Is(err, session.ErrStaleResult):
		status = http.StatusConflict
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrPreviewBusy),
		errors.Is(err, session.ErrTooManySessions):
		status = http.StatusTooManyRequests
	case errors.Is(err, gemini.ErrServiceFailure),
		errors.Is(err, gemini.ErrMalformedResponse):
		status = http.StatusBadGateway
	}

	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	upstreamStats := h.upstream.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "newscast-audio-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"session_manager": map[string]interface{}{
				"status":          "running",
				"active_sessions": h.sessionMgr.GetActiveSessionCount(),
			},
			"gemini": map[string]interface{}{
				"status":          "running",
				"total_requests":  upstreamStats.TotalRequests,
				"success_rate":    upstreamStats.SuccessRate,
				"active_requests": upstreamStats.ActiveRequests,
			},
		},
	}

	h.writeJSON(w, http.StatusOK, health)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		sess, err := h.sessionMgr.CreateSession()
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, sess.GetInfo())

	case http.MethodGet:
		sessions := h.sessionMgr.GetAllSessions()
		infos := make([]session.Info, 0, len(sessions))
		for _, sess := range sessions {
			infos = append(infos, sess.GetInfo())
		}

		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"total_sessions": len(infos),
			"timestamp":      time.Now().UTC(),
			"sessions":       infos,
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionDetail routes /sessions/{id} and its sub-resources
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	sess, exists := h.sessionMgr.GetSession(parts[0])
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.writeJSON(w, http.StatusOK, sess.GetInfo())
		case http.MethodDelete:
			h.sessionMgr.RemoveSession(sess.ID)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "news":
		h.handleSessionNews(w, r, sess)
	case "selection":
		h.handleSessionSelection(w, r, sess, parts[2:])
	case "script":
		h.handleSessionScript(w, r, sess, parts[2:])
	case "voices":
		h.handleSessionVoices(w, r, sess)
	case "audio":
		h.handleSessionAudio(w, r, sess, parts[2:])
	case "back":
		h.handleSessionBack(w, r, sess)
	case "reset":
		h.handleSessionReset(w, r, sess)
	case "preview":
		h.handleSessionPreview(w, r, sess)
	default:
		http.NotFound(w, r)
	}
}

// handleSessionNews implements POST /sessions/{id}/news
func (h *HTTPServer) handleSessionNews(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := sess.FetchNews(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess.GetInfo())
}

// handleSessionSelection implements POST /sessions/{id}/selection and
// POST /sessions/{id}/selection/all
func (h *HTTPServer) handleSessionSelection(w http.ResponseWriter, r *http.Request,
	sess *session.Session, parts []string) {

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(parts) == 1 && parts[0] == "all" {
		if err := sess.SelectAll(); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, sess.GetInfo())
		return
	}

	if len(parts) != 0 {
		http.NotFound(w, r)
		return
	}

	var req struct {
		ItemID string `json:"item_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ItemID == "" {
		http.Error(w, "item_id required", http.StatusBadRequest)
		return
	}

	if err := sess.ToggleItem(req.ItemID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess.GetInfo())
}

// handleSessionScript implements POST /sessions/{id}/script and
// PUT /sessions/{id}/script/{line_id}
func (h *HTTPServer) handleSessionScript(w http.ResponseWriter, r *http.Request,
	sess *session.Session, parts []string) {

	if len(parts) == 0 {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := sess.GenerateScript(r.Context()); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, sess.GetInfo())
		return
	}

	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := sess.UpdateLine(parts[0], req.Text); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess.GetInfo())
}

// handleSessionVoices implements PUT /sessions/{id}/voices
func (h *HTTPServer) handleSessionVoices(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		VoiceHost1 string `json:"voice_host1"`
		VoiceHost2 string `json:"voice_host2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := sess.SetVoices(req.VoiceHost1, req.VoiceHost2); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess.GetInfo())
}

// handleSessionAudio implements POST /sessions/{id}/audio (synthesize),
// GET /sessions/{id}/audio (download) and POST /sessions/{id}/audio/play
func (h *HTTPServer) handleSessionAudio(w http.ResponseWriter, r *http.Request,
	sess *session.Session, parts []string) {

	if len(parts) == 1 && parts[0] == "play" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := sess.PlayArtifact(r.Context()); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "playing"})
		return
	}

	if len(parts) != 0 {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodPost:
		if err := sess.Synthesize(r.Context()); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, sess.GetInfo())

	case http.MethodGet:
		wav, err := sess.ArtifactWAV()
		if err != nil {
			h.writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Content-Disposition", `attachment; filename="newscast.wav"`)
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(wav)))
		w.Write(wav)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionBack implements POST /sessions/{id}/back
func (h *HTTPServer) handleSessionBack(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := sess.Back(); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess.GetInfo())
}

// handleSessionReset implements POST /sessions/{id}/reset
func (h *HTTPServer) handleSessionReset(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess.Reset()
	h.writeJSON(w, http.StatusOK, sess.GetInfo())
}

// handleSessionPreview implements POST /sessions/{id}/preview
func (h *HTTPServer) handleSessionPreview(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		VoiceID string `json:"voice_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VoiceID == "" {
		http.Error(w, "voice_id required", http.StatusBadRequest)
		return
	}

	if err := sess.PreviewVoice(r.Context(), req.VoiceID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// handleVoices implements the /voices endpoint
func (h *HTTPServer) handleVoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"voices": gemini.Voices(),
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"port":    h.config.HTTP.Port,
			"address": h.config.HTTP.Address,
		},
		"audio": map[string]interface{}{
			"sample_rate": h.config.Audio.SampleRate,
			"channels":    h.config.Audio.Channels,
			"bit_depth":   h.config.Audio.BitDepth,
		},
		"gemini": map[string]interface{}{
			"news_model":     h.config.Gemini.NewsModel,
			"script_model":   h.config.Gemini.ScriptModel,
			"tts_model":      h.config.Gemini.TTSModel,
			"timeout":        h.config.Gemini.Timeout,
			"max_retries":    h.config.Gemini.MaxRetries,
			"max_concurrent": h.config.Gemini.MaxConcurrent,
			"station_name":   h.config.Gemini.StationName,
			"max_news_items": h.config.Gemini.MaxNewsItems,
			// Note: API key is intentionally omitted for security
		},
		"playback": map[string]interface{}{
			"enabled":        h.config.Playback.Enabled,
			"player_command": h.config.Playback.PlayerCommand,
		},
		"session": map[string]interface{}{
			"timeout":             h.config.Session.Timeout,
			"cleanup_interval":    h.config.Session.CleanupInterval,
			"max_sessions":        h.config.Session.MaxSessions,
			"default_voice_host1": h.config.Session.DefaultVoice1,
			"default_voice_host2": h.config.Session.DefaultVoice2,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	h.writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upstreamStats := h.upstream.GetStats()
	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"gemini":    upstreamStats,
		"sessions": map[string]interface{}{
			"active_count": h.sessionMgr.GetActiveSessionCount(),
		},
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Newscast Audio Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                             "API documentation",
			"GET /health":                       "Service health check",
			"GET /voices":                       "List available host voices",
			"POST /sessions":                    "Create a broadcast session",
			"GET /sessions":                     "List all sessions",
			"GET /sessions/{id}":                "Get session state",
			"DELETE /sessions/{id}":             "Remove a session",
			"POST /sessions/{id}/news":          "Fetch today's news",
			"POST /sessions/{id}/selection":     "Toggle a news item selection",
			"POST /sessions/{id}/selection/all": "Select or deselect all items",
			"POST /sessions/{id}/script":        "Generate the broadcast script",
			"PUT /sessions/{id}/script/{line}":  "Edit a script line",
			"PUT /sessions/{id}/voices":         "Set the host voices",
			"POST /sessions/{id}/audio":         "Synthesize the broadcast audio",
			"GET /sessions/{id}/audio":          "Download the broadcast WAV",
			"POST /sessions/{id}/audio/play":    "Play the broadcast audio",
			"POST /sessions/{id}/back":          "Return to script editing",
			"POST /sessions/{id}/reset":         "Reset the session",
			"POST /sessions/{id}/preview":       "Preview a host voice",
			"GET /config":                       "Get service configuration",
			"GET /stats":                        "Get service statistics",
			"GET /metrics":                      "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, http.StatusOK, apiDoc)
}
