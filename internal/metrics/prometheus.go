package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the newscast audio service
type Metrics struct {
	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsDestroyed prometheus.Counter
	SessionDuration   prometheus.Histogram

	// Pipeline metrics
	NewsFetches        prometheus.Counter
	NewsFetchFailures  prometheus.Counter
	ScriptGenerations  prometheus.Counter
	ScriptFailures     prometheus.Counter
	Syntheses          prometheus.Counter
	SynthesisFailures  prometheus.Counter
	SynthesisDuration  prometheus.Histogram
	ArtifactSizeBytes  prometheus.Histogram
	ArtifactDuration   prometheus.Histogram
	StaleResults       prometheus.Counter

	// Playback metrics
	Previews         prometheus.Counter
	PreviewFailures  prometheus.Counter
	PlaybackFailures prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "newscast_active_sessions",
			Help: "Current number of active broadcast sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscast_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsDestroyed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscast_sessions_destroyed_total",
			Help: "Total number of sessions destroyed",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "newscast_session_duration_seconds",
			Help:    "Lifetime of broadcast sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~3 hours
		}),

		// Pipeline metrics
		NewsFetches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscast_news_fetches_total",
			Help: "Total number of successful news fetches",
		}),
		NewsFetchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscast_news_fetch_failures_total",
			Help: "Total number of failed news fetches",
		}),
		ScriptGenerations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscast_script_generations_total",
			Help: "Total number of successful script generations",
		}),
		ScriptFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscast_script_generation_failures_total",
			Help: "Total number of failed script generations",
		}),
		Syntheses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscast_syntheses_total",
			Help: "Total number of successful broadcast syntheses",
		}),
		SynthesisFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscast_synthesis_failures_total",
			Help: "Total number of failed broadcast syntheses",
		}),
		SynthesisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "newscast_synthesis_duration_seconds",
			Help:    "Wall-clock time of the synthesis pipeline",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~8 minutes
		}),
		ArtifactSizeBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "newscast_artifact_size_bytes",
			Help:    "Size of encoded broadcast artifacts in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10), // 64KB to ~64MB
		}),
		ArtifactDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "newscast_artifact_duration_seconds",
			Help:    "Audio duration of broadcast artifacts in seconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 9), // 5s to ~21 minutes
		}),
		StaleResults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscast_stale_results_discarded_total",
			Help: "Total number of pipeline results discarded because the session moved on",
		}),

		// Playback metrics
		Previews: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscast_voice_previews_total",
			Help: "Total number of voice previews started",
		}),
		PreviewFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscast_voice_preview_failures_total",
			Help: "Total number of failed voice previews",
		}),
		PlaybackFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newscast_playback_failures_total",
			Help: "Total number of artifact playback failures",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newscast_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newscast_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newscast_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionDestroyed increments the sessions destroyed counter and records lifetime
func (m *Metrics) RecordSessionDestroyed(durationSeconds float64) {
	m.SessionsDestroyed.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordNewsFetch records the outcome of a news fetch
func (m *Metrics) RecordNewsFetch(success bool) {
	if success {
		m.NewsFetches.Inc()
	} else {
		m.NewsFetchFailures.Inc()
	}
}

// RecordScriptGeneration records the outcome of a script generation
func (m *Metrics) RecordScriptGeneration(success bool) {
	if success {
		m.ScriptGenerations.Inc()
	} else {
		m.ScriptFailures.Inc()
	}
}

// RecordSynthesis records a successful synthesis run and its artifact
func (m *Metrics) RecordSynthesis(pipelineSeconds float64, artifactBytes int, artifactSeconds float64) {
	m.Syntheses.Inc()
	m.SynthesisDuration.Observe(pipelineSeconds)
	m.ArtifactSizeBytes.Observe(float64(artifactBytes))
	m.ArtifactDuration.Observe(artifactSeconds)
}

// RecordSynthesisFailure increments the synthesis failures counter
func (m *Metrics) RecordSynthesisFailure() {
	m.SynthesisFailures.Inc()
}

// RecordStaleResultDiscarded increments the stale results counter
func (m *Metrics) RecordStaleResultDiscarded() {
	m.StaleResults.Inc()
}

// RecordPreview records the outcome of a voice preview
func (m *Metrics) RecordPreview(success bool) {
	m.Previews.Inc()
	if !success {
		m.PreviewFailures.Inc()
	}
}

// RecordPlaybackFailure increments the artifact playback failures counter
func (m *Metrics) RecordPlaybackFailure() {
	m.PlaybackFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
