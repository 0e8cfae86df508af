package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/newscast-audio-service/internal/metrics"
	"github.com/skypro1111/newscast-audio-service/internal/playback"
)

// ManagerConfig bounds the session pool.
type ManagerConfig struct {
	// MaxSessions caps concurrently live sessions; 0 means unlimited.
	MaxSessions int

	// SessionTimeout is the idle time after which a session is reclaimed.
	SessionTimeout time.Duration

	// CleanupInterval is how often the reclaim sweep runs.
	CleanupInterval time.Duration

	// DefaultVoice1 and DefaultVoice2 seed the host voices of new sessions.
	DefaultVoice1 string
	DefaultVoice2 string
}

// Manager owns the session pool and the shared playback output. Sessions
// are created on demand, looked up by ID and reclaimed when idle.
type Manager struct {
	config  ManagerConfig
	svc     Service
	output  *playback.Output
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewManager creates a session manager and starts its cleanup routine.
func NewManager(cfg ManagerConfig, svc Service, output *playback.Output,
	logger *slog.Logger, m *metrics.Metrics) *Manager {

	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	mgr := &Manager{
		config:      cfg,
		svc:         svc,
		output:      output,
		logger:      logger,
		metrics:     m,
		sessions:    make(map[string]*Session),
		stopCleanup: make(chan struct{}),
	}

	go mgr.cleanupRoutine()

	return mgr
}

// CreateSession makes a new session at the start stage.
func (m *Manager) CreateSession() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, m.config.MaxSessions)
	}

	id := uuid.New().String()
	sess := newSession(id, m.svc, m.output, m.logger, m.metrics,
		m.config.DefaultVoice1, m.config.DefaultVoice2)
	m.sessions[id] = sess

	m.metrics.RecordSessionCreated()
	m.metrics.SetActiveSessions(len(m.sessions))
	m.logger.Info("Session created", slog.String("session_id", id))

	return sess, nil
}

// GetSession returns the session with the given ID, if it exists.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// GetAllSessions returns a snapshot of all live sessions.
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// RemoveSession tears down and removes a session.
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return false
	}

	sess.teardown()
	m.metrics.RecordSessionDestroyed(time.Since(sess.CreatedAt).Seconds())
	m.metrics.SetActiveSessions(count)
	m.logger.Info("Session removed", slog.String("session_id", id))
	return true
}

// GetActiveSessionCount returns the number of live sessions.
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stop halts the cleanup routine, tears down all sessions and closes the
// shared playback output.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
	})

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.teardown()
		m.metrics.RecordSessionDestroyed(time.Since(sess.CreatedAt).Seconds())
	}
	m.metrics.SetActiveSessions(0)

	m.output.Close()

	m.logger.Info("Session manager stopped", slog.Int("sessions_torn_down", len(sessions)))
}

// cleanupRoutine periodically reclaims idle sessions.
func (m *Manager) cleanupRoutine() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupIdleSessions()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Manager) cleanupIdleSessions() {
	cutoff := time.Now().Add(-m.config.SessionTimeout)

	m.mu.RLock()
	var idle []string
	for id, sess := range m.sessions {
		if sess.LastActivity().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range idle {
		if m.RemoveSession(id) {
			m.logger.Info("Reclaimed idle session", slog.String("session_id", id))
		}
	}
}
