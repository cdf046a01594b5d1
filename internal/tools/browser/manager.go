package browser

import (
	"context"
	"sync"

	"github.com/openfang/openfang/internal/observability"
)

// Manager owns the agent_id -> Session map: at most one session per agent,
// and at most cfg.MaxSessions sessions running at once.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cfg      LaunchConfig
	prom     *observability.Metrics
}

// WithPromMetrics attaches Prometheus instrumentation: the
// openfang_browser_sessions_active gauge is kept in sync with the session
// map on every launch and close.
func (m *Manager) WithPromMetrics(metrics *observability.Metrics) *Manager {
	m.mu.Lock()
	m.prom = metrics
	m.mu.Unlock()
	m.reportActive()
	return m
}

// reportActive pushes the current session count to the gauge, if attached.
func (m *Manager) reportActive() {
	m.mu.Lock()
	prom := m.prom
	count := len(m.sessions)
	m.mu.Unlock()
	if prom != nil {
		prom.SetBrowserSessionsActive(count)
	}
}

// NewManager creates a Manager with the given launch configuration.
func NewManager(cfg LaunchConfig) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 4
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
	}
}

// sessionFor returns the existing session for agentID, launching a new one
// if none exists. It enforces MaxSessions before launching.
func (m *Manager) sessionFor(agentID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[agentID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, ErrCapacity
	}
	m.mu.Unlock()

	proc, wsURL, err := launchChromium(m.cfg)
	if err != nil {
		return nil, err
	}

	conn, err := dialCDP(wsURL)
	if err != nil {
		_ = proc.Process.Kill()
		return nil, err
	}

	s := newSession(agentID, conn, proc, m.cfg)
	s.Enable(context.Background())

	m.mu.Lock()
	// Another goroutine may have raced us; prefer the one already stored.
	if existing, ok := m.sessions[agentID]; ok {
		m.mu.Unlock()
		_ = s.Close()
		return existing, nil
	}
	m.sessions[agentID] = s
	m.mu.Unlock()
	m.reportActive()

	return s, nil
}

// CloseSession removes and closes the session for agentID, if any.
func (m *Manager) CloseSession(agentID string) error {
	m.mu.Lock()
	s, ok := m.sessions[agentID]
	if ok {
		delete(m.sessions, agentID)
	}
	m.mu.Unlock()
	m.reportActive()

	if !ok {
		return ErrSessionNotFound
	}
	return s.Close()
}

// CloseAll tears down every running session. Intended for process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	m.reportActive()

	for _, s := range sessions {
		_ = s.Close()
	}
}

// ActiveSessions reports how many sessions are currently running.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
