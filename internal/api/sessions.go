package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"davel-library/internal/common/logger"
	"davel-library/internal/common/metrics"
	"davel-library/internal/membership/wizard"
	"davel-library/internal/models"

	"github.com/google/uuid"
)

var ErrInvalidSessionID = errors.New("INVALID_SESSION_ID")

// WizardFactory builds the wizard for a session. It restores any draft
// saved under that session.
type WizardFactory func(ctx context.Context, sessionID string, notifier wizard.Notifier) (*wizard.Wizard, error)

// ToastQueue buffers toasts until the client polls for them.
type ToastQueue struct {
	mu    sync.Mutex
	items []models.Toast
}

func (q *ToastQueue) Notify(t models.Toast) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, t)
}

// Drain returns and removes every queued toast, oldest first.
func (q *ToastQueue) Drain() []models.Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	if out == nil {
		out = []models.Toast{}
	}
	return out
}

type session struct {
	id       string
	wizard   *wizard.Wizard
	toasts   *ToastQueue
	lastSeen time.Time
}

// SessionManager keeps one wizard per session in memory and evicts idle
// ones. An evicted session is rebuilt from its saved draft on next use.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session
	factory  WizardFactory
	idle     time.Duration
	now      func() time.Time
	logger   logger.Logger
}

func NewSessionManager(factory WizardFactory, idle time.Duration, log logger.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*session),
		factory:  factory,
		idle:     idle,
		now:      time.Now,
		logger:   log,
	}
}

// Create starts a new session with a fresh id.
func (m *SessionManager) Create(ctx context.Context) (*session, error) {
	return m.Get(ctx, uuid.New().String())
}

// Get returns the session for id, building it if it is not in memory. The
// wizard is built without holding the lock; if another request stored a
// session for the same id meanwhile, that one wins.
func (m *SessionManager) Get(ctx context.Context, id string) (*session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidSessionID
	}

	if s := m.cached(id); s != nil {
		return s, nil
	}

	toasts := &ToastQueue{}
	w, err := m.factory(ctx, id, toasts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.lastSeen = m.now()
		return s, nil
	}
	s := &session{id: id, wizard: w, toasts: toasts, lastSeen: m.now()}
	m.sessions[id] = s
	metrics.WizardSessionsActive.Set(float64(len(m.sessions)))
	return s, nil
}

func (m *SessionManager) cached(id string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	s.lastSeen = m.now()
	return s
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the idle timeout and returns
// how many were dropped.
func (m *SessionManager) Sweep() int {
	if m.idle <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.idle)
	dropped := 0
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			dropped++
		}
	}
	metrics.WizardSessionsActive.Set(float64(len(m.sessions)))
	if dropped > 0 {
		m.logger.Debug("Evicted idle wizard sessions", map[string]interface{}{
			"evicted": dropped,
			"active":  len(m.sessions),
		})
	}
	return dropped
}

// Run sweeps on every interval until ctx is done.
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
