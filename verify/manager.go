package verify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TerminationHandler is invoked exactly once per session, the moment it
// reaches a terminal state, after cleanup has run and the session has
// been removed from the manager's index. The Admission Controller uses
// this to decrement per-IP counters and record reputation failures.
type TerminationHandler func(s *Session)

// Manager owns every live VerificationSession, per spec.md §4.6.
type Manager struct {
	rememberTime time.Duration
	log          zerolog.Logger
	onTerminate  TerminationHandler

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session

	stop chan struct{}
}

// NewManager constructs a Manager. onTerminate may be nil.
func NewManager(rememberTime time.Duration, log zerolog.Logger, onTerminate TerminationHandler) *Manager {
	if onTerminate == nil {
		onTerminate = func(*Session) {}
	}
	return &Manager{
		rememberTime: rememberTime,
		log:          log,
		onTerminate:  onTerminate,
		sessions:     make(map[uuid.UUID]*Session),
		stop:         make(chan struct{}),
	}
}

// Create instantiates a session, attaches checks in order, and calls
// Initialize on each in that order, per spec.md §4.6.
func (m *Manager) Create(username, source string, checks []Check, deadline time.Duration, send func(Packet)) *Session {
	s := &Session{
		ID:         uuid.New(),
		Username:   username,
		Source:     source,
		CreatedAt:  time.Now(),
		deadline:   deadline,
		send:       send,
		log:        m.log,
		state:      Init,
		checks:     checks,
		checkDone:  make([]Status, len(checks)),
		scratchpad: make(map[string]interface{}),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	s.state = Verifying
	s.mu.Unlock()

	for _, c := range checks {
		c.Initialize(s)
	}

	// A non-positive deadline schedules no deadline goroutine; the
	// session's checks still run, and it ends only on an event, a close
	// or the stale sweep (tests exercising a single event do this
	// deliberately).
	if deadline > 0 {
		go m.watchDeadline(s, deadline)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s
}

func (m *Manager) watchDeadline(s *Session, deadline time.Duration) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-timer.C:
		s.expire("timeout")
		m.terminateIfDone(s)
	case <-m.stop:
	}
}

// Get returns the session for id, if still live.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Dispatch forwards an inbound event to the named session.
func (m *Manager) Dispatch(id uuid.UUID, e Event) {
	s, ok := m.Get(id)
	if !ok {
		return
	}
	if s.OnEvent(e) {
		m.terminate(s)
	}
}

// Close handles a peer-initiated disconnect: the session fails with
// client_closed (no reputation hit, per spec.md §5) and is cleaned up.
func (m *Manager) Close(id uuid.UUID) {
	s, ok := m.Get(id)
	if !ok {
		return
	}
	s.expire("client_closed")
	m.terminate(s)
}

func (m *Manager) terminateIfDone(s *Session) {
	if s.State().terminal() {
		m.terminate(s)
	}
}

func (m *Manager) terminate(s *Session) {
	m.mu.Lock()
	_, present := m.sessions[s.ID]
	delete(m.sessions, s.ID)
	m.mu.Unlock()

	if !present {
		return
	}

	s.cleanup()
	m.onTerminate(s)
	close(s.done)
}

// Sweep terminates sessions older than rememberTime with Failed("stale"),
// per spec.md §4.6. Intended to run every 30 seconds.
func (m *Manager) Sweep() {
	now := time.Now()

	m.mu.Lock()
	stale := make([]*Session, 0)
	for _, s := range m.sessions {
		if now.Sub(s.CreatedAt) > m.rememberTime {
			stale = append(stale, s)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.expire("stale")
		m.terminate(s)
	}
}

// Run drives the 30-second stale-session sweep until Stop is called.
func (m *Manager) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Stop ends the sweep loop and any pending deadline watchers.
func (m *Manager) Stop() {
	close(m.stop)
}

// Count returns the number of live sessions, for the admin snapshot.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
