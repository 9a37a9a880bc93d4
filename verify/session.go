// Package verify implements the verification Session Manager and the
// Check composition that drives a connection from Init to Passed or
// Failed, per spec.md §4.6. Grounded on the teacher's ShardGroup (a
// manager owning a map of live per-connection state machines under a
// mutex, spawning and later stopping each one) and on marshal.go's
// dispatch-by-event-type table, generalized to dispatch-by-event-class
// across an ordered list of Checks instead of a single marshaler.
package verify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is a VerificationSession's lifecycle stage. Per spec.md §9's
// Open Question decision, the source's COMPLETE/COMPLETED duplication
// collapses here to a single Passed.
type State int

const (
	Init State = iota
	Verifying
	Passed
	Failed
	Closed
)

func (s State) terminal() bool {
	return s == Passed || s == Failed || s == Closed
}

// Session is one connection's verification state machine. Per-session
// state (scratchpad, check list) is mutated only by the goroutine
// driving that session's events; Session.mu exists solely to let
// external readers (e.g. the admin snapshot) observe a consistent view
// without racing that goroutine.
type Session struct {
	ID        uuid.UUID
	Username  string
	Source    string
	CreatedAt time.Time

	deadline time.Duration
	send     func(Packet)
	log      zerolog.Logger

	mu         sync.Mutex
	state      State
	checks     []Check
	checkDone  []Status
	scratchpad map[string]interface{}
	failReason string

	done chan struct{}
}

// Done returns a channel closed exactly once, when the Manager finishes
// terminating this session (after cleanup has run). A caller blocked in
// an admission decision can select on this alongside its own context to
// learn when verification concludes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send pushes one outbound packet to the protocol layer. Checks call
// this during Initialize/OnEvent rather than touching a transport
// directly.
func (s *Session) Send(p Packet) {
	s.send(p)
}

// Get reads a scratchpad value. Ok is false if the key was never set.
func (s *Session) Get(key string) (interface{}, bool) {
	v, ok := s.scratchpad[key]
	return v, ok
}

// Set writes a scratchpad value.
func (s *Session) Set(key string, value interface{}) {
	s.scratchpad[key] = value
}

// Delete removes a scratchpad key, used by Check.Reset.
func (s *Session) Delete(key string) {
	delete(s.scratchpad, key)
}

// State returns the session's current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FailReason returns the terminal failure reason, if any.
func (s *Session) FailReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failReason
}

// Snapshot is a read-only, race-free view of a Session for external
// readers such as the admin package.
type Snapshot struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	State      string    `json:"state"`
	FailReason string    `json:"fail_reason,omitempty"`
}

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Verifying:
		return "verifying"
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Snapshot returns a point-in-time copy safe to hand to another
// goroutine.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:         s.ID.String(),
		Username:   s.Username,
		Source:     s.Source,
		CreatedAt:  s.CreatedAt,
		State:      s.state.String(),
		FailReason: s.failReason,
	}
}

// OnEvent dispatches an inbound event to every check that hasn't yet
// reached a terminal verdict, in configured order. The first Fail wins
// and stops dispatch to later checks for this event; a session becomes
// Passed only once every check has returned Pass across the whole
// session lifetime.
func (s *Session) OnEvent(e Event) (terminal bool) {
	s.mu.Lock()
	if s.state.terminal() {
		s.mu.Unlock()
		return true
	}

	var failReason string
	allPassed := true

	for i, c := range s.checks {
		if s.checkDone[i] == Pass {
			continue
		}

		res := safeOnEvent(c, s, e)
		switch res.Status {
		case Pass:
			s.checkDone[i] = Pass
		case Fail:
			failReason = res.Reason
		default:
			allPassed = false
		}

		if failReason != "" {
			break
		}
	}

	if failReason != "" {
		s.state = Failed
		s.failReason = failReason
		s.mu.Unlock()
		return true
	}

	for _, st := range s.checkDone {
		if st != Pass {
			allPassed = false
			break
		}
	}
	if allPassed {
		s.state = Passed
		s.mu.Unlock()
		return true
	}

	s.mu.Unlock()
	return false
}

// safeOnEvent guards a Check's OnEvent against panics, turning one into
// Fail("internal") rather than letting it crash the controller, per
// spec.md §7.
func safeOnEvent(c Check, s *Session, e Event) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = fail("internal")
		}
	}()
	return c.OnEvent(s, e)
}

// expire moves a session that is not yet terminal to Failed with
// reason. The Manager applies it for timeout, stale and client_closed.
func (s *Session) expire(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.terminal() {
		return
	}
	s.state = Failed
	s.failReason = reason
}

// cleanup invokes Reset on every attached check exactly once. Called by
// the Manager on any terminal transition.
func (s *Session) cleanup() {
	for _, c := range s.checks {
		c.Reset(s)
	}
}
