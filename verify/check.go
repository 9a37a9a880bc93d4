package verify

// Status is a Check's verdict for one inbound event.
type Status int

const (
	// Pending means the check wants more events before it can decide.
	Pending Status = iota
	// Pass means the check is terminally satisfied.
	Pass
	// Fail means the check terminally rejected the session.
	Fail
)

// Result is what a Check returns from OnEvent. Reason is only
// meaningful when Status is Fail, and must be one of the stable keys
// in spec.md §7.
type Result struct {
	Status Status
	Reason string
}

func pending() Result       { return Result{Status: Pending} }
func pass() Result          { return Result{Status: Pass} }
func fail(reason string) Result { return Result{Status: Fail, Reason: reason} }

// Check is a verification probe, per spec.md §4.6/§9. The Session is
// passed as a parameter to every operation rather than stored on the
// Check, so a Check never needs to hold a back-reference to the Session
// that owns it.
//
// A Check must only read/write scratchpad keys under its own prefix
// (see Session.Scratchpad) and must treat every event type it does not
// recognise as a no-op Pending.
type Check interface {
	// Initialize is called once, in the session's configured check
	// order, when the session is created. It may push outbound packets
	// via session.Send.
	Initialize(s *Session)

	// OnEvent is called for every inbound event while the check has not
	// yet returned a terminal Pass/Fail.
	OnEvent(s *Session, e Event) Result

	// Reset releases the check's scratchpad keys. Called exactly once,
	// on any terminal transition of the owning session.
	Reset(s *Session)
}
