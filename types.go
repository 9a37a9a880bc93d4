// Package core implements the connection admission and bot-verification
// pipeline: the Admission Controller and the wire-level types the
// protocol layer exchanges with it.
package core

import "time"

// SourceAddress is an opaque, hashable identifier for a connection's
// origin. Two SourceAddresses compare equal iff they identify the same
// origin; construct one with NewSourceAddress rather than building the
// struct literal so callers can't depend on its internal shape.
type SourceAddress struct {
	key string
}

// NewSourceAddress wraps a textual address (typically an IP, with or
// without a port) into a SourceAddress.
func NewSourceAddress(addr string) SourceAddress {
	return SourceAddress{key: addr}
}

// String returns the textual form of the address.
func (s SourceAddress) String() string {
	return s.key
}

// Handshake is the immutable input the protocol layer hands to the
// Admission Controller for every arriving connection.
type Handshake struct {
	Username        string
	Source          SourceAddress
	ProtocolVersion int
	Arrival         time.Time
}

// DecisionKind tags the variant an AdmissionDecision carries.
type DecisionKind int

const (
	// Admit lets the connection proceed to downstream server setup.
	Admit DecisionKind = iota
	// Queue holds the connection open; the protocol layer must not
	// disconnect it.
	Queue
	// SoftDeny disconnects the connection but, when AllowRejoin is set,
	// expects the client to reconnect immediately.
	SoftDeny
	// HardDeny disconnects the connection with no further attempt
	// expected.
	HardDeny
)

func (k DecisionKind) String() string {
	switch k {
	case Admit:
		return "admit"
	case Queue:
		return "queue"
	case SoftDeny:
		return "soft_deny"
	case HardDeny:
		return "hard_deny"
	default:
		return "unknown"
	}
}

// AdmissionDecision is the verdict Decide returns for a Handshake. Reason
// is one of the stable reason keys listed in errors.go; it is always
// empty for Admit and Queue.
type AdmissionDecision struct {
	Kind        DecisionKind
	Reason      string
	AllowRejoin bool
}

func admitDecision() AdmissionDecision {
	return AdmissionDecision{Kind: Admit}
}

func queueDecision() AdmissionDecision {
	return AdmissionDecision{Kind: Queue}
}

func softDeny(reason string, allowRejoin bool) AdmissionDecision {
	return AdmissionDecision{Kind: SoftDeny, Reason: reason, AllowRejoin: allowRejoin}
}

func hardDeny(reason string) AdmissionDecision {
	return AdmissionDecision{Kind: HardDeny, Reason: reason}
}
