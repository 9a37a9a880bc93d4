// Package bus fans out fire-and-forget notifications about admission
// state transitions (attack mode entered/left, a source blacklisted)
// to anything listening on NATS. Nothing in the core blocks on this —
// a dropped notification never changes an admission decision.
package bus

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Envelope is the wire shape of every published event, mirroring the
// teacher's StreamEvent{Type, Data} msgpack envelope.
type Envelope struct {
	Type string      `msgpack:"i"`
	Data interface{} `msgpack:"d"`
}

// AttackModeChanged is published whenever the Attack Detector's mode
// flips.
type AttackModeChanged struct {
	Mode      string    `msgpack:"mode"`
	Observed  int64     `msgpack:"observed"`
	Timestamp time.Time `msgpack:"ts"`
}

// SourceBlacklisted is published when a source crosses the reputation
// failure threshold.
type SourceBlacklisted struct {
	Source    string    `msgpack:"source"`
	Until     time.Time `msgpack:"until"`
	Timestamp time.Time `msgpack:"ts"`
}

// Publisher fans out admission-state notifications. Implementations
// must never block the caller on a slow or absent subscriber.
type Publisher interface {
	PublishAttackModeChanged(mode string, observed int64)
	PublishSourceBlacklisted(source string, until time.Time)
	Close()
}

// noop is the default Publisher when no bus is configured.
type noop struct{}

func (noop) PublishAttackModeChanged(string, int64)  {}
func (noop) PublishSourceBlacklisted(string, time.Time) {}
func (noop) Close()                                  {}

// NewNoop returns a Publisher that discards everything.
func NewNoop() Publisher { return noop{} }

// marshalEnvelope is shared by every publisher implementation that
// speaks the StreamEvent wire shape.
func marshalEnvelope(eventType string, data interface{}, log zerolog.Logger) ([]byte, bool) {
	b, err := msgpack.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal bus envelope")
		return nil, false
	}
	return b, true
}
