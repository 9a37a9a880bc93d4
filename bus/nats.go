package bus

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NatsPublisher publishes admission-state events to a NATS subject,
// grounded on the teacher's natsClient *nats.Conn field and its
// Publish-then-log-on-error pattern, minus the STAN layer (dropped,
// see SPEC_FULL.md §4 — redundant once publishing talks to nats.go
// directly).
type NatsPublisher struct {
	conn    *nats.Conn
	subject string
	log     zerolog.Logger
}

// NewNatsPublisher connects to address and publishes under subject.
func NewNatsPublisher(address, subject string, log zerolog.Logger) (*NatsPublisher, error) {
	conn, err := nats.Connect(address)
	if err != nil {
		return nil, err
	}
	return &NatsPublisher{conn: conn, subject: subject, log: log}, nil
}

func (p *NatsPublisher) publish(eventType string, data interface{}) {
	b, ok := marshalEnvelope(eventType, data, p.log)
	if !ok {
		return
	}
	if err := p.conn.Publish(p.subject, b); err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish bus event")
	}
}

// PublishAttackModeChanged implements Publisher.
func (p *NatsPublisher) PublishAttackModeChanged(mode string, observed int64) {
	p.publish("attack_mode_changed", AttackModeChanged{
		Mode:      mode,
		Observed:  observed,
		Timestamp: time.Now(),
	})
}

// PublishSourceBlacklisted implements Publisher.
func (p *NatsPublisher) PublishSourceBlacklisted(source string, until time.Time) {
	p.publish("source_blacklisted", SourceBlacklisted{
		Source:    source,
		Until:     until,
		Timestamp: time.Now(),
	})
}

// Close closes the underlying NATS connection; it does not drain it.
func (p *NatsPublisher) Close() {
	p.conn.Close()
}
