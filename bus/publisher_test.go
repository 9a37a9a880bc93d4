package bus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestNoopPublisher_NeverPanics(t *testing.T) {
	p := NewNoop()
	require.NotPanics(t, func() {
		p.PublishAttackModeChanged("under_attack", 150)
		p.PublishSourceBlacklisted("1.2.3.4", time.Now())
		p.Close()
	})
}

func TestEnvelope_RoundTripsThroughMsgpack(t *testing.T) {
	b, ok := marshalEnvelope("attack_mode_changed", AttackModeChanged{
		Mode:     "under_attack",
		Observed: 150,
	}, zerolog.Nop())
	require.True(t, ok)
	require.NotEmpty(t, b)

	var got Envelope
	require.NoError(t, msgpack.Unmarshal(b, &got))
	require.Equal(t, "attack_mode_changed", got.Type)
}
