package core

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/haze-gate/admission-core/verify"
)

func testConfig() Configuration {
	cfg := Default()
	cfg.Gravity.Enabled = false
	cfg.CollisionEnabled = false
	cfg.VehicleEnabled = false
	cfg.MapCaptcha.Enabled = false
	cfg.ClientBrandEnabled = false
	cfg.VerificationDeadline = 2 * time.Second
	cfg.RememberTime = time.Minute
	return cfg
}

func newTestController(t *testing.T, cfg Configuration) *Controller {
	t.Helper()
	c := NewController(cfg, zerolog.Nop(), nil)
	require.NoError(t, c.Enable())
	t.Cleanup(c.Disable)
	return c
}

func TestController_RejectsInvalidUsername(t *testing.T) {
	c := newTestController(t, testConfig())

	h := Handshake{Username: "!!!", Source: NewSourceAddress("1.1.1.1")}
	decision, err := c.Decide(context.Background(), h, func(verify.Packet) {}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, HardDeny, decision.Kind)
	require.Equal(t, ReasonInvalidName, decision.Reason)
}

func TestController_DecideBeforeEnableReturnsErrNotEnabled(t *testing.T) {
	c := NewController(testConfig(), zerolog.Nop(), nil)

	_, err := c.Decide(context.Background(), Handshake{Username: "steve", Source: NewSourceAddress("1.1.1.1")}, func(verify.Packet) {}, nil, nil)
	require.ErrorIs(t, err, ErrNotEnabled)
}

func TestController_RejectsBlacklistedSource(t *testing.T) {
	c := newTestController(t, testConfig())

	source := NewSourceAddress("2.2.2.2")
	for i := 0; i < c.config.BlacklistThreshold; i++ {
		c.reputation.RecordFailure(source.String())
	}

	decision, err := c.Decide(context.Background(), Handshake{Username: "steve", Source: source}, func(verify.Packet) {}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, HardDeny, decision.Kind)
	require.Equal(t, ReasonBlacklisted, decision.Reason)
}

func TestController_RejectsOverIPLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOnlinePerIp = 1
	c := newTestController(t, cfg)

	source := NewSourceAddress("3.3.3.3")
	c.liveIncrement(source.String())

	decision, err := c.Decide(context.Background(), Handshake{Username: "steve", Source: source}, func(verify.Packet) {}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, HardDeny, decision.Kind)
	require.Equal(t, ReasonIPLimit, decision.Reason)
}

func TestController_ForceRejoinSoftDenies(t *testing.T) {
	cfg := testConfig()
	cfg.ForceRejoin = true
	c := newTestController(t, cfg)

	h := Handshake{Username: "steve", Source: NewSourceAddress("4.4.4.4")}
	decision, err := c.Decide(context.Background(), h, func(verify.Packet) {}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, SoftDeny, decision.Kind)
	require.Equal(t, ReasonPleaseReconnect, decision.Reason)
	require.True(t, decision.AllowRejoin)

	require.True(t, c.rejoin.Consume("steve", h.Source.String()))
}

func TestController_ForceRejoinSecondHandshakeReachesVerification(t *testing.T) {
	cfg := testConfig()
	cfg.ForceRejoin = true
	cfg.ClientBrandEnabled = true
	c := newTestController(t, cfg)

	h := Handshake{Username: "steve", Source: NewSourceAddress("4.4.4.5")}

	first, err := c.Decide(context.Background(), h, func(verify.Packet) {}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, SoftDeny, first.Kind)
	require.Equal(t, ReasonPleaseReconnect, first.Reason)

	sessionID := make(chan uuid.UUID, 1)
	decisionCh := make(chan AdmissionDecision, 1)

	go func() {
		decision, err := c.Decide(context.Background(), h, func(verify.Packet) {}, func(id uuid.UUID) {
			sessionID <- id
		}, nil)
		require.NoError(t, err)
		decisionCh <- decision
	}()

	id := <-sessionID
	c.Dispatch(id, verify.PluginMessageBrand{Brand: "vanilla"})

	select {
	case decision := <-decisionCh:
		require.Equal(t, Admit, decision.Kind)
	case <-time.After(time.Second):
		t.Fatal("second handshake did not reach verification and admit")
	}
}

func TestController_RejoinEntrySkipsStraightToVerification(t *testing.T) {
	cfg := testConfig()
	cfg.ClientBrandEnabled = true
	cfg.VerificationDeadline = 2 * time.Second
	c := newTestController(t, cfg)

	h := Handshake{Username: "steve", Source: NewSourceAddress("5.5.5.5")}
	c.rejoin.Issue(h.Username, h.Source.String())

	sessionID := make(chan uuid.UUID, 1)
	decisionCh := make(chan AdmissionDecision, 1)
	errCh := make(chan error, 1)

	go func() {
		decision, err := c.Decide(context.Background(), h, func(verify.Packet) {}, func(id uuid.UUID) {
			sessionID <- id
		}, nil)
		decisionCh <- decision
		errCh <- err
	}()

	id := <-sessionID
	c.Dispatch(id, verify.PluginMessageBrand{Brand: "vanilla"})

	select {
	case decision := <-decisionCh:
		require.NoError(t, <-errCh)
		require.Equal(t, Admit, decision.Kind)
	case <-time.After(time.Second):
		t.Fatal("Decide did not return after the verification session passed")
	}
}

func TestController_VerificationFailureRecordsReputationFailure(t *testing.T) {
	cfg := testConfig()
	cfg.ClientBrandEnabled = true
	cfg.ValidBrandRegex = `^vanilla$`
	cfg.BlacklistThreshold = 1
	c := newTestController(t, cfg)

	h := Handshake{Username: "steve", Source: NewSourceAddress("6.6.6.6")}
	c.rejoin.Issue(h.Username, h.Source.String())

	sessionID := make(chan uuid.UUID, 1)
	decisionCh := make(chan AdmissionDecision, 1)

	go func() {
		decision, _ := c.Decide(context.Background(), h, func(verify.Packet) {}, func(id uuid.UUID) {
			sessionID <- id
		}, nil)
		decisionCh <- decision
	}()

	id := <-sessionID
	c.Dispatch(id, verify.PluginMessageBrand{Brand: "definitely-not-vanilla"})

	select {
	case decision := <-decisionCh:
		require.Equal(t, HardDeny, decision.Kind)
		require.Equal(t, ReasonInvalidBrand, decision.Reason)
	case <-time.After(time.Second):
		t.Fatal("Decide did not return after the verification session failed")
	}

	require.True(t, c.reputation.IsBlacklisted(h.Source.String()))
	require.Eventually(t, func() bool {
		return c.liveCount(h.Source.String()) == 0
	}, time.Second, time.Millisecond)
}

func TestController_ClientClosedDuringVerificationDoesNotRecordReputationFailure(t *testing.T) {
	cfg := testConfig()
	cfg.ClientBrandEnabled = true
	cfg.BlacklistThreshold = 1
	c := newTestController(t, cfg)

	h := Handshake{Username: "steve", Source: NewSourceAddress("7.7.7.7")}
	c.rejoin.Issue(h.Username, h.Source.String())

	sessionID := make(chan uuid.UUID, 1)
	decisionCh := make(chan AdmissionDecision, 1)

	go func() {
		decision, _ := c.Decide(context.Background(), h, func(verify.Packet) {}, func(id uuid.UUID) {
			sessionID <- id
		}, nil)
		decisionCh <- decision
	}()

	id := <-sessionID
	c.ClientClosed(id)

	select {
	case decision := <-decisionCh:
		require.Equal(t, HardDeny, decision.Kind)
		require.Equal(t, ReasonClientClosed, decision.Reason)
	case <-time.After(time.Second):
		t.Fatal("Decide did not return after the connection closed")
	}

	require.False(t, c.reputation.IsBlacklisted(h.Source.String()))
}

func TestController_AttackModeQueuesThenDrainsToOutcome(t *testing.T) {
	cfg := testConfig()
	cfg.ClientBrandEnabled = true
	cfg.MinPlayersForAttack = 1
	cfg.MinAttackDuration = 10 * time.Second
	cfg.RejoinDelay = 0
	c := newTestController(t, cfg)

	h := Handshake{Username: "steve", Source: NewSourceAddress("8.8.8.8")}
	c.attackDetector.Increment()
	require.Eventually(t, func() bool {
		return c.attackDetector.Mode().String() == "under_attack"
	}, 2*time.Second, 10*time.Millisecond)

	var queuedPacket verify.Packet
	outcomeCh := make(chan AdmissionDecision, 1)
	sessionID := make(chan uuid.UUID, 1)

	decision, err := c.Decide(context.Background(), h, func(p verify.Packet) {
		queuedPacket = p
	}, func(id uuid.UUID) {
		sessionID <- id
	}, func(d AdmissionDecision) {
		outcomeCh <- d
	})
	require.NoError(t, err)
	require.Equal(t, Queue, decision.Kind)
	require.IsType(t, verify.HoldOpenWithActionbar{}, queuedPacket)

	id := <-sessionID
	c.Dispatch(id, verify.PluginMessageBrand{Brand: "vanilla"})

	select {
	case outcome := <-outcomeCh:
		require.Equal(t, Admit, outcome.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("queued handshake never drained to an outcome")
	}
}

func TestController_ReEnqueueWithinRejoinDelayIsThrottled(t *testing.T) {
	cfg := testConfig()
	cfg.MinPlayersForAttack = 1
	cfg.MinAttackDuration = 10 * time.Second
	cfg.RejoinDelay = time.Minute
	c := newTestController(t, cfg)

	source := NewSourceAddress("9.9.9.9")
	c.attackDetector.Increment()
	require.Eventually(t, func() bool {
		return c.attackDetector.Mode().String() == "under_attack"
	}, 2*time.Second, 10*time.Millisecond)

	first, err := c.Decide(context.Background(), Handshake{Username: "steve", Source: source}, func(verify.Packet) {}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, Queue, first.Kind)

	second, err := c.Decide(context.Background(), Handshake{Username: "steve", Source: source}, func(verify.Packet) {}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, SoftDeny, second.Kind)
	require.Equal(t, ReasonWaitBeforeReconnecting, second.Reason)
	require.False(t, second.AllowRejoin)
}
