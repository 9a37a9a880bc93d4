package verify

import (
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestSession(checks []Check) *Session {
	return &Session{
		state:      Verifying,
		checks:     checks,
		checkDone:  make([]Status, len(checks)),
		scratchpad: make(map[string]interface{}),
		send:       func(Packet) {},
		log:        zerolog.Nop(),
	}
}

func TestGravityCheck_TracksPredictedFallCurve(t *testing.T) {
	c := &GravityCheck{PlatformY: 64, MaxMovementTicks: 20}
	s := newTestSession([]Check{c})
	c.Initialize(s)

	const start = 74.0
	res := c.OnEvent(s, PlayerPosition{Y: start, OnGround: false})
	require.Equal(t, Pending, res.Status)

	res = c.OnEvent(s, PlayerPosition{Y: start + predictedYDelta[0], OnGround: false})
	require.Equal(t, Pending, res.Status)

	res = c.OnEvent(s, PlayerPosition{Y: start + 100, OnGround: false})
	require.Equal(t, Fail, res.Status)
	require.Equal(t, unexpectedYMotion, res.Reason)
}

func TestGravityCheck_FailsOnIllegalGroundTransition(t *testing.T) {
	c := &GravityCheck{PlatformY: 64, MaxMovementTicks: 20}
	s := newTestSession([]Check{c})
	c.Initialize(s)

	c.OnEvent(s, PlayerPosition{Y: 74, OnGround: true})
	res := c.OnEvent(s, PlayerPosition{Y: 70, OnGround: false})
	require.Equal(t, Fail, res.Status)
	require.Equal(t, illegalGroundTransition, res.Reason)
}

func TestGravityCheck_FailsOnWrongLandingHeight(t *testing.T) {
	c := &GravityCheck{PlatformY: 64, MaxMovementTicks: 20}
	s := newTestSession([]Check{c})
	c.Initialize(s)

	c.OnEvent(s, PlayerPosition{Y: 74, OnGround: false})
	res := c.OnEvent(s, PlayerPosition{Y: 70, OnGround: true})
	require.Equal(t, Fail, res.Status)
	require.Equal(t, wrongLandingHeight, res.Reason)
}

func TestCollisionCheck_PassesOnCorrectLanding(t *testing.T) {
	c := &CollisionCheck{PlatformY: 64}
	s := newTestSession([]Check{c})
	c.Initialize(s)

	res := c.OnEvent(s, PlayerPosition{Y: 69, OnGround: false})
	require.Equal(t, Pending, res.Status)

	res = c.OnEvent(s, PlayerPosition{Y: 65, OnGround: true})
	require.Equal(t, Pass, res.Status)
}

func TestCollisionCheck_FailsBelowPlatformWhileAirborne(t *testing.T) {
	c := &CollisionCheck{PlatformY: 64}
	s := newTestSession([]Check{c})
	c.Initialize(s)

	c.OnEvent(s, PlayerPosition{Y: 69, OnGround: false})
	res := c.OnEvent(s, PlayerPosition{Y: 60, OnGround: false})
	require.Equal(t, Fail, res.Status)
	require.Equal(t, "below_platform_not_on_ground", res.Reason)
}

func TestVehicleCheck_PassesAfterConformingTicks(t *testing.T) {
	c := &VehicleCheck{}
	s := newTestSession([]Check{c})
	c.Initialize(s)

	res := c.OnEvent(s, VehicleMove{X: 0, Z: 0})
	require.Equal(t, Pending, res.Status)

	for i := 0; i < vehicleConformTicks; i++ {
		res = c.OnEvent(s, VehicleMove{X: 0, Z: 0})
	}
	require.Equal(t, Pass, res.Status)
}

func TestVehicleCheck_FailsOnLateralJump(t *testing.T) {
	c := &VehicleCheck{}
	s := newTestSession([]Check{c})
	c.Initialize(s)

	c.OnEvent(s, VehicleMove{X: 0, Z: 0})
	res := c.OnEvent(s, VehicleMove{X: 50, Z: 0})
	require.Equal(t, Fail, res.Status)
	require.Equal(t, "vehicle_anomaly", res.Reason)
}

type fakePool struct {
	artifacts []CaptchaArtifact
	i         int
}

func (p *fakePool) Take() (CaptchaArtifact, bool) {
	if p.i >= len(p.artifacts) {
		return CaptchaArtifact{}, false
	}
	a := p.artifacts[p.i]
	p.i++
	return a, true
}

func TestCaptchaCheck_PassesOnCorrectAnswer(t *testing.T) {
	pool := &fakePool{artifacts: []CaptchaArtifact{{MapID: 1, Answer: "ABCD"}}}
	c := &CaptchaCheck{Pool: pool, MaxTries: 3, MaxDuration: time.Minute, Log: zerolog.Nop()}
	s := newTestSession([]Check{c})
	c.Initialize(s)

	res := c.OnEvent(s, ChatLine{Text: "abcd"})
	require.Equal(t, Pass, res.Status)
}

func TestCaptchaCheck_FailsAfterMaxTries(t *testing.T) {
	pool := &fakePool{artifacts: []CaptchaArtifact{
		{MapID: 1, Answer: "ABCD"},
	}}
	c := &CaptchaCheck{Pool: pool, MaxTries: 2, MaxDuration: time.Minute, Log: zerolog.Nop()}
	s := newTestSession([]Check{c})
	c.Initialize(s)

	res := c.OnEvent(s, ChatLine{Text: "wrong"})
	require.Equal(t, Pending, res.Status)
	res = c.OnEvent(s, ChatLine{Text: "stillwrong"})
	require.Equal(t, Fail, res.Status)
	require.Equal(t, "captcha_failed", res.Reason)
}

func TestCaptchaCheck_PassesWhenPoolEmpty(t *testing.T) {
	pool := &fakePool{}
	c := &CaptchaCheck{Pool: pool, MaxTries: 3, MaxDuration: time.Minute, Log: zerolog.Nop()}
	s := newTestSession([]Check{c})
	c.Initialize(s)

	res := c.OnEvent(s, ChatLine{Text: "anything"})
	require.Equal(t, Pass, res.Status)
}

func TestCaptchaCheck_FailsOnTimeout(t *testing.T) {
	pool := &fakePool{artifacts: []CaptchaArtifact{{MapID: 1, Answer: "ABCD"}}}
	c := &CaptchaCheck{Pool: pool, MaxTries: 3, MaxDuration: time.Nanosecond, Log: zerolog.Nop()}
	s := newTestSession([]Check{c})
	c.Initialize(s)

	time.Sleep(time.Millisecond)
	res := c.OnEvent(s, ChatLine{Text: "abcd"})
	require.Equal(t, Fail, res.Status)
	require.Equal(t, "captcha_timeout", res.Reason)
}

func TestClientBrandCheck_PassesOnMatchingBrand(t *testing.T) {
	c := &ClientBrandCheck{ValidBrand: regexp.MustCompile(`^vanilla$`)}
	s := newTestSession([]Check{c})
	c.Initialize(s)

	res := c.OnEvent(s, PluginMessageBrand{Brand: "vanilla"})
	require.Equal(t, Pass, res.Status)
}

func TestClientBrandCheck_FailsOnNonMatchingBrand(t *testing.T) {
	c := &ClientBrandCheck{ValidBrand: regexp.MustCompile(`^vanilla$`)}
	s := newTestSession([]Check{c})
	c.Initialize(s)

	res := c.OnEvent(s, PluginMessageBrand{Brand: "definitely-not-vanilla"})
	require.Equal(t, Fail, res.Status)
	require.Equal(t, "invalid_brand", res.Reason)
}
