package verify

import "math"

// predictedYDelta is the cumulative Y displacement a falling entity
// should have accumulated by each of the first 20 ticks, built from the
// recurrence v <- (v - 0.08) * 0.98, v0 = 0 (Minecraft's vanilla
// gravity/drag constants). spec.md §9's Open Question about whether
// this table is a cumulative sum or an instantaneous velocity is
// resolved in favor of cumulative sum (DESIGN.md decision #2).
var predictedYDelta [20]float64

func init() {
	v := 0.0
	var cumulative float64
	for k := 0; k < 20; k++ {
		v = (v - 0.08) * 0.98
		cumulative += v
		predictedYDelta[k] = cumulative
	}
}

// BlockType identifies a block palette entry used by the physics
// checks' platforms. The real block registry is the protocol layer's
// concern; the core only needs a stable numeric ID to emit in
// BlockUpdate/JoinWorld packets.
type BlockType int32

const blockStone BlockType = 1

const gravityPrefix = "gravity."

// GravityCheck exercises free-fall physics: the client is teleported
// above a platform and must report Y positions matching vanilla
// gravity until it lands exactly on the platform, per spec.md §4.7.
type GravityCheck struct {
	PlatformY        int
	MaxMovementTicks int
}

type gravityState struct {
	teleported   bool
	canFall      bool
	ticks        int
	lastY        float64
	lastOnGround bool
}

func (c *GravityCheck) state(s *Session) *gravityState {
	v, ok := s.Get(gravityPrefix + "state")
	if !ok {
		st := &gravityState{}
		s.Set(gravityPrefix+"state", st)
		return st
	}
	return v.(*gravityState)
}

func (c *GravityCheck) Initialize(s *Session) {
	if c.MaxMovementTicks <= 0 {
		c.MaxMovementTicks = 20
	}
	initialY := float64(c.PlatformY) + 10

	s.Send(JoinWorld{EntityID: 1, Gamemode: 0})
	s.Send(SpawnPosition{X: 0, Y: c.PlatformY, Z: 0})
	s.Send(TeleportAbsolute{X: 0, Y: initialY, Z: 0, TeleportID: 1})
}

func (c *GravityCheck) OnEvent(s *Session, e Event) Result {
	pos, ok := e.(PlayerPosition)
	if !ok {
		return pending()
	}

	st := c.state(s)

	if !st.teleported {
		st.teleported = true
		st.canFall = true
		st.lastY = pos.Y
		st.lastOnGround = pos.OnGround
		return pending()
	}

	var result Result
	switch {
	case st.lastOnGround && !pos.OnGround:
		result = fail(illegalGroundTransition)
	case pos.OnGround:
		if math.Abs(pos.Y-(float64(c.PlatformY)+1)) <= 0.1 {
			result = pass()
		} else {
			result = fail(wrongLandingHeight)
		}
	default:
		st.ticks++
		if st.ticks > c.MaxMovementTicks {
			result = fail(exceededFallTicks)
		} else if st.ticks <= 20 {
			expected := st.lastY + predictedYDelta[st.ticks-1]
			if math.Abs(pos.Y-expected) > 0.1 {
				result = fail(unexpectedYMotion)
			} else {
				result = pending()
			}
		} else {
			result = pending()
		}
	}

	st.lastY = pos.Y
	st.lastOnGround = pos.OnGround

	return result
}

func (c *GravityCheck) Reset(s *Session) {
	s.Delete(gravityPrefix + "state")
}

const (
	illegalGroundTransition = "illegal_ground_transition"
	wrongLandingHeight      = "wrong_landing_height"
	exceededFallTicks       = "exceeded_fall_ticks"
	unexpectedYMotion       = "unexpected_y_motion"
)
