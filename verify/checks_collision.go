package verify

import "math"

const collisionPrefix = "collision."

// CollisionCheck places the client on a small block platform and
// requires it to settle on top of it rather than clipping through or
// floating above it, per spec.md §4.8.
type CollisionCheck struct {
	PlatformY int
}

type collisionState struct {
	teleported bool
}

func (c *CollisionCheck) state(s *Session) *collisionState {
	v, ok := s.Get(collisionPrefix + "state")
	if !ok {
		st := &collisionState{}
		s.Set(collisionPrefix+"state", st)
		return st
	}
	return v.(*collisionState)
}

func (c *CollisionCheck) Initialize(s *Session) {
	for x := -2; x <= 2; x++ {
		for z := -2; z <= 2; z++ {
			s.Send(BlockUpdate{X: x, Y: c.PlatformY, Z: z, BlockID: int32(blockStone)})
		}
	}
	s.Send(TeleportAbsolute{X: 0, Y: float64(c.PlatformY) + 5, Z: 0, TeleportID: 2})
}

// OnEvent folds the onVerify requirement ("current onGround must be
// true") into the first onGround observation at the correct height,
// since the Check contract has no separate end-of-session hook to call
// it from.
func (c *CollisionCheck) OnEvent(s *Session, e Event) Result {
	pos, ok := e.(PlayerPosition)
	if !ok {
		return pending()
	}

	st := c.state(s)

	if !st.teleported {
		st.teleported = true
		return pending()
	}

	if pos.OnGround {
		if math.Abs(pos.Y-(float64(c.PlatformY)+1)) <= 0.1 {
			return pass()
		}
		return fail("collision_wrong_y")
	}

	if pos.Y < float64(c.PlatformY) {
		return fail("below_platform_not_on_ground")
	}

	return pending()
}

func (c *CollisionCheck) Reset(s *Session) {
	s.Delete(collisionPrefix + "state")
}
