package verify

import "math"

const vehiclePrefix = "vehicle."

// vehicleConformTicks is how many consecutive conforming movement
// packets are required before a VehicleCheck passes.
const vehicleConformTicks = 10

// vehicleLateralTolerance bounds how far a vehicle carrying a
// non-interacting passenger may drift sideways between two packets;
// a real player mashing movement keys while mounted exceeds this.
const vehicleLateralTolerance = 0.2

// VehicleCheck requires the client's VehicleMove reports to drift no
// more than vehicleLateralTolerance between packets, for
// vehicleConformTicks consecutive packets. Initialize only teleports
// the client; it sends no packet that spawns a vehicle or seats the
// client in one.
type VehicleCheck struct{}

type vehicleState struct {
	started  bool
	lastX    float64
	lastZ    float64
	conforms int
}

func (c *VehicleCheck) state(s *Session) *vehicleState {
	v, ok := s.Get(vehiclePrefix + "state")
	if !ok {
		st := &vehicleState{}
		s.Set(vehiclePrefix+"state", st)
		return st
	}
	return v.(*vehicleState)
}

func (c *VehicleCheck) Initialize(s *Session) {
	s.Send(TeleportAbsolute{X: 0, Y: 64, Z: 0, TeleportID: 3})
}

func (c *VehicleCheck) OnEvent(s *Session, e Event) Result {
	move, ok := e.(VehicleMove)
	if !ok {
		return pending()
	}

	st := c.state(s)

	if !st.started {
		st.started = true
		st.lastX, st.lastZ = move.X, move.Z
		return pending()
	}

	dx := math.Abs(move.X - st.lastX)
	dz := math.Abs(move.Z - st.lastZ)
	st.lastX, st.lastZ = move.X, move.Z

	if dx > vehicleLateralTolerance || dz > vehicleLateralTolerance {
		return fail("vehicle_anomaly")
	}

	st.conforms++
	if st.conforms >= vehicleConformTicks {
		return pass()
	}
	return pending()
}

func (c *VehicleCheck) Reset(s *Session) {
	s.Delete(vehiclePrefix + "state")
}
