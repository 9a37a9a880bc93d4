package verify

// Packet is the sum type of opaque outbound packets the core emits; the
// protocol layer serialises each variant per the client's version, per
// spec.md §6. The core never encodes wire bytes itself — that codec is
// out of scope.
type Packet interface {
	isPacket()
}

// JoinWorld is sent once per Check initialization that needs the client
// in a world before it can be probed.
type JoinWorld struct {
	EntityID int32
	Gamemode int32
}

func (JoinWorld) isPacket() {}

// SpawnPosition anchors the client's compass/respawn point.
type SpawnPosition struct {
	X, Y, Z int
}

func (SpawnPosition) isPacket() {}

// TeleportAbsolute moves the client and expects a TeleportConfirm with
// the matching TeleportID.
type TeleportAbsolute struct {
	X, Y, Z    float64
	TeleportID int32
}

func (TeleportAbsolute) isPacket() {}

// BlockUpdate places a single block, used to build Collision's
// platform.
type BlockUpdate struct {
	X, Y, Z int
	BlockID int32
}

func (BlockUpdate) isPacket() {}

// MapImage carries a rendered CAPTCHA as Minecraft map-item palette
// bytes.
type MapImage struct {
	MapID       int32
	PaletteData []byte // 128*128 = 16384 bytes
}

func (MapImage) isPacket() {}

// DisconnectWith is the terminal packet for SoftDeny/HardDeny; ReasonKey
// is one of the stable keys in spec.md §7, which the protocol layer
// localises.
type DisconnectWith struct {
	ReasonKey string
}

func (DisconnectWith) isPacket() {}

// HoldOpenWithActionbar is sent for Queue decisions; it must never be
// treated as a disconnect by the protocol layer.
type HoldOpenWithActionbar struct {
	MessageKey string
}

func (HoldOpenWithActionbar) isPacket() {}
