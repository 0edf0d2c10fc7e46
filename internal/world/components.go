package world

import (
	"github.com/yohamta/donburi"

	"skirmish/server/internal/protocol"
)

// IdentityData names an entity across peers.
type IdentityData struct {
	ID protocol.EntityID
}

// TransformData places an entity in the world.
type TransformData struct {
	Position protocol.Vec3
}

// Shape selects the collider geometry.
type Shape int

const (
	ShapeSphere Shape = iota
	ShapeBox
)

// ColliderData is the entity's physics volume. Spheres use Radius, boxes
// use HalfExtents around the transform position.
type ColliderData struct {
	Shape       Shape
	Radius      float64
	HalfExtents protocol.Vec3
	// Trigger colliders report contacts but never block rays.
	Trigger bool
}

// NetworkObjectData records the user that owns an entity over the network.
type NetworkObjectData struct {
	Owner protocol.UserID
}

var (
	Identity      = donburi.NewComponentType[IdentityData]()
	Transform     = donburi.NewComponentType[TransformData]()
	Collider      = donburi.NewComponentType[ColliderData]()
	NetworkObject = donburi.NewComponentType[NetworkObjectData]()

	// AvatarTag marks user-controlled avatars.
	AvatarTag = donburi.NewTag()
	// PickupTag marks pickup items.
	PickupTag = donburi.NewTag()
)
