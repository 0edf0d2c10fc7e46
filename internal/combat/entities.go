package combat

import "skirmish/server/internal/protocol"

// Entities is the view of the entity world combat needs.
type Entities interface {
	// Exists reports whether id still resolves to a live entity.
	Exists(id protocol.EntityID) bool
	// AvatarOf returns the avatar entity controlled by user.
	AvatarOf(user protocol.UserID) (protocol.EntityID, bool)
	// IsAvatar reports whether id is a user-controlled avatar.
	IsAvatar(id protocol.EntityID) bool
	// NetworkOwner returns the user that owns id over the network.
	NetworkOwner(id protocol.EntityID) (protocol.UserID, bool)
}
