package protocol

import (
	"skirmish/server/internal/action"
	"skirmish/server/internal/clock"
)

const (
	KindItemPickup      action.Kind = "pickup.collected"
	KindPickupSpawned   action.Kind = "pickup.spawned"
	KindPickupRespawned action.Kind = "pickup.respawned"
	KindPickupRemoved   action.Kind = "pickup.removed"
)

// PickupKind selects the effect of a pickup.
type PickupKind string

const (
	PickupHealth   PickupKind = "health"
	PickupImmunity PickupKind = "immunity"
)

// PickupKinds lists the known pickup kinds.
var PickupKinds = []PickupKind{PickupHealth, PickupImmunity}

// ItemPickup records a user collecting a pickup. Value is health points for
// health pickups and milliseconds for immunity pickups.
type ItemPickup struct {
	UserID       UserID       `json:"userId" jsonschema:"required"`
	Kind         PickupKind   `json:"kind" jsonschema:"required"`
	ItemID       EntityID     `json:"itemId" jsonschema:"required"`
	RespawnDelay clock.Millis `json:"respawnDelayMs"`
	Value        float64      `json:"value"`
}

func (ItemPickup) ActionKind() action.Kind { return KindItemPickup }

// PickupSpawned registers a pickup item in the world.
type PickupSpawned struct {
	ItemID       EntityID     `json:"itemId" jsonschema:"required"`
	Kind         PickupKind   `json:"kind" jsonschema:"required,enum=health,enum=immunity"`
	RespawnDelay clock.Millis `json:"respawnDelayMs"`
}

func (PickupSpawned) ActionKind() action.Kind { return KindPickupSpawned }

// PickupRespawned makes a collected pickup available again.
type PickupRespawned struct {
	ItemID EntityID `json:"itemId" jsonschema:"required"`
}

func (PickupRespawned) ActionKind() action.Kind { return KindPickupRespawned }

// PickupRemoved deletes a pickup from the world.
type PickupRemoved struct {
	ItemID EntityID `json:"itemId" jsonschema:"required"`
}

func (PickupRemoved) ActionKind() action.Kind { return KindPickupRemoved }
