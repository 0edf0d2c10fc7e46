package state

import (
	"time"

	"skirmish/server/internal/action"
	"skirmish/server/internal/clock"
	"skirmish/server/internal/protocol"
)

// DefaultPickupRespawnDelay applies when an action carries no delay.
const DefaultPickupRespawnDelay = 60 * time.Second

// PickupRecord is the availability of one pickup item. While inactive,
// LastPickupTime is the collection time and the item becomes eligible again
// at LastPickupTime + RespawnDelay.
type PickupRecord struct {
	Active         bool                `json:"active"`
	Kind           protocol.PickupKind `json:"kind"`
	LastPickupTime clock.Millis        `json:"lastPickupTime"`
	RespawnDelay   clock.Millis        `json:"respawnDelayMs"`
}

// RespawnAt returns the instant an inactive pickup becomes eligible again.
func (r PickupRecord) RespawnAt() clock.Millis {
	return r.LastPickupTime + r.RespawnDelay
}

func respawnDelayOrDefault(delay clock.Millis) clock.Millis {
	if delay <= 0 {
		return clock.FromDuration(DefaultPickupRespawnDelay)
	}
	return delay
}

func pickupOnSpawned(_ PickupRecord, _ bool, env action.Envelope) (PickupRecord, Outcome) {
	p, _ := action.PayloadAs[protocol.PickupSpawned](env)
	return PickupRecord{
		Active:       true,
		Kind:         p.Kind,
		RespawnDelay: respawnDelayOrDefault(p.RespawnDelay),
	}, Put
}

// pickupOnCollected deactivates the item. A second collector arriving while
// the item is inactive is ignored.
func pickupOnCollected(current PickupRecord, ok bool, env action.Envelope) (PickupRecord, Outcome) {
	p, _ := action.PayloadAs[protocol.ItemPickup](env)
	if !ok || !current.Active {
		return current, Skip
	}
	current.Active = false
	current.LastPickupTime = env.Time
	current.RespawnDelay = respawnDelayOrDefault(p.RespawnDelay)
	if current.Kind == "" {
		current.Kind = p.Kind
	}
	return current, Put
}

func pickupOnRespawned(current PickupRecord, ok bool, _ action.Envelope) (PickupRecord, Outcome) {
	if !ok {
		return current, Skip
	}
	current.Active = true
	return current, Put
}

func pickupOnRemoved(PickupRecord, bool, action.Envelope) (PickupRecord, Outcome) {
	return PickupRecord{}, Delete
}

func (s *Store) bindPickups() {
	bind(s, s.pickups, func(p protocol.PickupSpawned) protocol.EntityID { return p.ItemID },
		authoritativeGate[protocol.PickupSpawned](s), pickupOnSpawned)
	bind(s, s.pickups, func(p protocol.ItemPickup) protocol.EntityID { return p.ItemID },
		authoritativeGate[protocol.ItemPickup](s), pickupOnCollected)
	bind(s, s.pickups, func(p protocol.PickupRespawned) protocol.EntityID { return p.ItemID },
		authoritativeGate[protocol.PickupRespawned](s), pickupOnRespawned)
	bind(s, s.pickups, func(p protocol.PickupRemoved) protocol.EntityID { return p.ItemID },
		authoritativeGate[protocol.PickupRemoved](s), pickupOnRemoved)
}
