package pickups

import (
	"context"

	"skirmish/server/logging"
)

const (
	// EventCollected is emitted when a contact turns into an itemPickup action.
	EventCollected logging.EventType = "pickups.collected"
	// EventRespawned is emitted when the sweep promotes a pickup back to active.
	EventRespawned logging.EventType = "pickups.respawned"
)

// CollectedPayload describes a pickup contact.
type CollectedPayload struct {
	Kind           string `json:"kind"`
	Value          int64  `json:"value"`
	RespawnDelayMs int64  `json:"respawnDelayMs"`
}

// RespawnedPayload describes the deadline that elapsed.
type RespawnedPayload struct {
	LastPickupTime int64 `json:"lastPickupTime"`
	Now            int64 `json:"now"`
}

// Collected publishes an info event when a player collects a pickup.
func Collected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, item logging.EntityRef, payload CollectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCollected,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{item},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}

// Respawned publishes a debug event when a pickup deadline passes.
func Respawned(ctx context.Context, pub logging.Publisher, tick uint64, item logging.EntityRef, payload RespawnedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRespawned,
		Tick:     tick,
		Actor:    item,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}
