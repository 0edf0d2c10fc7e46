package combat

import (
	"context"

	"skirmish/server/logging"
)

const (
	// EventFire is emitted when a trigger pull is reported.
	EventFire logging.EventType = "combat.fire"
	// EventDamage is emitted when the authority applies damage to a target.
	EventDamage logging.EventType = "combat.damage"
	// EventDefeat is emitted when the authority finalizes a lethal hit.
	EventDefeat logging.EventType = "combat.defeat"
)

// FirePayload summarises one trigger pull.
type FirePayload struct {
	Weapon      string `json:"weapon"`
	Projectiles int    `json:"projectiles"`
	TargetHits  int    `json:"targetHits"`
}

// DamagePayload captures the amount dealt to a single target.
type DamagePayload struct {
	Weapon       string  `json:"weapon,omitempty"`
	Amount       float64 `json:"amount"`
	TargetHealth float64 `json:"targetHealth"`
}

// DefeatPayload describes the context for a fatal blow.
type DefeatPayload struct {
	Weapon string `json:"weapon,omitempty"`
}

// Fire publishes a debug event for a reported trigger pull.
func Fire(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload FirePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFire,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// Damage publishes a combat damage event for a single target.
func Damage(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, target logging.EntityRef, payload DamagePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventDamage,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// Defeat publishes a combat defeat event for the eliminated player.
func Defeat(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, target logging.EntityRef, payload DefeatPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventDefeat,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
