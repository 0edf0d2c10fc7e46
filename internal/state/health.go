package state

import (
	"fmt"
	"math"

	"skirmish/server/internal/action"
	"skirmish/server/internal/clock"
	"skirmish/server/internal/protocol"
)

const (
	MaxHealth     = 100.0
	StartingLives = 5
)

// Immunity is a timed damage-immunity window.
type Immunity struct {
	Active  bool         `json:"active"`
	EndTime clock.Millis `json:"endTime"`
}

// HealthRecord is the replicated vitality of one user. Health stays within
// [0, MaxHealth].
type HealthRecord struct {
	Lives    int      `json:"lives"`
	Health   float64  `json:"health"`
	Immunity Immunity `json:"immunity"`
}

// Alive reports whether the user has health left.
func (r HealthRecord) Alive() bool {
	return r.Health > 0
}

func clampHealth(value float64) float64 {
	return math.Max(0, math.Min(value, MaxHealth))
}

func healthOnJoin(_ HealthRecord, _ bool, _ action.Envelope) (HealthRecord, Outcome) {
	return HealthRecord{Lives: StartingLives, Health: MaxHealth}, Put
}

func healthOnLeave(HealthRecord, bool, action.Envelope) (HealthRecord, Outcome) {
	return HealthRecord{}, Delete
}

// healthOnTakeDamage adds the amount, clamped to [0, MaxHealth]. Active
// immunity negates damage but not healing. Reaching zero here is not a
// death; only a die action counts as one.
func healthOnTakeDamage(current HealthRecord, ok bool, env action.Envelope) (HealthRecord, Outcome) {
	p, _ := action.PayloadAs[protocol.TakeDamage](env)
	if !ok {
		return current, Skip
	}
	if current.Immunity.Active && p.Amount < 0 {
		return current, Skip
	}
	current.Health = clampHealth(current.Health + p.Amount)
	return current, Put
}

func healthOnDie(current HealthRecord, ok bool, _ action.Envelope) (HealthRecord, Outcome) {
	if !ok {
		return current, Skip
	}
	current.Health = 0
	return current, Put
}

func healthOnRespawn(current HealthRecord, ok bool, _ action.Envelope) (HealthRecord, Outcome) {
	if !ok {
		return current, Skip
	}
	current.Health = MaxHealth
	return current, Put
}

func healthOnImmunityTimedout(current HealthRecord, ok bool, _ action.Envelope) (HealthRecord, Outcome) {
	if !ok {
		return current, Skip
	}
	current.Immunity.Active = false
	return current, Put
}

func healthOnItemPickup(current HealthRecord, ok bool, env action.Envelope) (HealthRecord, Outcome) {
	p, _ := action.PayloadAs[protocol.ItemPickup](env)
	if !ok {
		return current, Skip
	}
	switch p.Kind {
	case protocol.PickupImmunity:
		current.Immunity = Immunity{Active: true, EndTime: env.Time + clock.Millis(p.Value)}
	case protocol.PickupHealth:
		current.Health = clampHealth(current.Health + p.Value)
	default:
		return current, Skip
	}
	return current, Put
}

func (s *Store) bindHealth() {
	byUser := func(p protocol.TakeDamage) UserID { return p.UserID }
	bind(s, s.health, joinedUser, authoritativeGate[protocol.PlayerJoined](s), healthOnJoin)
	bind(s, s.health, leftUser, authoritativeGate[protocol.PlayerLeft](s), healthOnLeave)
	bind(s, s.health, byUser, authoritativeGate[protocol.TakeDamage](s), healthOnTakeDamage)
	bind(s, s.health, func(p protocol.Die) UserID { return p.UserID }, authoritativeGate[protocol.Die](s), healthOnDie)
	bind(s, s.health, func(p protocol.Respawn) UserID { return p.UserID },
		ownerGate(s, func(p protocol.Respawn) UserID { return p.UserID }), healthOnRespawn)
	bind(s, s.health, func(p protocol.ImmunityTimedout) UserID { return p.UserID },
		ownerGate(s, func(p protocol.ImmunityTimedout) UserID { return p.UserID }), healthOnImmunityTimedout)

	pickupGate := func(env action.Envelope, p protocol.ItemPickup) error {
		if !s.authority.IsAuthoritative(env) {
			return action.ErrUnauthorized
		}
		if p.Kind != protocol.PickupHealth && p.Kind != protocol.PickupImmunity {
			return fmt.Errorf("%w: pickup kind %q", action.ErrSchemaViolation, p.Kind)
		}
		// The pickup domain is bound after health, so the record is still
		// active for the collection that deactivates it.
		if record, ok := s.pickups.Get(p.ItemID); ok && !record.Active {
			return fmt.Errorf("%w: pickup %s already collected", action.ErrInactive, p.ItemID)
		}
		return nil
	}
	bind(s, s.health, func(p protocol.ItemPickup) UserID { return p.UserID }, pickupGate, healthOnItemPickup)
}
