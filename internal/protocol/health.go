package protocol

import "skirmish/server/internal/action"

const (
	KindTakeDamage       action.Kind = "health.takeDamage"
	KindDie              action.Kind = "health.die"
	KindRespawn          action.Kind = "health.respawn"
	KindImmunityTimedout action.Kind = "health.immunityTimedout"
)

// TakeDamage adjusts a user's health by Amount. Negative amounts are
// damage, positive amounts heal.
type TakeDamage struct {
	UserID     UserID  `json:"userId" jsonschema:"required"`
	Amount     float64 `json:"amount" jsonschema:"required"`
	AttackerID UserID  `json:"attackerId,omitempty"`
}

func (TakeDamage) ActionKind() action.Kind { return KindTakeDamage }

// Die forces a user's health to zero.
type Die struct {
	UserID     UserID `json:"userId" jsonschema:"required"`
	AttackerID UserID `json:"attackerId,omitempty"`
}

func (Die) ActionKind() action.Kind { return KindDie }

// Respawn restores a user to full health.
type Respawn struct {
	UserID UserID `json:"userId" jsonschema:"required"`
}

func (Respawn) ActionKind() action.Kind { return KindRespawn }

// ImmunityTimedout clears an expired immunity window.
type ImmunityTimedout struct {
	UserID UserID `json:"userId" jsonschema:"required"`
}

func (ImmunityTimedout) ActionKind() action.Kind { return KindImmunityTimedout }
