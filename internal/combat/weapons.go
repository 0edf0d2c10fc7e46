// Package combat turns trigger pulls into replicated fire reports and, on the
// host, turns fire reports into health actions.
package combat

import (
	"time"

	"skirmish/server/internal/protocol"
)

// Weapon is the tuning of one weapon kind.
type Weapon struct {
	Kind protocol.WeaponKind
	// Spread is the aim variation; the cast uses a tenth of it.
	Spread      float64
	Projectiles int
	Distance    float64
	// Recoil scales the camera kick of each shot.
	Recoil           float64
	Damage           float64
	TimeBetweenShots time.Duration
}

var weapons = map[protocol.WeaponKind]Weapon{
	protocol.AssaultRifle: {
		Kind:             protocol.AssaultRifle,
		Spread:           0.2,
		Projectiles:      1,
		Distance:         50,
		Recoil:           0.1,
		Damage:           4,
		TimeBetweenShots: time.Second / 10,
	},
	protocol.PulseRifle: {
		Kind:             protocol.PulseRifle,
		Spread:           0.02,
		Projectiles:      1,
		Distance:         50,
		Recoil:           0.25,
		Damage:           30,
		TimeBetweenShots: time.Second / 2,
	},
	protocol.HeavyPistol: {
		Kind:             protocol.HeavyPistol,
		Spread:           0.1,
		Projectiles:      1,
		Distance:         20,
		Recoil:           0.1,
		Damage:           10,
		TimeBetweenShots: time.Second / 5,
	},
	protocol.Shotgun: {
		Kind:             protocol.Shotgun,
		Spread:           1,
		Projectiles:      6,
		Distance:         5,
		Recoil:           1,
		Damage:           8,
		TimeBetweenShots: time.Second,
	},
}

// LookupWeapon returns the tuning of kind.
func LookupWeapon(kind protocol.WeaponKind) (Weapon, bool) {
	w, ok := weapons[kind]
	return w, ok
}

// Weapons lists every weapon in selection order.
func Weapons() []Weapon {
	out := make([]Weapon, 0, len(protocol.WeaponKinds))
	for _, kind := range protocol.WeaponKinds {
		out = append(out, weapons[kind])
	}
	return out
}

// DefaultWeapon is equipped when a user first enters the match.
func DefaultWeapon() protocol.WeaponKind {
	return protocol.WeaponKinds[0]
}

// WeaponForSlot maps a 1-based selection slot onto a weapon kind.
func WeaponForSlot(slot int) (protocol.WeaponKind, bool) {
	if slot < 1 || slot > len(protocol.WeaponKinds) {
		return "", false
	}
	return protocol.WeaponKinds[slot-1], true
}
