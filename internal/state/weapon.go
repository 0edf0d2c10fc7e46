package state

import (
	"skirmish/server/internal/action"
	"skirmish/server/internal/protocol"
)

// WeaponAssignment is the weapon a user currently holds.
type WeaponAssignment struct {
	Weapon     protocol.WeaponKind `json:"weapon"`
	Handedness protocol.Handedness `json:"handedness"`
}

func weaponOnChange(_ WeaponAssignment, _ bool, env action.Envelope) (WeaponAssignment, Outcome) {
	p, _ := action.PayloadAs[protocol.ChangeWeapon](env)
	handedness := p.Handedness
	if handedness == "" {
		handedness = protocol.RightHanded
	}
	return WeaponAssignment{Weapon: p.Weapon, Handedness: handedness}, Put
}

func weaponOnLeave(WeaponAssignment, bool, action.Envelope) (WeaponAssignment, Outcome) {
	return WeaponAssignment{}, Delete
}

func (s *Store) bindWeapons() {
	byUser := func(p protocol.ChangeWeapon) UserID { return p.UserID }
	bind(s, s.weapons, byUser, ownerGate(s, byUser), weaponOnChange)
	bind(s, s.weapons, leftUser, authoritativeGate[protocol.PlayerLeft](s), weaponOnLeave)
}
