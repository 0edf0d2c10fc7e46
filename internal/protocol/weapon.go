package protocol

import "skirmish/server/internal/action"

const (
	KindChangeWeapon action.Kind = "weapon.change"
	KindFireWeapon   action.Kind = "weapon.fire"
)

// WeaponKind names a weapon in the weapon catalog.
type WeaponKind string

const (
	AssaultRifle WeaponKind = "assault_rifle"
	PulseRifle   WeaponKind = "pulse_rifle"
	HeavyPistol  WeaponKind = "heavy_pistol"
	Shotgun      WeaponKind = "shotgun"
)

// WeaponKinds lists every weapon kind.
var WeaponKinds = []WeaponKind{AssaultRifle, PulseRifle, HeavyPistol, Shotgun}

// Handedness selects the hand holding the weapon.
type Handedness string

const (
	RightHanded Handedness = "right"
	LeftHanded  Handedness = "left"
)

// ChangeWeapon assigns a weapon to a user.
type ChangeWeapon struct {
	UserID     UserID     `json:"userId" jsonschema:"required"`
	Weapon     WeaponKind `json:"weapon" jsonschema:"required"`
	Handedness Handedness `json:"handedness" jsonschema:"enum=right,enum=left"`
}

func (ChangeWeapon) ActionKind() action.Kind { return KindChangeWeapon }

// Hit is one projectile result of a trigger pull.
type Hit struct {
	Position Vec3     `json:"position"`
	Normal   *Vec3    `json:"normal,omitempty"`
	TargetID EntityID `json:"targetId,omitempty"`
	IsPlayer bool     `json:"isPlayer"`
	Damage   float64  `json:"damage"`
}

// FireWeapon reports one trigger pull. The shooter is the envelope's user.
type FireWeapon struct {
	Weapon WeaponKind `json:"weapon" jsonschema:"required"`
	Hits   []Hit      `json:"hits"`
}

func (FireWeapon) ActionKind() action.Kind { return KindFireWeapon }
