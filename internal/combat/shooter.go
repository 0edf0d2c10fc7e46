package combat

import (
	"context"
	"errors"
	"fmt"

	"skirmish/server/internal/action"
	"skirmish/server/internal/clock"
	"skirmish/server/internal/protocol"
	"skirmish/server/internal/state"
	"skirmish/server/logging"
	loggingcombat "skirmish/server/logging/combat"
)

// Assignments reads the replicated weapon assignments.
type Assignments interface {
	Weapon(user protocol.UserID) (state.WeaponAssignment, bool)
}

// ShooterConfig wires a Shooter for the local user.
type ShooterConfig struct {
	Bus         *action.Bus
	Clock       clock.Source
	Physics     Physics
	Entities    Entities
	Assignments Assignments
	Camera      CameraRig
	Rand        Rand
}

// Shooter turns the local user's trigger pulls into fire reports.
type Shooter struct {
	bus         *action.Bus
	clock       clock.Source
	physics     Physics
	entities    Entities
	assignments Assignments
	camera      CameraRig
	rng         Rand
	user        protocol.UserID
	cooldowns   map[protocol.WeaponKind]clock.Millis
}

// NewShooter constructs a shooter for the bus identity's user.
func NewShooter(cfg ShooterConfig) (*Shooter, error) {
	if cfg.Bus == nil {
		return nil, errors.New("combat: shooter requires a bus")
	}
	if cfg.Rand == nil {
		return nil, errors.New("combat: shooter requires a random source")
	}
	source := cfg.Clock
	if source == nil {
		source = clock.SourceFunc(cfg.Bus.Now)
	}
	return &Shooter{
		bus:         cfg.Bus,
		clock:       source,
		physics:     cfg.Physics,
		entities:    cfg.Entities,
		assignments: cfg.Assignments,
		camera:      cfg.Camera,
		rng:         cfg.Rand,
		user:        cfg.Bus.Identity().User,
	}, nil
}

// Fire pulls the trigger of weapon. It returns false without dispatching
// when the weapon is still cooling down.
func (s *Shooter) Fire(kind protocol.WeaponKind, aim Aim) (protocol.FireWeapon, bool, error) {
	w, ok := LookupWeapon(kind)
	if !ok {
		return protocol.FireWeapon{}, false, fmt.Errorf("combat: unknown weapon %q", kind)
	}
	if !ReadyCooldown(&s.cooldowns, kind, w.TimeBetweenShots, s.clock.Now()) {
		return protocol.FireWeapon{}, false, nil
	}

	if s.camera != nil {
		if dTheta, dPhi := Recoil(w, s.rng); dTheta != 0 || dPhi != 0 {
			s.camera.Nudge(dTheta, dPhi)
		}
	}

	var exclude []protocol.EntityID
	if s.entities != nil {
		if avatar, ok := s.entities.AvatarOf(s.user); ok {
			exclude = append(exclude, avatar)
		}
	}
	report := protocol.FireWeapon{
		Weapon: kind,
		Hits:   CastShots(s.physics, s.entities, s.rng, w, aim, exclude...),
	}
	if _, err := s.bus.Dispatch(report); err != nil {
		return protocol.FireWeapon{}, false, fmt.Errorf("dispatch fire: %w", err)
	}

	targets := 0
	for _, hit := range report.Hits {
		if hit.TargetID != "" {
			targets++
		}
	}
	loggingcombat.Fire(context.Background(), s.bus.Publisher(), s.bus.Tick(), logging.PlayerRef(string(s.user)), loggingcombat.FirePayload{
		Weapon:      string(kind),
		Projectiles: len(report.Hits),
		TargetHits:  targets,
	}, nil)
	return report, true, nil
}

// FireEquipped fires the weapon currently assigned to the local user.
func (s *Shooter) FireEquipped(aim Aim) (protocol.FireWeapon, bool, error) {
	assignment, ok := s.current()
	if !ok {
		return protocol.FireWeapon{}, false, nil
	}
	return s.Fire(assignment.Weapon, aim)
}

// Equip switches the local user to weapon, keeping the current hand.
// Selecting the held weapon again does nothing.
func (s *Shooter) Equip(kind protocol.WeaponKind) error {
	assignment, ok := s.current()
	if ok && assignment.Weapon == kind {
		return nil
	}
	handedness := protocol.RightHanded
	if ok && assignment.Handedness != "" {
		handedness = assignment.Handedness
	}
	_, err := s.bus.Dispatch(protocol.ChangeWeapon{UserID: s.user, Weapon: kind, Handedness: handedness})
	return err
}

// SwapHands moves the held weapon to the other hand.
func (s *Shooter) SwapHands() error {
	assignment, ok := s.current()
	if !ok {
		return nil
	}
	next := protocol.LeftHanded
	if assignment.Handedness == protocol.LeftHanded {
		next = protocol.RightHanded
	}
	_, err := s.bus.Dispatch(protocol.ChangeWeapon{UserID: s.user, Weapon: assignment.Weapon, Handedness: next})
	return err
}

func (s *Shooter) current() (state.WeaponAssignment, bool) {
	if s.assignments == nil {
		return state.WeaponAssignment{}, false
	}
	return s.assignments.Weapon(s.user)
}
