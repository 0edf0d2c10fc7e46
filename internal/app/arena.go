package app

import (
	"fmt"
	"time"

	"skirmish/server/internal/action"
	"skirmish/server/internal/pickups"
	"skirmish/server/internal/protocol"
	"skirmish/server/internal/session"
	"skirmish/server/internal/world"
)

// PickupSpot places one pickup item in the arena.
type PickupSpot struct {
	ID       protocol.EntityID
	Kind     protocol.PickupKind
	Position protocol.Vec3
	Radius   float64
}

// Wall is static box geometry.
type Wall struct {
	ID     protocol.EntityID
	Center protocol.Vec3
	Half   protocol.Vec3
}

// Layout describes the arena the host builds at startup.
type Layout struct {
	Spawns  []protocol.Vec3
	Walls   []Wall
	Pickups []PickupSpot
}

// DemoLayout is a square room with a pillar, four spawn points and one
// pickup of each kind.
func DemoLayout() Layout {
	return Layout{
		Spawns: []protocol.Vec3{{X: -8, Z: -8}, {X: 8, Z: 8}, {X: -8, Z: 8}, {X: 8, Z: -8}},
		Walls: []Wall{
			{ID: "wall:north", Center: protocol.Vec3{Y: 2, Z: 12}, Half: protocol.Vec3{X: 12, Y: 2, Z: 0.5}},
			{ID: "wall:south", Center: protocol.Vec3{Y: 2, Z: -12}, Half: protocol.Vec3{X: 12, Y: 2, Z: 0.5}},
			{ID: "wall:east", Center: protocol.Vec3{X: 12, Y: 2}, Half: protocol.Vec3{X: 0.5, Y: 2, Z: 12}},
			{ID: "wall:west", Center: protocol.Vec3{X: -12, Y: 2}, Half: protocol.Vec3{X: 0.5, Y: 2, Z: 12}},
			{ID: "pillar", Center: protocol.Vec3{Y: 2}, Half: protocol.Vec3{X: 1, Y: 2, Z: 1}},
		},
		Pickups: []PickupSpot{
			{ID: "pickup:health", Kind: protocol.PickupHealth, Position: protocol.Vec3{X: 4}, Radius: 1},
			{ID: "pickup:immunity", Kind: protocol.PickupImmunity, Position: protocol.Vec3{X: -4}, Radius: 1},
		},
	}
}

// Arena keeps the entity world in step with the session: avatars follow
// joins and leaves, pickups are registered with the pickup manager.
type Arena struct {
	world         *world.World
	layout        Layout
	pickupRespawn time.Duration
	next          int
	unsubscribe   func()
}

// NewArena builds the static geometry of layout into w.
func NewArena(w *world.World, layout Layout, pickupRespawn time.Duration) (*Arena, error) {
	for _, wall := range layout.Walls {
		if err := w.SpawnBox(wall.ID, wall.Center, wall.Half); err != nil {
			return nil, fmt.Errorf("arena: %w", err)
		}
	}
	for _, spot := range layout.Pickups {
		if err := w.SpawnPickup(spot.ID, spot.Position, spot.Radius); err != nil {
			return nil, fmt.Errorf("arena: %w", err)
		}
	}
	return &Arena{world: w, layout: layout, pickupRespawn: pickupRespawn}, nil
}

// Attach registers the pickups and follows player membership. It must run
// on the session's tick goroutine.
func (a *Arena) Attach(s *session.Session) error {
	for _, spot := range a.layout.Pickups {
		prefab := pickups.DefaultPrefab(spot.Kind)
		if a.pickupRespawn > 0 {
			prefab.RespawnDelay = a.pickupRespawn
		}
		if err := s.Pickups().Spawn(spot.ID, prefab); err != nil {
			return fmt.Errorf("arena: spawn %s: %w", spot.ID, err)
		}
	}
	a.unsubscribe = s.Bus().Subscribe("arena",
		action.Kinds(protocol.KindPlayerJoined, protocol.KindPlayerLeft), a.follow, action.WithReplay())
	return nil
}

// Detach stops following membership.
func (a *Arena) Detach() {
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
}

func (a *Arena) follow(env action.Envelope) {
	switch p := env.Payload.(type) {
	case protocol.PlayerJoined:
		if _, ok := a.world.AvatarOf(p.UserID); ok {
			return
		}
		a.world.SpawnAvatar(p.UserID, a.spawnPoint())
	case protocol.PlayerLeft:
		a.world.Despawn(world.AvatarID(p.UserID))
	}
}

func (a *Arena) spawnPoint() protocol.Vec3 {
	if len(a.layout.Spawns) == 0 {
		return protocol.Vec3{}
	}
	point := a.layout.Spawns[a.next%len(a.layout.Spawns)]
	a.next++
	return point
}
