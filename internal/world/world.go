// Package world is the entity and physics collaborator: avatars, pickup
// items and static geometry stored as donburi entities with sphere and box
// colliders.
package world

import (
	"fmt"
	"math"
	"slices"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"

	"skirmish/server/internal/combat"
	"skirmish/server/internal/pickups"
	"skirmish/server/internal/protocol"
)

// DefaultAvatarRadius is the collider radius given to avatars.
const DefaultAvatarRadius = 0.5

// World implements combat.Entities, combat.Physics and
// session.ContactSource over a donburi world. It is not safe for
// concurrent use.
type World struct {
	ecs      donburi.World
	index    map[protocol.EntityID]donburi.Entity
	avatars  map[protocol.UserID]protocol.EntityID
	bodies   *donburi.Query
	pickups  *donburi.Query
	touching map[pickups.Contact]bool
}

// New constructs an empty world.
func New() *World {
	return &World{
		ecs:      donburi.NewWorld(),
		index:    make(map[protocol.EntityID]donburi.Entity),
		avatars:  make(map[protocol.UserID]protocol.EntityID),
		bodies:   donburi.NewQuery(filter.Contains(Identity, Transform, Collider)),
		pickups:  donburi.NewQuery(filter.Contains(Identity, Transform, Collider, PickupTag)),
		touching: make(map[pickups.Contact]bool),
	}
}

// AvatarID is the entity id given to user's avatar.
func AvatarID(user protocol.UserID) protocol.EntityID {
	return protocol.EntityID("avatar:" + string(user))
}

// SpawnAvatar creates the avatar for user at position. An existing avatar
// for the same user is replaced.
func (w *World) SpawnAvatar(user protocol.UserID, position protocol.Vec3) protocol.EntityID {
	id := AvatarID(user)
	w.Despawn(id)
	entry := w.create(id, position, ColliderData{Shape: ShapeSphere, Radius: DefaultAvatarRadius}, NetworkObject, AvatarTag)
	NetworkObject.SetValue(entry, NetworkObjectData{Owner: user})
	w.avatars[user] = id
	return id
}

// SpawnPickup creates a trigger sphere for a pickup item.
func (w *World) SpawnPickup(id protocol.EntityID, position protocol.Vec3, radius float64) error {
	if _, ok := w.index[id]; ok {
		return fmt.Errorf("world: entity %q already exists", id)
	}
	w.create(id, position, ColliderData{Shape: ShapeSphere, Radius: radius, Trigger: true}, PickupTag)
	return nil
}

// SpawnBox creates static box geometry.
func (w *World) SpawnBox(id protocol.EntityID, center, halfExtents protocol.Vec3) error {
	if _, ok := w.index[id]; ok {
		return fmt.Errorf("world: entity %q already exists", id)
	}
	w.create(id, center, ColliderData{Shape: ShapeBox, HalfExtents: halfExtents})
	return nil
}

func (w *World) create(id protocol.EntityID, position protocol.Vec3, collider ColliderData, extra ...donburi.IComponentType) *donburi.Entry {
	components := append([]donburi.IComponentType{Identity, Transform, Collider}, extra...)
	entity := w.ecs.Create(components...)
	entry := w.ecs.Entry(entity)
	Identity.SetValue(entry, IdentityData{ID: id})
	Transform.SetValue(entry, TransformData{Position: position})
	Collider.SetValue(entry, collider)
	w.index[id] = entity
	return entry
}

// Move relocates an entity.
func (w *World) Move(id protocol.EntityID, position protocol.Vec3) bool {
	entry, ok := w.entry(id)
	if !ok {
		return false
	}
	Transform.Get(entry).Position = position
	return true
}

// Despawn removes an entity. Unknown ids are ignored.
func (w *World) Despawn(id protocol.EntityID) {
	entry, ok := w.entry(id)
	if !ok {
		return
	}
	if entry.HasComponent(NetworkObject) {
		owner := NetworkObject.Get(entry).Owner
		if w.avatars[owner] == id {
			delete(w.avatars, owner)
		}
	}
	for contact := range w.touching {
		if contact.Item == id || contact.Other == id {
			delete(w.touching, contact)
		}
	}
	w.ecs.Remove(entry.Entity())
	delete(w.index, id)
}

// Len reports the number of live entities.
func (w *World) Len() int { return len(w.index) }

// Position returns the entity's position.
func (w *World) Position(id protocol.EntityID) (protocol.Vec3, bool) {
	entry, ok := w.entry(id)
	if !ok {
		return protocol.Vec3{}, false
	}
	return Transform.Get(entry).Position, true
}

// Exists implements combat.Entities.
func (w *World) Exists(id protocol.EntityID) bool {
	_, ok := w.entry(id)
	return ok
}

// AvatarOf implements combat.Entities.
func (w *World) AvatarOf(user protocol.UserID) (protocol.EntityID, bool) {
	id, ok := w.avatars[user]
	return id, ok
}

// IsAvatar implements combat.Entities.
func (w *World) IsAvatar(id protocol.EntityID) bool {
	entry, ok := w.entry(id)
	return ok && entry.HasComponent(AvatarTag)
}

// NetworkOwner implements combat.Entities.
func (w *World) NetworkOwner(id protocol.EntityID) (protocol.UserID, bool) {
	entry, ok := w.entry(id)
	if !ok || !entry.HasComponent(NetworkObject) {
		return "", false
	}
	owner := NetworkObject.Get(entry).Owner
	return owner, owner != ""
}

func (w *World) entry(id protocol.EntityID) (*donburi.Entry, bool) {
	entity, ok := w.index[id]
	if !ok || !w.ecs.Valid(entity) {
		return nil, false
	}
	return w.ecs.Entry(entity), true
}

// Cast implements combat.Physics. Trigger colliders never block.
func (w *World) Cast(ray combat.Ray, exclude ...protocol.EntityID) (combat.RayHit, bool) {
	dir := ray.Direction.Normalize()
	if dir == (protocol.Vec3{}) {
		return combat.RayHit{}, false
	}
	best := combat.RayHit{Distance: math.Inf(1)}
	found := false
	w.bodies.Each(w.ecs, func(entry *donburi.Entry) {
		id := Identity.Get(entry).ID
		collider := Collider.Get(entry)
		if collider.Trigger || slices.Contains(exclude, id) {
			return
		}
		center := Transform.Get(entry).Position
		var (
			distance float64
			normal   protocol.Vec3
			hit      bool
		)
		switch collider.Shape {
		case ShapeBox:
			distance, normal, hit = intersectBox(ray.Origin, dir, center, collider.HalfExtents)
		default:
			distance, normal, hit = intersectSphere(ray.Origin, dir, center, collider.Radius)
		}
		if !hit || distance > ray.MaxDistance || distance >= best.Distance {
			return
		}
		best = combat.RayHit{
			Position: ray.Origin.Add(dir.Scale(distance)),
			Normal:   normal,
			Entity:   id,
			Distance: distance,
		}
		found = true
	})
	return best, found
}

// DrainContacts implements session.ContactSource. It reports each
// pickup/avatar pair once when they start overlapping; a pair must separate
// before it is reported again.
func (w *World) DrainContacts() []pickups.Contact {
	overlapping := make(map[pickups.Contact]bool)
	w.pickups.Each(w.ecs, func(item *donburi.Entry) {
		itemID := Identity.Get(item).ID
		itemPos := Transform.Get(item).Position
		itemRadius := Collider.Get(item).Radius
		for _, avatarID := range w.avatars {
			avatar, ok := w.entry(avatarID)
			if !ok {
				continue
			}
			reach := itemRadius + Collider.Get(avatar).Radius
			if Transform.Get(avatar).Position.Sub(itemPos).Length() <= reach {
				overlapping[pickups.Contact{Item: itemID, Other: avatarID}] = true
			}
		}
	})
	var entered []pickups.Contact
	for contact := range overlapping {
		if !w.touching[contact] {
			entered = append(entered, contact)
		}
	}
	w.touching = overlapping
	slices.SortFunc(entered, func(a, b pickups.Contact) int {
		if a.Item != b.Item {
			if a.Item < b.Item {
				return -1
			}
			return 1
		}
		if a.Other < b.Other {
			return -1
		}
		if a.Other > b.Other {
			return 1
		}
		return 0
	})
	return entered
}

// intersectSphere returns the entry distance of a unit-direction ray into
// a sphere. Rays starting inside the sphere hit at distance zero.
func intersectSphere(origin, dir, center protocol.Vec3, radius float64) (float64, protocol.Vec3, bool) {
	oc := origin.Sub(center)
	b := oc.Dot(dir)
	c := oc.Dot(oc) - radius*radius
	if c <= 0 {
		return 0, dir.Scale(-1), true
	}
	disc := b*b - c
	if b > 0 || disc < 0 {
		return 0, protocol.Vec3{}, false
	}
	t := -b - math.Sqrt(disc)
	point := origin.Add(dir.Scale(t))
	return t, point.Sub(center).Normalize(), true
}

// intersectBox is the slab test against an axis-aligned box.
func intersectBox(origin, dir, center, half protocol.Vec3) (float64, protocol.Vec3, bool) {
	lo := center.Sub(half)
	hi := center.Add(half)
	tmin, tmax := 0.0, math.Inf(1)
	var normal protocol.Vec3
	axes := [3]struct {
		o, d, lo, hi float64
		n            protocol.Vec3
	}{
		{origin.X, dir.X, lo.X, hi.X, protocol.Vec3{X: 1}},
		{origin.Y, dir.Y, lo.Y, hi.Y, protocol.Vec3{Y: 1}},
		{origin.Z, dir.Z, lo.Z, hi.Z, protocol.Vec3{Z: 1}},
	}
	for _, axis := range axes {
		if axis.d == 0 {
			if axis.o < axis.lo || axis.o > axis.hi {
				return 0, protocol.Vec3{}, false
			}
			continue
		}
		t1 := (axis.lo - axis.o) / axis.d
		t2 := (axis.hi - axis.o) / axis.d
		n := axis.n.Scale(-1)
		if t1 > t2 {
			t1, t2 = t2, t1
			n = axis.n
		}
		if t1 > tmin {
			tmin = t1
			normal = n
		}
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, protocol.Vec3{}, false
		}
	}
	if normal == (protocol.Vec3{}) {
		normal = dir.Scale(-1)
	}
	return tmin, normal, true
}
