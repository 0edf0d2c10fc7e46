package world

import (
	"math"
	"testing"

	"skirmish/server/internal/combat"
	"skirmish/server/internal/pickups"
	"skirmish/server/internal/protocol"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAvatarOwnershipAndDespawn(t *testing.T) {
	w := New()
	id := w.SpawnAvatar("alice", protocol.Vec3{})
	if !w.Exists(id) || !w.IsAvatar(id) {
		t.Fatalf("expected live avatar %s", id)
	}
	if owner, ok := w.NetworkOwner(id); !ok || owner != "alice" {
		t.Fatalf("expected alice to own %s, got %q", id, owner)
	}
	if avatar, ok := w.AvatarOf("alice"); !ok || avatar != id {
		t.Fatalf("expected avatar lookup to return %s, got %s", id, avatar)
	}
	if err := w.SpawnBox("wall", protocol.Vec3{Z: -5}, protocol.Vec3{X: 1, Y: 1, Z: 1}); err != nil {
		t.Fatalf("spawn box: %v", err)
	}
	if w.IsAvatar("wall") {
		t.Fatalf("geometry is not an avatar")
	}
	if _, ok := w.NetworkOwner("wall"); ok {
		t.Fatalf("geometry has no network owner")
	}

	w.Despawn(id)
	if w.Exists(id) {
		t.Fatalf("expected avatar removed")
	}
	if _, ok := w.AvatarOf("alice"); ok {
		t.Fatalf("expected avatar index cleared")
	}
	if w.Len() != 1 {
		t.Fatalf("expected only the wall to remain, got %d", w.Len())
	}
}

func TestSpawnRejectsDuplicateIDs(t *testing.T) {
	w := New()
	if err := w.SpawnPickup("medkit", protocol.Vec3{}, 1); err != nil {
		t.Fatalf("spawn pickup: %v", err)
	}
	if err := w.SpawnPickup("medkit", protocol.Vec3{}, 1); err == nil {
		t.Fatalf("expected duplicate pickup to fail")
	}
	if err := w.SpawnBox("medkit", protocol.Vec3{}, protocol.Vec3{X: 1, Y: 1, Z: 1}); err == nil {
		t.Fatalf("expected duplicate box to fail")
	}
}

func TestCastHitsClosestSolidCollider(t *testing.T) {
	w := New()
	shooter := w.SpawnAvatar("shooter", protocol.Vec3{})
	target := w.SpawnAvatar("target", protocol.Vec3{Z: -10})
	if err := w.SpawnBox("crate", protocol.Vec3{Z: -20}, protocol.Vec3{X: 2, Y: 2, Z: 2}); err != nil {
		t.Fatalf("spawn box: %v", err)
	}
	if err := w.SpawnPickup("shield", protocol.Vec3{Z: -5}, 1); err != nil {
		t.Fatalf("spawn pickup: %v", err)
	}

	ray := combat.Ray{Origin: protocol.Vec3{}, Direction: protocol.Vec3{Z: -1}, MaxDistance: 100}
	hit, ok := w.Cast(ray, shooter)
	if !ok || hit.Entity != target {
		t.Fatalf("expected to hit %s, got %+v ok=%v", target, hit, ok)
	}
	if !near(hit.Distance, 9.5) || !near(hit.Position.Z, -9.5) || !near(hit.Normal.Z, 1) {
		t.Fatalf("unexpected sphere hit %+v", hit)
	}

	hit, ok = w.Cast(ray, shooter, target)
	if !ok || hit.Entity != "crate" {
		t.Fatalf("expected to hit crate, got %+v ok=%v", hit, ok)
	}
	if !near(hit.Distance, 18) || !near(hit.Normal.Z, 1) {
		t.Fatalf("unexpected box hit %+v", hit)
	}

	ray.MaxDistance = 15
	if _, ok := w.Cast(ray, shooter, target); ok {
		t.Fatalf("expected crate beyond max distance to be missed")
	}
}

func TestCastMissesBehindAndBeside(t *testing.T) {
	w := New()
	w.SpawnAvatar("target", protocol.Vec3{Z: 10})
	if err := w.SpawnBox("pillar", protocol.Vec3{X: 5, Z: -10}, protocol.Vec3{X: 1, Y: 1, Z: 1}); err != nil {
		t.Fatalf("spawn box: %v", err)
	}
	ray := combat.Ray{Direction: protocol.Vec3{Z: -1}, MaxDistance: 100}
	if hit, ok := w.Cast(ray); ok {
		t.Fatalf("expected miss, got %+v", hit)
	}
	if _, ok := w.Cast(combat.Ray{MaxDistance: 100}); ok {
		t.Fatalf("a zero direction never hits")
	}
}

func TestDrainContactsReportsEnteringPairsOnce(t *testing.T) {
	w := New()
	if err := w.SpawnPickup("medkit", protocol.Vec3{}, 1); err != nil {
		t.Fatalf("spawn pickup: %v", err)
	}
	avatar := w.SpawnAvatar("alice", protocol.Vec3{X: 5})
	if contacts := w.DrainContacts(); len(contacts) != 0 {
		t.Fatalf("expected no contacts, got %+v", contacts)
	}

	w.Move(avatar, protocol.Vec3{X: 1.2})
	contacts := w.DrainContacts()
	want := pickups.Contact{Item: "medkit", Other: avatar}
	if len(contacts) != 1 || contacts[0] != want {
		t.Fatalf("expected %+v, got %+v", want, contacts)
	}
	if contacts := w.DrainContacts(); len(contacts) != 0 {
		t.Fatalf("expected a standing contact to be reported once, got %+v", contacts)
	}

	w.Move(avatar, protocol.Vec3{X: 5})
	w.DrainContacts()
	w.Move(avatar, protocol.Vec3{})
	if contacts := w.DrainContacts(); len(contacts) != 1 {
		t.Fatalf("expected re-entry to be reported, got %+v", contacts)
	}
}

func TestIntersectRayStartingInsideSphere(t *testing.T) {
	distance, _, ok := intersectSphere(protocol.Vec3{}, protocol.Vec3{Z: -1}, protocol.Vec3{}, 1)
	if !ok || distance != 0 {
		t.Fatalf("expected immediate hit, got %v ok=%v", distance, ok)
	}
}
