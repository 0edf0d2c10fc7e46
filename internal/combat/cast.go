package combat

import (
	"math"

	"skirmish/server/internal/protocol"
)

// ZoomSpreadFactor narrows the spread of a zoomed shot.
const ZoomSpreadFactor = 0.5

// Ray is a directional physics query.
type Ray struct {
	Origin      protocol.Vec3
	Direction   protocol.Vec3
	MaxDistance float64
}

// RayHit is the closest intersection of a ray.
type RayHit struct {
	Position protocol.Vec3
	Normal   protocol.Vec3
	Entity   protocol.EntityID
	Distance float64
}

// Physics answers ray queries against the world.
type Physics interface {
	// Cast returns the closest hit along ray, ignoring the excluded entities.
	Cast(ray Ray, exclude ...protocol.EntityID) (RayHit, bool)
}

// Rand is the random source used for spread and recoil.
type Rand interface {
	Float64() float64
}

// Aim is the shooter's view at the moment of the trigger pull. Yaw rotates
// about +Y, Pitch about +X, and the unrotated view looks down -Z.
type Aim struct {
	Origin protocol.Vec3
	Yaw    float64
	Pitch  float64
	Zoomed bool
}

// Direction returns the unit view direction.
func (a Aim) Direction() protocol.Vec3 {
	return a.perturbed(0, 0)
}

// perturbed applies a spread rotation in the view's local frame.
func (a Aim) perturbed(spreadX, spreadY float64) protocol.Vec3 {
	dir := protocol.Vec3{Z: -1}
	dir = rotateX(dir, spreadX)
	dir = rotateY(dir, spreadY)
	dir = rotateX(dir, a.Pitch)
	dir = rotateY(dir, a.Yaw)
	return dir.Normalize()
}

func rotateX(v protocol.Vec3, angle float64) protocol.Vec3 {
	sin, cos := math.Sincos(angle)
	return protocol.Vec3{X: v.X, Y: v.Y*cos - v.Z*sin, Z: v.Y*sin + v.Z*cos}
}

func rotateY(v protocol.Vec3, angle float64) protocol.Vec3 {
	sin, cos := math.Sincos(angle)
	return protocol.Vec3{X: v.X*cos + v.Z*sin, Y: v.Y, Z: -v.X*sin + v.Z*cos}
}

// spreadFor returns the cone width used for one shot of w.
func spreadFor(w Weapon, zoomed bool) float64 {
	spread := w.Spread * 0.1
	if zoomed {
		spread *= ZoomSpreadFactor
	}
	return spread
}

// CastShots runs one ray per projectile. Entities that do not resolve to a
// stable identifier produce geometry-only hits; misses produce a synthetic
// point at the weapon's range so effects can still be drawn.
func CastShots(physics Physics, entities Entities, rng Rand, w Weapon, aim Aim, exclude ...protocol.EntityID) []protocol.Hit {
	spread := spreadFor(w, aim.Zoomed)
	hits := make([]protocol.Hit, 0, w.Projectiles)
	for i := 0; i < w.Projectiles; i++ {
		spreadX := (rng.Float64() - 0.5) * spread
		spreadY := (rng.Float64() - 0.5) * spread
		dir := aim.perturbed(spreadX, spreadY)

		var (
			result RayHit
			ok     bool
		)
		if physics != nil {
			result, ok = physics.Cast(Ray{Origin: aim.Origin, Direction: dir, MaxDistance: w.Distance}, exclude...)
		}
		if !ok {
			hits = append(hits, protocol.Hit{
				Position: aim.Origin.Add(dir.Scale(w.Distance)),
				Damage:   w.Damage,
			})
			continue
		}
		normal := result.Normal
		hit := protocol.Hit{
			Position: result.Position,
			Normal:   &normal,
			TargetID: result.Entity,
			Damage:   w.Damage,
		}
		if result.Entity != "" && entities != nil {
			hit.IsPlayer = entities.IsAvatar(result.Entity)
		}
		hits = append(hits, hit)
	}
	return hits
}
