// Package protocol declares the gameplay action kinds exchanged between
// peers and registers them into an action catalog.
package protocol

import (
	"math"

	"skirmish/server/internal/action"
)

// UserID identifies a player.
type UserID = action.UserID

// EntityID identifies an entity in the world collaborator (avatar, pickup,
// geometry).
type EntityID string

// Vec3 is a world-space vector.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Normalize returns the unit vector along v, or the zero vector.
func (v Vec3) Normalize() Vec3 {
	length := v.Length()
	if length == 0 {
		return Vec3{}
	}
	return v.Scale(1 / length)
}

// Finite reports whether every component is a finite number.
func (v Vec3) Finite() bool {
	for _, c := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func finiteVec(field string, v Vec3) error {
	if !v.Finite() {
		return &action.SchemaError{Field: field, Reason: "must be finite"}
	}
	return nil
}
