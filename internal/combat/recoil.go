package combat

import "math"

const rad2deg = 180 / math.Pi

// CameraRig receives the cosmetic recoil kick of local shots.
type CameraRig interface {
	Nudge(dTheta, dPhi float64)
}

// Recoil computes the camera kick of one shot in degrees. The kick pulls
// the view up with a small random sideways component.
func Recoil(w Weapon, rng Rand) (dTheta, dPhi float64) {
	if w.Recoil <= 0 {
		return 0, 0
	}
	amount := w.Recoil * 0.25
	x := amount * rad2deg * (0.05 - rng.Float64()*0.1) * 0.5
	y := amount * rad2deg * (1 - rng.Float64()*0.1)
	return x, -y
}
