package profile

import "math"

// Ramp advances a velocity setpoint toward target, clamped to the velocity
// limit, changing by at most MaxAcceleration*dt.
func Ramp(c Constraints, current, target, dt float64) float64 {
	goal := math.Max(-c.MaxVelocity, math.Min(c.MaxVelocity, target))
	step := c.MaxAcceleration * dt
	switch {
	case goal > current+step:
		return current + step
	case goal < current-step:
		return current - step
	default:
		return goal
	}
}
