package control

import "math"

// Feedforward is the elevator model term: static friction, gravity,
// velocity and acceleration, in volts per rotational unit.
type Feedforward struct {
	KS float64
	KG float64
	KV float64
	KA float64
}

func (f Feedforward) Calculate(velocity, acceleration float64) float64 {
	return f.KS*sign(velocity) + f.KG + f.KV*velocity + f.KA*acceleration
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// MaxAchievableVelocity is the fastest steady speed the feedforward can
// command with maxVoltage available, ignoring acceleration.
func (f Feedforward) MaxAchievableVelocity(maxVoltage float64) float64 {
	if f.KV == 0 {
		return math.Inf(1)
	}
	return (maxVoltage - f.KS - f.KG) / f.KV
}
