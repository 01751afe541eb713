// Package profile generates trapezoidal motion profiles: intermediate
// setpoints that reach a goal without exceeding velocity and acceleration
// limits.
package profile

import (
	"math"

	"github.com/pkg/errors"
)

// Constraints are the profile limits, in the caller's rotational units.
// A Constraints value is an immutable snapshot; updates build a new one.
type Constraints struct {
	MaxVelocity     float64
	MaxAcceleration float64
}

func NewConstraints(maxVelocity, maxAcceleration float64) (Constraints, error) {
	c := Constraints{MaxVelocity: maxVelocity, MaxAcceleration: maxAcceleration}
	if !c.Valid() {
		return Constraints{}, errors.Errorf("profile constraints must be positive and finite, got vel=%v acc=%v", maxVelocity, maxAcceleration)
	}
	return c, nil
}

func (c Constraints) Valid() bool {
	return positiveFinite(c.MaxVelocity) && positiveFinite(c.MaxAcceleration)
}

// WithMaxAcceleration returns a copy using acc as the acceleration limit.
// Non-positive (or non-finite) overrides leave the limits unchanged.
func (c Constraints) WithMaxAcceleration(acc float64) Constraints {
	if !positiveFinite(acc) {
		return c
	}
	return Constraints{MaxVelocity: c.MaxVelocity, MaxAcceleration: acc}
}

type State struct {
	Position float64
	Velocity float64
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
