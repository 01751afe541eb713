// Package units converts between the linear frame callers use (meters, m/s)
// and the actuator's rotational frame (drum rotations, rotations/s).
//
// Motor rotations are drum rotations times the gear ratio; that is the frame
// an encoder mounted on the motor shaft reports in.
package units

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidGeometry is returned for a non-positive drum radius or gear ratio.
var ErrInvalidGeometry = errors.New("units: drum radius and gear ratio must be positive")

type Converter struct {
	DrumRadius float64
	GearRatio  float64
}

func NewConverter(drumRadius, gearRatio float64) (Converter, error) {
	if !(drumRadius > 0) || !(gearRatio > 0) || math.IsInf(drumRadius, 0) || math.IsInf(gearRatio, 0) {
		return Converter{}, errors.Wrapf(ErrInvalidGeometry, "radius=%v gear=%v", drumRadius, gearRatio)
	}
	return Converter{DrumRadius: drumRadius, GearRatio: gearRatio}, nil
}

// Circumference is the cable travel per drum rotation in meters.
func (c Converter) Circumference() float64 {
	return 2 * math.Pi * c.DrumRadius
}

func (c Converter) ToRotations(meters float64) float64 {
	return meters / c.Circumference()
}

func (c Converter) ToMeters(rotations float64) float64 {
	return rotations * c.Circumference()
}

func (c Converter) ToRotationsPerSecond(metersPerSecond float64) float64 {
	return metersPerSecond / c.Circumference()
}

func (c Converter) ToMetersPerSecond(rotationsPerSecond float64) float64 {
	return rotationsPerSecond * c.Circumference()
}

func (c Converter) ToMotorRotations(meters float64) float64 {
	return c.ToRotations(meters) * c.GearRatio
}

// FromMotorRotations maps encoder rotations back to drum rotations.
func (c Converter) FromMotorRotations(motorRotations float64) float64 {
	return motorRotations / c.GearRatio
}

func RPMToRotationsPerSecond(rpm float64) float64 {
	return rpm / 60.0
}

func RotationsPerSecondToRPM(rps float64) float64 {
	return rps * 60.0
}
