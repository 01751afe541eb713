package physics

import (
	"github.com/pkg/errors"

	"github.com/san-kum/elevsim/internal/dynamo"
)

const DefaultGravity = 9.81

// Elevator is a carriage hung from a cable drum driven through a gearbox.
// State is [position m, velocity m/s]; control is [volts].
type Elevator struct {
	Motor      DCMotor
	GearRatio  float64
	Mass       float64 // kg
	DrumRadius float64 // m
	Gravity    float64 // m/s², 0 disables the load
}

func NewElevator(motor DCMotor, gearRatio, mass, drumRadius float64) *Elevator {
	return &Elevator{
		Motor:      motor,
		GearRatio:  gearRatio,
		Mass:       mass,
		DrumRadius: drumRadius,
		Gravity:    DefaultGravity,
	}
}

var _ dynamo.Configurable = (*Elevator)(nil)

func (e *Elevator) StateDim() int   { return 2 }
func (e *Elevator) ControlDim() int { return 1 }

// Derive gives a = B·V + A·v - g, with the back-EMF pole A and input gain B
// from the motor constants.
func (e *Elevator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	volts := 0.0
	if len(u) > 0 {
		volts = u[0]
	}
	a, b := e.coefficients()
	return dynamo.State{x[1], a*x[1] + b*volts - e.Gravity}
}

func (e *Elevator) coefficients() (a, b float64) {
	m := e.Motor
	g, r := e.GearRatio, e.DrumRadius
	a = -(g * g * m.Kt) / (m.R * r * r * e.Mass * m.Kv)
	b = (g * m.Kt) / (m.R * r * e.Mass)
	return a, b
}

// GravityVolts is the voltage that holds the carriage still.
func (e *Elevator) GravityVolts() float64 {
	_, b := e.coefficients()
	return e.Gravity / b
}

// VoltsPerMeterPerSecond is the back-EMF voltage per m/s of carriage speed.
func (e *Elevator) VoltsPerMeterPerSecond() float64 {
	return e.GearRatio / (e.DrumRadius * e.Motor.Kv)
}

// VoltsPerMeterPerSecondSquared is the voltage that accelerates the
// carriage by 1 m/s², apart from gravity and back-EMF.
func (e *Elevator) VoltsPerMeterPerSecondSquared() float64 {
	_, b := e.coefficients()
	return 1 / b
}

// CurrentDraw is the motor current at carriage speed v with volts applied.
func (e *Elevator) CurrentDraw(v, volts float64) float64 {
	motorSpeed := v / e.DrumRadius * e.GearRatio
	return e.Motor.Current(motorSpeed, volts) * sign(volts)
}

// Energy is the mechanical energy of the carriage relative to height zero.
func (e *Elevator) Energy(x dynamo.State) float64 {
	return 0.5*e.Mass*x[1]*x[1] + e.Mass*e.Gravity*x[0]
}

func (e *Elevator) GetParams() map[string]float64 {
	return map[string]float64{
		"mass":        e.Mass,
		"gear_ratio":  e.GearRatio,
		"drum_radius": e.DrumRadius,
		"gravity":     e.Gravity,
	}
}

func (e *Elevator) SetParam(name string, value float64) error {
	if value < 0 || (value == 0 && name != "gravity") {
		return errors.Wrapf(dynamo.ErrParameterBounds, "%s=%v", name, value)
	}
	switch name {
	case "mass":
		e.Mass = value
	case "gear_ratio":
		e.GearRatio = value
	case "drum_radius":
		e.DrumRadius = value
	case "gravity":
		e.Gravity = value
	default:
		return errors.Errorf("unknown param: %s", name)
	}
	return nil
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
