package control

import "fmt"

// Mode is the active control law together with its target. The set of
// variants is closed: OpenLoop, Position and Velocity.
type Mode interface {
	fmt.Stringer
	mode()
}

// OpenLoop applies Volts directly.
type OpenLoop struct {
	Volts float64
}

// Position tracks a drum position through the trapezoidal profile.
type Position struct {
	Rotations float64
}

// Velocity tracks a drum speed through the acceleration ramp.
type Velocity struct {
	RotationsPerSecond float64
}

func (OpenLoop) mode() {}
func (Position) mode() {}
func (Velocity) mode() {}

func (m OpenLoop) String() string { return fmt.Sprintf("open-loop(%.3f V)", m.Volts) }
func (m Position) String() string { return fmt.Sprintf("position(%.4f rot)", m.Rotations) }
func (m Velocity) String() string { return fmt.Sprintf("velocity(%.4f rot/s)", m.RotationsPerSecond) }

// Kind names the variant without its target.
func Kind(m Mode) string {
	switch m.(type) {
	case OpenLoop:
		return "open-loop"
	case Position:
		return "position"
	case Velocity:
		return "velocity"
	default:
		return "unknown"
	}
}

// SameKind reports whether a and b are the same variant.
func SameKind(a, b Mode) bool {
	return Kind(a) == Kind(b)
}
