package dynamo

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// State is a plant state vector, laid out by the System that owns it.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// IsValid reports whether every entry is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type Control []float64

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// Configurable is implemented by plants that expose tunable parameters.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

// Check verifies x and u have the sizes sys expects.
func Check(sys System, x State, u Control) error {
	if len(x) != sys.StateDim() {
		return errors.Wrapf(ErrDimensionMismatch, "state has %d entries, want %d", len(x), sys.StateDim())
	}
	if len(u) != sys.ControlDim() {
		return errors.Wrapf(ErrDimensionMismatch, "control has %d entries, want %d", len(u), sys.ControlDim())
	}
	return nil
}

// StepError reports the integrator step at which the plant failed.
type StepError struct {
	Time float64
	Step int
	Err  error
}

func (e StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Err)
}

func (e StepError) Unwrap() error { return e.Err }
