package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/elevsim/internal/dynamo"
)

// oscillator is the unit harmonic oscillator laid out as [x, v].
type oscillator struct{}

func (o *oscillator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (o *oscillator) StateDim() int   { return 2 }
func (o *oscillator) ControlDim() int { return 0 }

// decay is the first-order lag v' = -k v + u, the shape of a motor's back-EMF pole.
type decay struct{ k float64 }

func (d *decay) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], -d.k*x[1] + u[0]}
}

func (d *decay) StateDim() int   { return 2 }
func (d *decay) ControlDim() int { return 1 }

func TestRK4Accuracy(t *testing.T) {
	dyn := &oscillator{}
	integ := NewRK4()

	x := dynamo.State{1.0, 0.0}
	dt := 0.01
	steps := 100

	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, nil, float64(i)*dt, dt)
	}

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}
	if math.Abs(x[1]-expectedV) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestFirstOrderLagConverges(t *testing.T) {
	const k, u = 50.0, 100.0
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			integ, err := ByName(name)
			if err != nil {
				t.Fatal(err)
			}
			x := dynamo.State{0, 0}
			dt := 0.001
			for i := 0; i < 1000; i++ {
				x = integ.Step(&decay{k: k}, x, dynamo.Control{u}, float64(i)*dt, dt)
			}
			if math.Abs(x[1]-u/k) > 1e-3 {
				t.Errorf("steady state velocity = %.6f, want %.6f", x[1], u/k)
			}
		})
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName("leapfrog"); err == nil {
		t.Error("expected error for unknown integrator")
	}
}
