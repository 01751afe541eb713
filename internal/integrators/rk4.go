package integrators

import "github.com/san-kum/elevsim/internal/dynamo"

// classic fourth-order Runge-Kutta tableau
var (
	rk4Nodes   = [4]float64{0, 0.5, 0.5, 1}
	rk4Weights = [4]float64{1.0 / 6.0, 2.0 / 6.0, 2.0 / 6.0, 1.0 / 6.0}
)

type RK4 struct {
	k       [4]dynamo.State
	scratch dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.scratch) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(dynamo.State, n)
	}
	r.scratch = make(dynamo.State, n)
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	r.ensureScratch(n)

	copy(r.scratch, x)
	for stage := 0; stage < 4; stage++ {
		if stage > 0 {
			h := dt * rk4Nodes[stage]
			for i := 0; i < n; i++ {
				r.scratch[i] = x[i] + h*r.k[stage-1][i]
			}
		}
		copy(r.k[stage], dyn.Derive(r.scratch, u, t+dt*rk4Nodes[stage]))
	}

	result := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for stage := 0; stage < 4; stage++ {
			sum += rk4Weights[stage] * r.k[stage][i]
		}
		result[i] = x[i] + dt*sum
	}
	return result
}
