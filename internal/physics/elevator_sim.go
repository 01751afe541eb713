package physics

import (
	"math"

	"github.com/san-kum/elevsim/internal/dynamo"
)

const DefaultSubsteps = 20

// ElevatorSim integrates an Elevator between travel limits. Each Update is
// split into Substeps integrator steps since the back-EMF pole of a geared
// motor is much faster than a 20 ms control period.
//
// At a limit the position saturates and velocity into the limit is zeroed;
// motion away from the limit is kept.
type ElevatorSim struct {
	Plant       *Elevator
	MinHeight   float64
	MaxHeight   float64
	StartHeight float64
	Substeps    int

	integ dynamo.Integrator
	state dynamo.State
	input float64
	time  float64
	steps int
}

func NewElevatorSim(plant *Elevator, minHeight, maxHeight, startHeight float64, integ dynamo.Integrator) *ElevatorSim {
	s := &ElevatorSim{
		Plant:       plant,
		MinHeight:   minHeight,
		MaxHeight:   maxHeight,
		StartHeight: startHeight,
		Substeps:    DefaultSubsteps,
		integ:       integ,
	}
	s.Reset()
	return s
}

// SetInput applies volts, limited to the motor's nominal supply.
func (s *ElevatorSim) SetInput(volts float64) {
	limit := s.Plant.Motor.NominalVoltage
	s.input = math.Max(-limit, math.Min(limit, volts))
}

func (s *ElevatorSim) Input() float64 { return s.input }

// Update advances the plant by dt seconds.
func (s *ElevatorSim) Update(dt float64) error {
	n := s.Substeps
	if n < 1 {
		n = 1
	}
	h := dt / float64(n)
	u := dynamo.Control{s.input}
	if err := dynamo.Check(s.Plant, s.state, u); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		next := s.integ.Step(s.Plant, s.state, u, s.time, h)
		if !next.IsValid() {
			return dynamo.StepError{Time: s.time, Step: s.steps, Err: dynamo.ErrInvalidState}
		}
		s.state = s.clamp(next)
		s.time += h
		s.steps++
	}
	return nil
}

func (s *ElevatorSim) clamp(x dynamo.State) dynamo.State {
	switch {
	case x[0] <= s.MinHeight:
		x[0] = s.MinHeight
		x[1] = math.Max(x[1], 0)
	case x[0] >= s.MaxHeight:
		x[0] = s.MaxHeight
		x[1] = math.Min(x[1], 0)
	}
	return x
}

func (s *ElevatorSim) Position() float64 { return s.state[0] }
func (s *ElevatorSim) Velocity() float64 { return s.state[1] }
func (s *ElevatorSim) Time() float64     { return s.time }

func (s *ElevatorSim) State() dynamo.State { return s.state.Clone() }

func (s *ElevatorSim) CurrentDraw() float64 {
	return s.Plant.CurrentDraw(s.state[1], s.input)
}

func (s *ElevatorSim) HasHitLowerLimit() bool { return s.state[0] <= s.MinHeight }
func (s *ElevatorSim) HasHitUpperLimit() bool { return s.state[0] >= s.MaxHeight }

// SetState places the carriage, subject to the travel limits.
func (s *ElevatorSim) SetState(position, velocity float64) {
	s.state = s.clamp(dynamo.State{position, velocity})
}

// Reset returns the carriage to rest at the starting height.
func (s *ElevatorSim) Reset() {
	s.state = s.clamp(dynamo.State{s.StartHeight, 0})
	s.input = 0
	s.time = 0
	s.steps = 0
}
