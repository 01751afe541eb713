package control

import (
	"time"

	"go.uber.org/atomic"

	"github.com/san-kum/elevsim/internal/profile"
)

// Feedback is one consistent sample of the actuator, in drum rotations.
type Feedback struct {
	Position    float64
	Velocity    float64
	Voltage     float64
	Current     float64
	Temperature float64
}

// ProfiledController runs PID against a motion-profiled setpoint and adds
// feedforward. It is not safe for concurrent use apart from the constraint
// accessors, which swap whole snapshots.
type ProfiledController struct {
	pid         *PID
	ff          Feedforward
	constraints *atomic.Pointer[profile.Constraints]
	trapezoid   *profile.Trapezoid
	setpoint    profile.State
}

func NewProfiledController(pid *PID, ff Feedforward, c profile.Constraints) *ProfiledController {
	return &ProfiledController{
		pid:         pid,
		ff:          ff,
		constraints: atomic.NewPointer(&c),
		trapezoid:   profile.NewTrapezoid(c),
	}
}

// ComputeVoltage advances the setpoint one period and returns the command.
// OpenLoop leaves both the profile and the PID untouched.
func (c *ProfiledController) ComputeVoltage(mode Mode, fb Feedback) float64 {
	dt := c.pid.Period.Seconds()
	limits := c.Constraints()

	switch m := mode.(type) {
	case OpenLoop:
		return m.Volts

	case Position:
		c.trapezoid.Constraints = limits
		c.setpoint = c.trapezoid.Calculate(dt, c.setpoint, profile.State{Position: m.Rotations})
		out := c.pid.Calculate(fb.Position, c.setpoint.Position)
		return out + c.ff.Calculate(c.setpoint.Velocity, 0)

	case Velocity:
		c.setpoint.Velocity = profile.Ramp(limits, c.setpoint.Velocity, m.RotationsPerSecond, dt)
		c.setpoint.Position += c.setpoint.Velocity * dt
		out := c.pid.Calculate(fb.Velocity, c.setpoint.Velocity)
		accel := c.setpoint.Velocity - fb.Velocity
		return out + c.ff.Calculate(m.RotationsPerSecond, accel)
	}
	return 0
}

// Reset re-seeds the profiled setpoint at the measured state and clears
// the PID history.
func (c *ProfiledController) Reset(measured profile.State) {
	c.setpoint = measured
	c.pid.Reset()
}

func (c *ProfiledController) Setpoint() profile.State {
	return c.setpoint
}

func (c *ProfiledController) Constraints() profile.Constraints {
	return *c.constraints.Load()
}

// SetMaxAcceleration replaces the acceleration limit. The velocity limit
// is fixed at construction; non-positive or non-finite values are ignored.
func (c *ProfiledController) SetMaxAcceleration(acc float64) {
	limits := c.Constraints().WithMaxAcceleration(acc)
	c.constraints.Store(&limits)
}

func (c *ProfiledController) Feedforward() Feedforward {
	return c.ff
}

func (c *ProfiledController) Period() time.Duration {
	return c.pid.Period
}
