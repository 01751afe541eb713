package control

import (
	"time"

	"github.com/felixge/pidctrl"
)

// PID is a feedback controller stepped at a fixed period. The derivative
// acts on the measurement, so setpoint steps do not kick the output.
type PID struct {
	Kp     float64
	Ki     float64
	Kd     float64
	Period time.Duration

	ctrl   *pidctrl.PIDController
	primed bool
}

func NewPID(kp, ki, kd float64, period time.Duration) *PID {
	p := &PID{Kp: kp, Ki: ki, Kd: kd, Period: period}
	p.Reset()
	return p
}

// Calculate returns the output for one period. The first call after a
// reset is proportional only, since there is no history yet.
func (p *PID) Calculate(measurement, setpoint float64) float64 {
	p.ctrl.Set(setpoint)
	if !p.primed {
		p.primed = true
		return p.ctrl.UpdateDuration(measurement, 0)
	}
	return p.ctrl.UpdateDuration(measurement, p.Period)
}

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.ctrl = pidctrl.NewPIDController(p.Kp, p.Ki, p.Kd)
	p.primed = false
}
