package motor

import (
	"context"
	"sync"
)

// Recorder is a Motor that remembers the last commanded voltage and how
// many commands failed.
type Recorder struct {
	Motor

	mu       sync.Mutex
	last     float64
	commands int
	failures int
}

func NewRecorder(m Motor) *Recorder {
	return &Recorder{Motor: m}
}

func (r *Recorder) SetVoltage(ctx context.Context, volts float64) error {
	err := r.Motor.SetVoltage(ctx, volts)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands++
	if err != nil {
		r.failures++
		return err
	}
	r.last = volts
	return nil
}

// LastCommand is the most recent voltage the device accepted.
func (r *Recorder) LastCommand() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Recorder) Counts() (commands, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commands, r.failures
}
