// Package motor abstracts the smart motor controller that drives the
// elevator: a voltage-actuated device with an integrated encoder.
//
// [Simulated] runs against the physics plant and [CAN] talks to real
// hardware over SocketCAN; the control loop cannot tell them apart.
package motor

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrStale is reported when status frames stop arriving.
	ErrStale = errors.New("motor: status stale")

	// ErrClosed is reported after Close.
	ErrClosed = errors.New("motor: closed")
)

type IdleMode int

const (
	Brake IdleMode = iota
	Coast
)

func (m IdleMode) String() string {
	if m == Coast {
		return "coast"
	}
	return "brake"
}

// Settings are applied once at construction.
type Settings struct {
	CurrentLimitAmps float64
	IdleMode         IdleMode
}

// Motor is a voltage-actuated position and velocity source. Positions are
// motor shaft rotations and velocities are RPM, as the encoder reports them.
type Motor interface {
	Configure(ctx context.Context, s Settings) error
	SetVoltage(ctx context.Context, volts float64) error

	Position() float64
	VelocityRPM() float64
	AppliedOutput() float64
	BusVoltage() float64
	OutputCurrent() float64
	Temperature() float64

	SetEncoderPosition(rotations float64) error

	// Fault reports a communication problem; nil when healthy.
	Fault() error
	Close() error
}

// AppliedVoltage is the voltage the device is driving, duty times bus.
func AppliedVoltage(m Motor) float64 {
	return m.AppliedOutput() * m.BusVoltage()
}
