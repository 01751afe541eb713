package elevator

import (
	"github.com/pkg/errors"
)

// ErrHardware matches every error raised by the motor during a tick.
var ErrHardware = errors.New("elevator: hardware error")

// HardwareError carries the failing operation and the device error.
// errors.Is matches both ErrHardware and the underlying cause.
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return "elevator: " + e.Op + ": " + e.Err.Error()
}

func (e *HardwareError) Unwrap() error { return e.Err }

func (e *HardwareError) Is(target error) bool { return target == ErrHardware }
