package motor

import (
	"context"
	"math"
	"sync"

	"github.com/san-kum/elevsim/internal/physics"
	"github.com/san-kum/elevsim/internal/units"
)

const (
	DefaultBusVoltage = 12.0
	DefaultAmbient    = 25.0

	// first-order winding model
	thermalResistance = 1.5  // K/W
	thermalCapacity   = 60.0 // J/K
)

// Simulated is a motor controller attached to a simulated elevator. Update
// must be called once per period to advance the plant; it is the only
// method that moves time forward.
type Simulated struct {
	mu sync.Mutex

	sim  *physics.ElevatorSim
	conv units.Converter

	settings    Settings
	busVoltage  float64
	duty        float64
	offset      float64 // motor rotations
	temperature float64
	fault       error
	closed      bool
}

func NewSimulated(sim *physics.ElevatorSim, conv units.Converter) *Simulated {
	return &Simulated{
		sim:         sim,
		conv:        conv,
		busVoltage:  DefaultBusVoltage,
		temperature: DefaultAmbient,
	}
}

func (s *Simulated) Configure(ctx context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.settings = settings
	return nil
}

// SetVoltage stores the requested duty cycle, limited to the bus.
func (s *Simulated) SetVoltage(ctx context.Context, volts float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.fault != nil {
		return s.fault
	}
	s.duty = math.Max(-1, math.Min(1, volts/s.busVoltage))
	return nil
}

// Update drives the plant for dt seconds with the applied voltage.
func (s *Simulated) Update(dt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sim.SetInput(s.terminalVoltage())
	if err := s.sim.Update(dt); err != nil {
		return err
	}

	plant := s.sim.Plant
	current := s.sim.CurrentDraw()
	heat := current * current * plant.Motor.R
	s.temperature += (heat - (s.temperature-DefaultAmbient)/thermalResistance) / thermalCapacity * dt
	return nil
}

// terminalVoltage applies the idle mode and the current limit to the
// commanded duty.
func (s *Simulated) terminalVoltage() float64 {
	plant := s.sim.Plant
	speed := s.sim.Velocity() / plant.DrumRadius * plant.GearRatio
	backEMF := speed / plant.Motor.Kv

	volts := s.duty * s.busVoltage
	if volts == 0 && s.settings.IdleMode == Coast {
		return backEMF
	}

	limit := s.settings.CurrentLimitAmps
	if limit <= 0 {
		return volts
	}
	current := plant.Motor.Current(speed, volts)
	if math.Abs(current) <= limit {
		return volts
	}
	return plant.Motor.Voltage(plant.Motor.Torque(math.Copysign(limit, current)), speed)
}

func (s *Simulated) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.ToMotorRotations(s.sim.Position()) + s.offset
}

func (s *Simulated) VelocityRPM() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return units.RotationsPerSecondToRPM(s.conv.ToMotorRotations(s.sim.Velocity()))
}

func (s *Simulated) AppliedOutput() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duty
}

func (s *Simulated) BusVoltage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busVoltage
}

func (s *Simulated) OutputCurrent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return math.Abs(s.sim.CurrentDraw())
}

func (s *Simulated) Temperature() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temperature
}

// SetEncoderPosition rebases the encoder so it reads rotations now.
func (s *Simulated) SetEncoderPosition(rotations float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.offset = rotations - s.conv.ToMotorRotations(s.sim.Position())
	return nil
}

// SetFault makes the device report err until cleared with nil.
func (s *Simulated) SetFault(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = err
}

func (s *Simulated) Fault() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.fault
}

func (s *Simulated) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Plant exposes the simulated elevator for display and test inspection.
func (s *Simulated) Plant() *physics.ElevatorSim {
	return s.sim
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.duty = 0
	return nil
}
