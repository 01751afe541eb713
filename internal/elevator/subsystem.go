// Package elevator is the mode-switching control loop for a single
// elevator stage: it stores the requested mode, samples the motor once per
// tick, runs the profiled controller and commands the resulting voltage.
package elevator

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/elevsim/internal/config"
	"github.com/san-kum/elevsim/internal/control"
	"github.com/san-kum/elevsim/internal/motor"
	"github.com/san-kum/elevsim/internal/profile"
	"github.com/san-kum/elevsim/internal/units"
)

type Option func(*Subsystem)

// WithPeriod sets the control period; it must match the host loop.
func WithPeriod(d time.Duration) Option {
	return func(s *Subsystem) { s.period = d }
}

// WithClock sets the clock the blocking commands poll on.
func WithClock(c clock.Clock) Option {
	return func(s *Subsystem) { s.clock = c }
}

// WithInitialHeight seeds the encoder as if the carriage sat at h meters
// at construction. The default is the bottom of travel.
func WithInitialHeight(h float64) Option {
	return func(s *Subsystem) {
		s.initialHeight = h
		s.initialHeightSet = true
	}
}

// Subsystem owns the motor and the controller. All methods are safe for
// concurrent use; Tick holds the lock for the whole read, compute, apply
// sequence.
type Subsystem struct {
	mu sync.Mutex

	cfg    config.Actuator
	conv   units.Converter
	motor  motor.Motor
	ctrl   *control.ProfiledController
	logger *zap.Logger
	clock  clock.Clock
	period time.Duration

	initialHeight    float64
	initialHeightSet bool

	mode     control.Mode
	reseed   bool
	feedback control.Feedback
	command  float64
}

// New validates cfg, configures the motor once and zeroes the encoder.
// The subsystem starts in open loop at 0 V.
func New(ctx context.Context, cfg config.Actuator, m motor.Motor, logger *zap.Logger, opts ...Option) (*Subsystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conv, err := cfg.Converter()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Subsystem{
		cfg:    cfg,
		conv:   conv,
		motor:  m,
		logger: logger,
		clock:  clock.New(),
		period: config.DefaultPeriod,
		mode:   control.OpenLoop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.period <= 0 {
		return nil, errors.Wrapf(config.ErrInvalid, "control period must be positive, got %s", s.period)
	}
	if !s.initialHeightSet {
		s.initialHeight = cfg.MinHeight
	}

	limits, err := profile.NewConstraints(conv.ToRotationsPerSecond(cfg.MaxVelocity), conv.ToRotationsPerSecond(cfg.MaxAcceleration))
	if err != nil {
		return nil, errors.Wrap(config.ErrInvalid, err.Error())
	}
	ff := control.Feedforward{KS: cfg.Ks, KG: cfg.Kg, KV: cfg.Kv, KA: cfg.Ka}
	s.ctrl = control.NewProfiledController(control.NewPID(cfg.Kp, cfg.Ki, cfg.Kd, s.period), ff, limits)

	settings := motor.Settings{CurrentLimitAmps: cfg.CurrentLimit, IdleMode: motor.Coast}
	if cfg.BrakeMode {
		settings.IdleMode = motor.Brake
	}
	if err := m.Configure(ctx, settings); err != nil {
		return nil, &HardwareError{Op: "configure", Err: err}
	}
	if err := m.SetEncoderPosition(conv.ToMotorRotations(s.initialHeight)); err != nil {
		return nil, &HardwareError{Op: "zero encoder", Err: err}
	}
	s.feedback = s.sample()

	if top := ff.MaxAchievableVelocity(motor.DefaultBusVoltage); limits.MaxVelocity > top {
		logger.Warn("velocity limit exceeds what the feedforward can reach",
			zap.Float64("max_velocity_mps", cfg.MaxVelocity),
			zap.Float64("achievable_mps", conv.ToMetersPerSecond(top)))
	}
	logger.Info("elevator configured",
		zap.Float64("gear_ratio", cfg.GearRatio),
		zap.Float64("drum_radius", cfg.DrumRadius),
		zap.Float64("current_limit", cfg.CurrentLimit),
		zap.Stringer("idle_mode", settings.IdleMode),
		zap.Duration("period", s.period))
	return s, nil
}

// Tick runs one control period: check the device, sample feedback,
// compute, apply. Hardware errors are returned wrapped and nothing is
// retried; the next tick simply tries again.
func (s *Subsystem) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.motor.Fault(); err != nil {
		return &HardwareError{Op: "fault", Err: err}
	}
	s.feedback = s.sample()

	if s.reseed {
		s.ctrl.Reset(profile.State{Position: s.feedback.Position, Velocity: s.feedback.Velocity})
		s.reseed = false
	}

	volts := s.ctrl.ComputeVoltage(s.mode, s.feedback)
	if err := s.motor.SetVoltage(ctx, volts); err != nil {
		return &HardwareError{Op: "set voltage", Err: err}
	}
	s.command = volts
	return nil
}

func (s *Subsystem) sample() control.Feedback {
	return control.Feedback{
		Position:    s.conv.FromMotorRotations(s.motor.Position()),
		Velocity:    s.conv.FromMotorRotations(units.RPMToRotationsPerSecond(s.motor.VelocityRPM())),
		Voltage:     motor.AppliedVoltage(s.motor),
		Current:     s.motor.OutputCurrent(),
		Temperature: s.motor.Temperature(),
	}
}

// SetVoltage switches to open loop at volts.
func (s *Subsystem) SetVoltage(volts float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setModeLocked(control.OpenLoop{Volts: volts}, nil)
}

// SetPosition switches to position control toward meters. An acceleration
// override above zero (m/s²) replaces the profile's acceleration limit.
func (s *Subsystem) SetPosition(meters float64, accel ...float64) {
	target := control.Position{Rotations: s.conv.ToRotations(meters)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if (meters < s.cfg.MinHeight || meters > s.cfg.MaxHeight) && s.mode != target {
		s.logger.Warn("position target outside travel",
			zap.Float64("target", meters),
			zap.Float64("min", s.cfg.MinHeight),
			zap.Float64("max", s.cfg.MaxHeight))
	}
	s.setModeLocked(target, accel)
}

// SetVelocity switches to velocity control at mps, with the same
// acceleration override as SetPosition.
func (s *Subsystem) SetVelocity(mps float64, accel ...float64) {
	target := control.Velocity{RotationsPerSecond: s.conv.ToRotationsPerSecond(mps)}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setModeLocked(target, accel)
}

// setModeLocked swaps the acceleration limit and the mode together, so a
// tick never sees one without the other. s.mu must be held.
func (s *Subsystem) setModeLocked(m control.Mode, accel []float64) {
	if len(accel) > 0 && accel[0] > 0 {
		s.ctrl.SetMaxAcceleration(s.conv.ToRotationsPerSecond(accel[0]))
	}
	if !control.SameKind(s.mode, m) {
		s.reseed = true
		s.logger.Debug("mode change", zap.Stringer("from", s.mode), zap.Stringer("to", m))
	}
	s.mode = m
}

// Mode returns the active mode and its target.
func (s *Subsystem) Mode() control.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Setpoint is the profiled setpoint in drum rotations.
func (s *Subsystem) Setpoint() profile.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Setpoint()
}

// Constraints are the active profile limits in drum rotations.
func (s *Subsystem) Constraints() profile.Constraints {
	return s.ctrl.Constraints()
}

func (s *Subsystem) Feedback() control.Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedback
}

// Position is the drum position in rotations.
func (s *Subsystem) Position() float64 { return s.Feedback().Position }

// Velocity is the drum speed in rotations per second.
func (s *Subsystem) Velocity() float64 { return s.Feedback().Velocity }

// Voltage is the voltage the device reports applying.
func (s *Subsystem) Voltage() float64 { return s.Feedback().Voltage }

func (s *Subsystem) Current() float64     { return s.Feedback().Current }
func (s *Subsystem) Temperature() float64 { return s.Feedback().Temperature }

// Height is the carriage height in meters.
func (s *Subsystem) Height() float64 {
	return s.conv.ToMeters(s.Position())
}

// Command is the voltage most recently sent to the motor.
func (s *Subsystem) Command() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.command
}

func (s *Subsystem) MinHeight() float64 { return s.cfg.MinHeight }
func (s *Subsystem) MaxHeight() float64 { return s.cfg.MaxHeight }

func (s *Subsystem) Converter() units.Converter { return s.conv }
func (s *Subsystem) Period() time.Duration      { return s.period }

// Close stops the motor and releases it.
func (s *Subsystem) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = control.OpenLoop{}
	stopErr := s.motor.SetVoltage(ctx, 0)
	if err := s.motor.Close(); err != nil {
		return err
	}
	if stopErr != nil {
		return &HardwareError{Op: "stop", Err: stopErr}
	}
	return nil
}
