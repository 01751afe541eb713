package experiment

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/elevsim/internal/config"
	"github.com/san-kum/elevsim/internal/control"
	"github.com/san-kum/elevsim/internal/elevator"
	"github.com/san-kum/elevsim/internal/host"
	"github.com/san-kum/elevsim/internal/metrics"
	"github.com/san-kum/elevsim/internal/motor"
)

type Result struct {
	Scenario string
	Samples  []metrics.Sample
	Metrics  map[string]float64
	Stats    host.Stats
}

// Experiment plays a scenario against a simulated elevator on a mock
// clock that never advances, so a run is deterministic and as fast as
// the CPU allows.
type Experiment struct {
	cfg       *config.Config
	scenario  Scenario
	logger    *zap.Logger
	observers []func(metrics.Sample)
}

func New(cfg *config.Config, sc Scenario, logger *zap.Logger) *Experiment {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Experiment{cfg: cfg, scenario: sc, logger: logger}
}

// AddObserver registers fn to see every sample as it is taken.
func (e *Experiment) AddObserver(fn func(metrics.Sample)) {
	e.observers = append(e.observers, fn)
}

// Rig is the wired simulation an experiment runs on.
type Rig struct {
	Sim       *motor.Simulated
	Recorder  *motor.Recorder
	Subsystem *elevator.Subsystem
	Loop      *host.Loop
}

// NewRig builds the plant, the simulated motor and the subsystem from cfg,
// all driven by clk.
func NewRig(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *zap.Logger) (*Rig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	plant, err := cfg.NewElevatorSim()
	if err != nil {
		return nil, err
	}
	conv, err := cfg.Actuator.Converter()
	if err != nil {
		return nil, err
	}

	r := &Rig{Sim: motor.NewSimulated(plant, conv)}
	r.Recorder = motor.NewRecorder(r.Sim)

	period := cfg.Loop.Period
	r.Subsystem, err = elevator.New(ctx, cfg.Actuator, r.Recorder, logger,
		elevator.WithPeriod(period),
		elevator.WithClock(clk),
		elevator.WithInitialHeight(cfg.Plant.StartHeight))
	if err != nil {
		return nil, err
	}
	r.Loop = host.NewLoop(period, clk, logger, r.Subsystem, host.SimulationPeriodic(r.Sim, period))
	return r, nil
}

// Sample reads the rig's state after a tick taken at t seconds.
func (r *Rig) Sample(t float64) metrics.Sample {
	sub := r.Subsystem
	conv := sub.Converter()
	plant := r.Sim.Plant()

	s := metrics.Sample{
		Time:        t,
		Height:      plant.Position(),
		Velocity:    plant.Velocity(),
		Mode:        control.Kind(sub.Mode()),
		Setpoint:    conv.ToMeters(sub.Setpoint().Position),
		Command:     r.Recorder.LastCommand(),
		Applied:     motor.AppliedVoltage(r.Sim),
		Current:     r.Sim.OutputCurrent(),
		Temperature: r.Sim.Temperature(),
	}
	if p, ok := sub.Mode().(control.Position); ok {
		s.Target = conv.ToMeters(p.Rotations)
		s.HasTarget = true
	}
	return s
}

// Apply issues a scenario command to the subsystem.
func (r *Rig) Apply(st Step) error {
	var accel []float64
	if st.Accel > 0 {
		accel = append(accel, st.Accel)
	}
	switch st.Command {
	case CommandPosition:
		r.Subsystem.SetPosition(st.Value, accel...)
	case CommandVelocity:
		r.Subsystem.SetVelocity(st.Value, accel...)
	case CommandVoltage:
		r.Subsystem.SetVoltage(st.Value)
	default:
		return errors.Wrapf(config.ErrInvalid, "unknown command %q", st.Command)
	}
	return nil
}

// release stops the rig's motor and logs a failure to do so.
func (e *Experiment) release(ctx context.Context, rig *Rig) {
	if err := rig.Subsystem.Close(ctx); err != nil {
		e.logger.Warn("closing subsystem", zap.String("scenario", e.scenario.Name), zap.Error(err))
	}
}

// Run plays the scenario for its full duration, one sample per control
// period, and scores the samples with ms.
func (e *Experiment) Run(ctx context.Context, ms ...metrics.Metric) (*Result, error) {
	if err := e.scenario.Validate(); err != nil {
		return nil, err
	}
	mock := clock.NewMock()
	rig, err := NewRig(ctx, e.cfg, mock, e.logger)
	if err != nil {
		return nil, err
	}
	defer e.release(ctx, rig)

	period := e.cfg.Loop.Period
	ticks := int(e.scenario.Duration / period)
	steps := e.scenario.sortedSteps()
	res := &Result{Scenario: e.scenario.Name, Samples: make([]metrics.Sample, 0, ticks)}

	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		now := time.Duration(i) * period
		for len(steps) > 0 && steps[0].At <= now {
			if err := rig.Apply(steps[0]); err != nil {
				return nil, err
			}
			steps = steps[1:]
		}
		if err := rig.Loop.Step(ctx); err != nil {
			return nil, errors.Wrapf(err, "tick %d", i)
		}

		s := rig.Sample((now + period).Seconds())
		res.Samples = append(res.Samples, s)
		for _, fn := range e.observers {
			fn(s)
		}
	}

	res.Stats = rig.Loop.Stats()
	res.Metrics = metrics.Evaluate(res.Samples, ms...)
	e.logger.Debug("experiment finished",
		zap.String("scenario", e.scenario.Name),
		zap.Int("ticks", ticks),
		zap.Any("metrics", res.Metrics))
	return res, nil
}
