// Package host runs periodic callbacks at a fixed rate, the way a robot
// main loop drives its subsystems and then the simulation.
package host

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const DefaultPeriod = 20 * time.Millisecond

// Periodic is called once per loop iteration.
type Periodic interface {
	Tick(ctx context.Context) error
}

type PeriodicFunc func(ctx context.Context) error

func (f PeriodicFunc) Tick(ctx context.Context) error { return f(ctx) }

// Updater is a simulation stepped by a fixed dt in seconds.
type Updater interface {
	Update(dt float64) error
}

// SimulationPeriodic advances u by period on every tick.
func SimulationPeriodic(u Updater, period time.Duration) Periodic {
	return PeriodicFunc(func(ctx context.Context) error {
		return u.Update(period.Seconds())
	})
}

type Stats struct {
	Ticks    int64
	Errors   int64
	Overruns int64
}

// Loop calls its tasks in order every Period. A failing task is logged and
// counted; the remaining tasks and later ticks still run.
type Loop struct {
	Period time.Duration

	clock  clock.Clock
	logger *zap.Logger
	tasks  []Periodic

	ticks    atomic.Int64
	errs     atomic.Int64
	overruns atomic.Int64
}

func NewLoop(period time.Duration, clk clock.Clock, logger *zap.Logger, tasks ...Periodic) *Loop {
	if period <= 0 {
		period = DefaultPeriod
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{Period: period, clock: clk, logger: logger, tasks: tasks}
}

// Step runs every task once and returns their combined errors.
func (l *Loop) Step(ctx context.Context) error {
	start := l.clock.Now()
	var errs error
	for _, task := range l.tasks {
		if err := task.Tick(ctx); err != nil {
			l.errs.Inc()
			errs = multierr.Append(errs, err)
		}
	}
	l.ticks.Inc()
	if l.clock.Since(start) > l.Period {
		l.overruns.Inc()
	}
	return errs
}

// Run ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.Ticker(l.Period)
	defer ticker.Stop()

	l.logger.Info("loop started", zap.Duration("period", l.Period), zap.Int("tasks", len(l.tasks)))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("loop stopped", zap.Int64("ticks", l.ticks.Load()), zap.Int64("errors", l.errs.Load()))
			return ctx.Err()
		case <-ticker.C:
			if err := l.Step(ctx); err != nil {
				l.logger.Warn("tick failed", zap.Int64("tick", l.ticks.Load()), zap.Error(err))
			}
		}
	}
}

func (l *Loop) Stats() Stats {
	return Stats{Ticks: l.ticks.Load(), Errors: l.errs.Load(), Overruns: l.overruns.Load()}
}
