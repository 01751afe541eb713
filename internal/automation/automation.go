// Package automation runs batches of experiments, such as Monte Carlo
// robustness checks over plant uncertainty.
package automation

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/elevsim/internal/config"
	"github.com/san-kum/elevsim/internal/experiment"
	"github.com/san-kum/elevsim/internal/metrics"
)

// MonteCarloConfig perturbs the simulated plant while the controller keeps
// its nominal gains, so each trial shows how the loop copes with a
// mechanism that is not what it was tuned for.
type MonteCarloConfig struct {
	Base     *config.Config
	Scenario experiment.Scenario
	Trials   int

	// MassSpread scales the carriage mass by a factor drawn from
	// [1-MassSpread, 1+MassSpread].
	MassSpread float64
	// StartSpread offsets the start height by up to ±StartSpread meters,
	// clamped to the travel.
	StartSpread float64
	// Tolerance decides whether a trial ended settled on its target.
	Tolerance float64

	Seed    int64
	Workers int
}

// MonteCarloResult holds one trial.
type MonteCarloResult struct {
	TrialID     int
	Mass        float64
	StartHeight float64
	FinalError  float64
	Settled     bool
	Metrics     map[string]float64
}

type trial struct {
	mass, start float64
}

// RunMonteCarlo runs the trials concurrently. Perturbations are drawn up
// front from Seed, so results do not depend on Workers.
func RunMonteCarlo(ctx context.Context, cfg MonteCarloConfig, logger *zap.Logger) ([]MonteCarloResult, error) {
	if cfg.Base == nil {
		return nil, errors.Wrap(config.ErrInvalid, "monte carlo: no base config")
	}
	if cfg.Trials <= 0 {
		return nil, errors.Wrapf(config.ErrInvalid, "monte carlo: trials must be positive, got %d", cfg.Trials)
	}
	if cfg.MassSpread < 0 || cfg.MassSpread >= 1 {
		return nil, errors.Wrapf(config.ErrInvalid, "monte carlo: mass spread must be in [0, 1), got %v", cfg.MassSpread)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	lo, hi := cfg.Base.Actuator.MinHeight, cfg.Base.Actuator.MaxHeight
	trials := make([]trial, cfg.Trials)
	for i := range trials {
		trials[i].mass = cfg.Base.Plant.Mass * (1 + (rng.Float64()-0.5)*2*cfg.MassSpread)
		start := cfg.Base.Plant.StartHeight + (rng.Float64()-0.5)*2*cfg.StartSpread
		trials[i].start = math.Max(lo, math.Min(hi, start))
	}

	results := make([]MonteCarloResult, cfg.Trials)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tr := range trials {
		g.Go(func() error {
			res, err := runTrial(gctx, cfg, tr)
			if err != nil {
				return errors.Wrapf(err, "trial %d", i)
			}
			res.TrialID = i
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	settled, unsettled := MonteCarloStats(results)
	logger.Info("monte carlo finished",
		zap.String("scenario", cfg.Scenario.Name),
		zap.Int("settled", settled),
		zap.Int("unsettled", unsettled))
	return results, nil
}

func runTrial(ctx context.Context, mc MonteCarloConfig, tr trial) (MonteCarloResult, error) {
	cfg := mc.Base.Clone()
	cfg.Plant.Mass = tr.mass
	cfg.Plant.StartHeight = tr.start

	ms := []metrics.Metric{
		metrics.NewTrackingError(),
		metrics.NewOvershoot(),
		metrics.NewSettlingTime(mc.Tolerance),
		metrics.NewPeakCurrent(),
	}
	result, err := experiment.New(cfg, mc.Scenario, nil).Run(ctx, ms...)
	if err != nil {
		return MonteCarloResult{}, err
	}

	res := MonteCarloResult{Mass: tr.mass, StartHeight: tr.start, Metrics: result.Metrics}
	if n := len(result.Samples); n > 0 {
		last := result.Samples[n-1]
		if last.HasTarget {
			res.FinalError = math.Abs(last.Target - last.Height)
			res.Settled = res.FinalError <= mc.Tolerance
		}
	}
	return res, nil
}

// MonteCarloStats counts trials that ended on target and those that did not.
func MonteCarloStats(results []MonteCarloResult) (settled int, unsettled int) {
	for _, r := range results {
		if r.Settled {
			settled++
		} else {
			unsettled++
		}
	}
	return
}
