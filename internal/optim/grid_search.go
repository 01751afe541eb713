// Package optim tunes controller parameters by brute-force search over
// simulated experiments.
package optim

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/elevsim/internal/experiment"
	"github.com/san-kum/elevsim/internal/metrics"
)

// Trial is one evaluated grid point.
type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Search runs one experiment per grid point and returns the parameters
// that minimise metric, with every trial in grid order. Failed points
// are recorded and skipped; the search fails only if every point failed
// or ctx ended.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metric metrics.Metric,
) (map[string]float64, float64, []Trial, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, nil, errors.Errorf("%d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	var trials []Trial

	err := g.searchRecursive(ctx, 0, make(map[string]float64), buildExperiment, metric, &trials)
	if err != nil {
		return nil, 0, trials, err
	}

	var failed error
	for _, tr := range trials {
		if tr.Err != nil {
			failed = multierr.Append(failed, tr.Err)
			continue
		}
		if bestParams == nil || tr.Score < best {
			best = tr.Score
			bestParams = tr.Params
		}
	}
	if bestParams == nil {
		if failed == nil {
			failed = errors.New("empty grid")
		}
		return nil, 0, trials, errors.Wrap(failed, "no grid point succeeded")
	}
	return bestParams, best, trials, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	metric metrics.Metric,
	trials *[]Trial,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		tr := Trial{Params: current, Score: math.Inf(1)}
		exp, err := buildExperiment(current)
		if err != nil {
			tr.Err = err
			*trials = append(*trials, tr)
			return nil
		}

		result, err := exp.Run(ctx, metric)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			tr.Err = err
			*trials = append(*trials, tr)
			return nil
		}

		tr.Score = result.Metrics[metric.Name()]
		*trials = append(*trials, tr)
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, buildExperiment, metric, trials); err != nil {
			return err
		}
	}
	return nil
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}
