package optim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onsi/gomega"

	"github.com/san-kum/elevsim/internal/config"
	"github.com/san-kum/elevsim/internal/experiment"
	"github.com/san-kum/elevsim/internal/metrics"
)

var hop = experiment.Scenario{
	Name:     "hop",
	Duration: 2 * time.Second,
	Steps:    []experiment.Step{{Command: experiment.CommandPosition, Value: 0.4}},
}

func builder(base *config.Config) func(map[string]float64) (*experiment.Experiment, error) {
	return func(params map[string]float64) (*experiment.Experiment, error) {
		cfg, err := Apply(base, params)
		if err != nil {
			return nil, err
		}
		return experiment.New(cfg, hop, nil), nil
	}
}

func TestGridSearchPicksLowestScore(t *testing.T) {
	g := gomega.NewWithT(t)
	gs := NewGridSearch([]string{"kp", "kd"}, [][]float64{{-1, 0.5, 1}, {0, 0.01}})

	best, score, trials, err := gs.Search(context.Background(), builder(config.DefaultConfig()), metrics.NewTrackingError())
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(trials).To(gomega.HaveLen(6))

	// Grid order: kd varies fastest.
	g.Expect(trials[1].Params).To(gomega.Equal(map[string]float64{"kp": -1, "kd": 0.01}))
	g.Expect(trials[0].Err).To(gomega.MatchError(config.ErrInvalid))
	g.Expect(trials[1].Err).To(gomega.HaveOccurred())

	for _, tr := range trials[2:] {
		g.Expect(tr.Err).NotTo(gomega.HaveOccurred())
		g.Expect(score).To(gomega.BeNumerically("<=", tr.Score))
	}
	g.Expect(best["kp"]).To(gomega.BeElementOf(0.5, 1.0))
	g.Expect(score).To(gomega.BeNumerically(">", 0))
}

func TestGridSearchAllFailed(t *testing.T) {
	g := gomega.NewWithT(t)
	gs := NewGridSearch([]string{"kp"}, [][]float64{{-2, -1}})

	_, _, trials, err := gs.Search(context.Background(), builder(config.DefaultConfig()), metrics.NewOvershoot())
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("no grid point succeeded")))
	g.Expect(errors.Is(err, config.ErrInvalid)).To(gomega.BeTrue())
	g.Expect(trials).To(gomega.HaveLen(2))
}

func TestGridSearchStopsOnCancel(t *testing.T) {
	g := gomega.NewWithT(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gs := NewGridSearch([]string{"kp"}, [][]float64{{1}})
	_, _, _, err := gs.Search(ctx, builder(config.DefaultConfig()), metrics.NewOvershoot())
	g.Expect(err).To(gomega.MatchError(context.Canceled))
}

func TestGridSearchShapeMismatch(t *testing.T) {
	g := gomega.NewWithT(t)
	_, _, _, err := NewGridSearch([]string{"kp", "kd"}, [][]float64{{1}}).Search(context.Background(), nil, metrics.NewOvershoot())
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestApply(t *testing.T) {
	g := gomega.NewWithT(t)
	base := config.DefaultConfig()

	cfg, err := Apply(base, map[string]float64{"kp": 3, "max_velocity": 0.5})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(cfg.Actuator.Kp).To(gomega.Equal(3.0))
	g.Expect(cfg.Actuator.MaxVelocity).To(gomega.Equal(0.5))
	g.Expect(base.Actuator.Kp).To(gomega.Equal(config.DefaultKp))

	_, err = Apply(base, map[string]float64{"gain": 1})
	g.Expect(err).To(gomega.MatchError(config.ErrInvalid))
}

func TestLinspace(t *testing.T) {
	g := gomega.NewWithT(t)
	g.Expect(Linspace(0, 1, 5)).To(gomega.Equal([]float64{0, 0.25, 0.5, 0.75, 1}))
	g.Expect(Linspace(2, 9, 1)).To(gomega.Equal([]float64{2}))
}
