package experiment

import (
	"fmt"
	"sort"
	"time"

	"github.com/san-kum/elevsim/internal/config"
	"github.com/san-kum/elevsim/internal/elevator"
	"github.com/san-kum/elevsim/internal/metrics"
)

type Registry struct {
	scenarios map[string]Scenario
}

func NewRegistry() *Registry {
	r := &Registry{scenarios: make(map[string]Scenario)}

	r.Register(Scenario{
		Name:     "step",
		Duration: 6 * time.Second,
		Steps:    []Step{{Command: CommandPosition, Value: 0.5}},
	})
	r.Register(Scenario{
		Name:     "staircase",
		Duration: 12 * time.Second,
		Steps: []Step{
			{At: 0, Command: CommandPosition, Value: 0.25},
			{At: 3 * time.Second, Command: CommandPosition, Value: 0.75},
			{At: 6 * time.Second, Command: CommandPosition, Value: 0.5},
			{At: 9 * time.Second, Command: CommandPosition, Value: 0.1},
		},
	})
	r.Register(Scenario{
		Name:     "retarget",
		Duration: 6 * time.Second,
		Steps: []Step{
			{At: 0, Command: CommandPosition, Value: 0.9},
			{At: 600 * time.Millisecond, Command: CommandPosition, Value: 0.2},
		},
	})
	r.Register(Scenario{
		Name:     "cruise",
		Duration: 4 * time.Second,
		Steps: []Step{
			{At: 0, Command: CommandVelocity, Value: 0.2},
			{At: 2 * time.Second, Command: CommandVelocity, Value: 0},
		},
	})
	r.Register(Scenario{
		Name:     "drop",
		Duration: 3 * time.Second,
		Steps: []Step{
			{At: 0, Command: CommandPosition, Value: 0.5},
			{At: 2 * time.Second, Command: CommandVoltage, Value: 0},
		},
	})
	return r
}

func (r *Registry) Register(sc Scenario) {
	r.scenarios[sc.Name] = sc
}

func (r *Registry) GetScenario(name string) (Scenario, error) {
	sc, ok := r.scenarios[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario: %s", name)
	}
	return sc, nil
}

func (r *Registry) ListScenarios() []string {
	names := make([]string, 0, len(r.scenarios))
	for name := range r.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics is the scoring set used by run and tune.
func (r *Registry) DefaultMetrics(cfg *config.Config) []metrics.Metric {
	return []metrics.Metric{
		metrics.NewTrackingError(),
		metrics.NewOvershoot(),
		metrics.NewSettlingTime(elevator.Tolerance),
		metrics.NewControlEffort(),
		metrics.NewEnergy(),
		metrics.NewPeakCurrent(),
		metrics.NewPeakTemperature(),
		metrics.NewLimitContact(cfg.Actuator.MinHeight, cfg.Actuator.MaxHeight),
		metrics.NewRinging(),
	}
}
