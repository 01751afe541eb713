package experiment

import (
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/elevsim/internal/config"
)

// Command names accepted in a scenario step.
const (
	CommandPosition = "position"
	CommandVelocity = "velocity"
	CommandVoltage  = "voltage"
)

// Step issues one command at a point in simulated time. Value is meters,
// meters per second or volts depending on Command. A positive Accel
// overrides the acceleration limit for this and later moves.
type Step struct {
	At      time.Duration `yaml:"at"`
	Command string        `yaml:"command"`
	Value   float64       `yaml:"value"`
	Accel   float64       `yaml:"accel,omitempty"`
}

// Scenario is a scripted run against the simulated elevator.
type Scenario struct {
	Name     string        `yaml:"name"`
	Duration time.Duration `yaml:"duration"`
	Steps    []Step        `yaml:"steps"`
}

func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, errors.Wrap(err, "read scenario")
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, errors.Wrap(err, "parse scenario")
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

func (sc Scenario) Validate() error {
	var err error
	if sc.Duration <= 0 {
		err = multierr.Append(err, errors.Wrapf(config.ErrInvalid, "scenario %q: duration must be positive", sc.Name))
	}
	for i, st := range sc.Steps {
		switch st.Command {
		case CommandPosition, CommandVelocity, CommandVoltage:
		default:
			err = multierr.Append(err, errors.Wrapf(config.ErrInvalid, "scenario %q step %d: unknown command %q", sc.Name, i, st.Command))
		}
		if st.At < 0 || st.At > sc.Duration {
			err = multierr.Append(err, errors.Wrapf(config.ErrInvalid, "scenario %q step %d: at %s outside run", sc.Name, i, st.At))
		}
	}
	return err
}

// sortedSteps returns the steps ordered by time; ties keep file order.
func (sc Scenario) sortedSteps() []Step {
	steps := append([]Step(nil), sc.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].At < steps[j].At })
	return steps
}
