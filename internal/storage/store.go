// Package storage keeps experiment runs on disk: a YAML metadata file and
// a CSV of per-tick telemetry per run directory.
package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/elevsim/internal/config"
	"github.com/san-kum/elevsim/internal/experiment"
	"github.com/san-kum/elevsim/internal/metrics"
)

const (
	metadataFile  = "run.yaml"
	telemetryFile = "telemetry.csv"
)

var telemetryHeader = []string{
	"time", "height", "velocity", "mode", "target", "has_target",
	"setpoint", "command", "applied", "current", "temperature",
}

type Store struct {
	baseDir string
	clock   clock.Clock
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, clock: clock.New()}
}

// WithClock sets the clock used to stamp runs.
func (s *Store) WithClock(c clock.Clock) *Store {
	s.clock = c
	return s
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunMetadata describes a stored run. Metrics may hold +Inf, which YAML
// represents and JSON would not.
type RunMetadata struct {
	ID        string             `yaml:"id"`
	Scenario  string             `yaml:"scenario"`
	Preset    string             `yaml:"preset,omitempty"`
	Timestamp time.Time          `yaml:"timestamp"`
	Samples   int                `yaml:"samples"`
	Config    *config.Config     `yaml:"config"`
	Metrics   map[string]float64 `yaml:"metrics"`
}

// Save writes result under a new run directory and returns its ID.
func (s *Store) Save(preset string, cfg *config.Config, result *experiment.Result) (string, error) {
	now := s.clock.Now()
	runID := fmt.Sprintf("%s_%d", result.Scenario, now.Unix())
	for i := 1; s.exists(runID); i++ {
		runID = fmt.Sprintf("%s_%d_%d", result.Scenario, now.Unix(), i)
	}
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Scenario:  result.Scenario,
		Preset:    preset,
		Timestamp: now,
		Samples:   len(result.Samples),
		Config:    cfg,
		Metrics:   result.Metrics,
	}
	data, err := yaml.Marshal(&meta)
	if err != nil {
		return "", errors.Wrap(err, "encode metadata")
	}
	if err := os.WriteFile(filepath.Join(runDir, metadataFile), data, 0644); err != nil {
		return "", err
	}

	if err := writeTelemetry(filepath.Join(runDir, telemetryFile), result.Samples); err != nil {
		return "", errors.Wrapf(err, "write %s", runID)
	}
	return runID, nil
}

func (s *Store) exists(runID string) bool {
	_, err := os.Stat(filepath.Join(s.baseDir, runID))
	return err == nil
}

func writeTelemetry(path string, samples []metrics.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(telemetryHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			formatFloat(s.Time), formatFloat(s.Height), formatFloat(s.Velocity),
			s.Mode, formatFloat(s.Target), strconv.FormatBool(s.HasTarget),
			formatFloat(s.Setpoint), formatFloat(s.Command), formatFloat(s.Applied),
			formatFloat(s.Current), formatFloat(s.Temperature),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "parse %s metadata", runID)
	}
	return &meta, nil
}

// TelemetryPath is where a run's CSV lives.
func (s *Store) TelemetryPath(runID string) string {
	return filepath.Join(s.baseDir, runID, telemetryFile)
}

// LoadSamples reads a run's telemetry back.
func (s *Store) LoadSamples(runID string) ([]metrics.Sample, error) {
	file, err := os.Open(s.TelemetryPath(runID))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(telemetryHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read %s telemetry", runID)
	}
	if len(records) < 2 {
		return []metrics.Sample{}, nil
	}

	samples := make([]metrics.Sample, 0, len(records)-1)
	for i, record := range records[1:] {
		var (
			s    metrics.Sample
			perr error
		)
		parse := func(field string) float64 {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil && perr == nil {
				perr = err
			}
			return v
		}
		s.Time = parse(record[0])
		s.Height = parse(record[1])
		s.Velocity = parse(record[2])
		s.Mode = record[3]
		s.Target = parse(record[4])
		s.HasTarget, err = strconv.ParseBool(record[5])
		if err != nil && perr == nil {
			perr = err
		}
		s.Setpoint = parse(record[6])
		s.Command = parse(record[7])
		s.Applied = parse(record[8])
		s.Current = parse(record[9])
		s.Temperature = parse(record[10])
		if perr != nil {
			return nil, errors.Wrapf(perr, "%s telemetry row %d", runID, i+1)
		}
		samples = append(samples, s)
	}
	return samples, nil
}
