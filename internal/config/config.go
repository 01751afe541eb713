package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/elevsim/internal/integrators"
	"github.com/san-kum/elevsim/internal/physics"
	"github.com/san-kum/elevsim/internal/units"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

const (
	DefaultGearRatio       = 15.0
	DefaultDrumRadius      = 0.0254
	DefaultMinHeight       = 0.0
	DefaultMaxHeight       = 1.0
	DefaultMaxVelocity     = 1.0
	DefaultMaxAcceleration = 1.0
	DefaultKp              = 1.0
	DefaultCurrentLimit    = 40.0
	DefaultDeviceID        = 1
	DefaultMass            = 5.0
	DefaultPeriod          = 20 * time.Millisecond
	DefaultStatusTimeout   = 100 * time.Millisecond
)

type Config struct {
	Actuator Actuator `yaml:"actuator"`
	Plant    Plant    `yaml:"plant"`
	Loop     Loop     `yaml:"loop"`
	CAN      CAN      `yaml:"can"`
}

// Actuator is the controller's view of the mechanism. Limits are linear
// (m, m/s, m/s²); gains are per drum rotation.
type Actuator struct {
	GearRatio       float64 `yaml:"gear_ratio"`
	DrumRadius      float64 `yaml:"drum_radius"`
	MinHeight       float64 `yaml:"min_height"`
	MaxHeight       float64 `yaml:"max_height"`
	MaxVelocity     float64 `yaml:"max_velocity"`
	MaxAcceleration float64 `yaml:"max_acceleration"`

	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
	Ks float64 `yaml:"ks"`
	Kg float64 `yaml:"kg"`
	Kv float64 `yaml:"kv"`
	Ka float64 `yaml:"ka"`

	CurrentLimit float64 `yaml:"current_limit"`
	BrakeMode    bool    `yaml:"brake_mode"`
	DeviceID     uint8   `yaml:"device_id"`
}

// Plant describes the simulated mechanism.
type Plant struct {
	Motor       string  `yaml:"motor"`
	MotorCount  int     `yaml:"motor_count"`
	Mass        float64 `yaml:"mass"`
	Gravity     float64 `yaml:"gravity"`
	StartHeight float64 `yaml:"start_height"`
	Substeps    int     `yaml:"substeps"`
	Integrator  string  `yaml:"integrator"`
}

type Loop struct {
	Period time.Duration `yaml:"period"`
}

type CAN struct {
	Interface     string        `yaml:"interface"`
	StatusTimeout time.Duration `yaml:"status_timeout"`
}

func DefaultConfig() *Config {
	cfg := &Config{
		Actuator: Actuator{
			GearRatio:       DefaultGearRatio,
			DrumRadius:      DefaultDrumRadius,
			MinHeight:       DefaultMinHeight,
			MaxHeight:       DefaultMaxHeight,
			MaxVelocity:     DefaultMaxVelocity,
			MaxAcceleration: DefaultMaxAcceleration,
			Kp:              DefaultKp,
			CurrentLimit:    DefaultCurrentLimit,
			BrakeMode:       true,
			DeviceID:        DefaultDeviceID,
		},
		Plant: Plant{
			Motor:      string(physics.NEO),
			MotorCount: 1,
			Mass:       DefaultMass,
			Gravity:    physics.DefaultGravity,
			Substeps:   physics.DefaultSubsteps,
			Integrator: "rk4",
		},
		Loop: Loop{Period: DefaultPeriod},
		CAN:  CAN{Interface: "can0", StatusTimeout: DefaultStatusTimeout},
	}
	if err := cfg.MatchFeedforward(); err != nil {
		panic(err)
	}
	return cfg
}

// Load overlays the YAML file at path on the defaults and validates it.
func Load(path string) (*Config, error) {
	return LoadOnto(path, DefaultConfig())
}

// LoadOnto overlays the YAML file at path on a copy of base.
func LoadOnto(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := base.Clone()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	errs := c.Actuator.Validate()
	bad := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, invalid(format, args...))
	}

	p := c.Plant
	if !positiveFinite(p.Mass) {
		bad("plant.mass must be positive, got %v", p.Mass)
	}
	if !(p.Gravity >= 0) || math.IsInf(p.Gravity, 0) {
		bad("plant.gravity must be finite and non-negative, got %v", p.Gravity)
	}
	if _, err := physics.NewDCMotor(physics.MotorKind(p.Motor), p.MotorCount); err != nil {
		bad("plant: %v", err)
	}
	if p.StartHeight < c.Actuator.MinHeight || p.StartHeight > c.Actuator.MaxHeight {
		bad("plant.start_height %v outside travel [%v, %v]", p.StartHeight, c.Actuator.MinHeight, c.Actuator.MaxHeight)
	}
	if p.Substeps < 1 {
		bad("plant.substeps must be at least 1, got %d", p.Substeps)
	}
	if _, err := integrators.ByName(p.Integrator); err != nil {
		bad("plant.integrator: %v", err)
	}

	if c.Loop.Period <= 0 {
		bad("loop.period must be positive, got %s", c.Loop.Period)
	}
	if c.CAN.StatusTimeout < 0 {
		bad("can.status_timeout must not be negative, got %s", c.CAN.StatusTimeout)
	}
	return errs
}

// Validate checks the mechanism and gains.
func (a Actuator) Validate() error {
	var errs error
	bad := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, invalid(format, args...))
	}

	positive := map[string]float64{
		"actuator.gear_ratio":       a.GearRatio,
		"actuator.drum_radius":      a.DrumRadius,
		"actuator.max_velocity":     a.MaxVelocity,
		"actuator.max_acceleration": a.MaxAcceleration,
	}
	for _, name := range sortedKeys(positive) {
		if v := positive[name]; !positiveFinite(v) {
			bad("%s must be positive, got %v", name, v)
		}
	}

	gains := map[string]float64{
		"actuator.kp": a.Kp, "actuator.ki": a.Ki, "actuator.kd": a.Kd,
		"actuator.ks": a.Ks, "actuator.kg": a.Kg, "actuator.kv": a.Kv, "actuator.ka": a.Ka,
		"actuator.current_limit": a.CurrentLimit,
	}
	for _, name := range sortedKeys(gains) {
		if v := gains[name]; !(v >= 0) || math.IsInf(v, 0) {
			bad("%s must be finite and non-negative, got %v", name, v)
		}
	}

	if !(a.MinHeight < a.MaxHeight) {
		bad("actuator.min_height %v must be below max_height %v", a.MinHeight, a.MaxHeight)
	}
	if a.DeviceID == 0 || a.DeviceID > 15 {
		bad("actuator.device_id must be 1..15, got %d", a.DeviceID)
	}
	return errs
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrap(ErrInvalid, fmt.Sprintf(format, args...))
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Converter maps between carriage meters and drum rotations.
func (a Actuator) Converter() (units.Converter, error) {
	return units.NewConverter(a.DrumRadius, a.GearRatio)
}

// NewElevator builds the plant model.
func (c *Config) NewElevator() (*physics.Elevator, error) {
	dc, err := physics.NewDCMotor(physics.MotorKind(c.Plant.Motor), c.Plant.MotorCount)
	if err != nil {
		return nil, err
	}
	e := physics.NewElevator(dc, c.Actuator.GearRatio, c.Plant.Mass, c.Actuator.DrumRadius)
	e.Gravity = c.Plant.Gravity
	return e, nil
}

// NewElevatorSim builds the plant and its simulator.
func (c *Config) NewElevatorSim() (*physics.ElevatorSim, error) {
	plant, err := c.NewElevator()
	if err != nil {
		return nil, err
	}
	integ, err := integrators.ByName(c.Plant.Integrator)
	if err != nil {
		return nil, err
	}
	sim := physics.NewElevatorSim(plant, c.Actuator.MinHeight, c.Actuator.MaxHeight, c.Plant.StartHeight, integ)
	sim.Substeps = c.Plant.Substeps
	return sim, nil
}

// MatchFeedforward sets kG, kV and kA from the plant model, so the
// feedforward alone holds the carriage, cancels back-EMF and supplies the
// profiled acceleration.
func (c *Config) MatchFeedforward() error {
	plant, err := c.NewElevator()
	if err != nil {
		return err
	}
	// meters per drum rotation
	circumference := 2 * math.Pi * c.Actuator.DrumRadius
	c.Actuator.Kg = plant.GravityVolts()
	c.Actuator.Kv = plant.VoltsPerMeterPerSecond() * circumference
	c.Actuator.Ka = plant.VoltsPerMeterPerSecondSquared() * circumference
	return nil
}
