package config

import (
	"sort"

	"github.com/san-kum/elevsim/internal/physics"
)

var Presets = map[string]*Config{
	"default": DefaultConfig(),
	"heavy": matched(func(c *Config) {
		c.Plant.Mass = 12
		c.Plant.MotorCount = 2
		c.Actuator.GearRatio = 20
		c.Actuator.MaxAcceleration = 0.75
	}),
	"kraken": matched(func(c *Config) {
		c.Plant.Motor = string(physics.KrakenX60)
		c.Actuator.GearRatio = 12
		c.Actuator.MaxVelocity = 1.5
		c.Actuator.MaxAcceleration = 3
		c.Actuator.CurrentLimit = 60
	}),
	"no-gravity": matched(func(c *Config) {
		c.Plant.Gravity = 0
	}),
}

func matched(edit func(*Config)) *Config {
	cfg := DefaultConfig()
	edit(cfg)
	if err := cfg.MatchFeedforward(); err != nil {
		panic(err)
	}
	return cfg
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
