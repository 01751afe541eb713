package optim

import (
	"github.com/pkg/errors"

	"github.com/san-kum/elevsim/internal/config"
)

var tunable = map[string]func(a *config.Actuator) *float64{
	"kp":               func(a *config.Actuator) *float64 { return &a.Kp },
	"ki":               func(a *config.Actuator) *float64 { return &a.Ki },
	"kd":               func(a *config.Actuator) *float64 { return &a.Kd },
	"ks":               func(a *config.Actuator) *float64 { return &a.Ks },
	"kg":               func(a *config.Actuator) *float64 { return &a.Kg },
	"kv":               func(a *config.Actuator) *float64 { return &a.Kv },
	"ka":               func(a *config.Actuator) *float64 { return &a.Ka },
	"max_velocity":     func(a *config.Actuator) *float64 { return &a.MaxVelocity },
	"max_acceleration": func(a *config.Actuator) *float64 { return &a.MaxAcceleration },
}

// Apply returns a copy of base with the named actuator fields replaced.
func Apply(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := base.Clone()
	for name, v := range params {
		field, ok := tunable[name]
		if !ok {
			return nil, errors.Wrapf(config.ErrInvalid, "unknown parameter %q", name)
		}
		*field(&cfg.Actuator) = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
