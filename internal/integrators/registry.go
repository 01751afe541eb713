package integrators

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/elevsim/internal/dynamo"
)

var registry = map[string]func() dynamo.Integrator{
	"euler":         func() dynamo.Integrator { return NewEuler() },
	"semi_implicit": func() dynamo.Integrator { return NewSemiImplicitEuler() },
	"rk4":           func() dynamo.Integrator { return NewRK4() },
}

// ByName returns a fresh integrator for the given name.
func ByName(name string) (dynamo.Integrator, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
