// Package metrics scores a closed-loop run from its per-tick samples.
package metrics

// Sample is one control period as seen from outside the subsystem.
type Sample struct {
	Time        float64 `json:"time"`
	Height      float64 `json:"height"`
	Velocity    float64 `json:"velocity"`
	Mode        string  `json:"mode"`
	Target      float64 `json:"target"`
	HasTarget   bool    `json:"has_target"`
	Setpoint    float64 `json:"setpoint"`
	Command     float64 `json:"command"`
	Applied     float64 `json:"applied"`
	Current     float64 `json:"current"`
	Temperature float64 `json:"temperature"`
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

// Evaluate feeds samples through every metric, resetting each first.
func Evaluate(samples []Sample, ms ...Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		m.Reset()
		for _, s := range samples {
			m.Observe(s)
		}
		out[m.Name()] = m.Value()
	}
	return out
}
