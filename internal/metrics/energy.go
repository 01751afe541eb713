package metrics

import "math"

// Energy integrates the electrical power |V·I| drawn by the motor, in
// joules. The first sample only sets the time base.
type Energy struct {
	name    string
	total   float64
	lastT   float64
	samples int
}

func NewEnergy() *Energy {
	return &Energy{
		name: "energy",
	}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(s Sample) {
	if e.samples > 0 {
		dt := s.Time - e.lastT
		if dt > 0 {
			e.total += math.Abs(s.Applied*s.Current) * dt
		}
	}
	e.lastT = s.Time
	e.samples++
}

func (e *Energy) Value() float64 {
	return e.total
}

func (e *Energy) Reset() {
	e.total = 0
	e.lastT = 0
	e.samples = 0
}

// PeakTemperature is the hottest the motor got, in °C.
type PeakTemperature struct {
	peak float64
	seen bool
}

func NewPeakTemperature() *PeakTemperature { return &PeakTemperature{} }

func (p *PeakTemperature) Name() string { return "peak_temperature" }

func (p *PeakTemperature) Observe(s Sample) {
	if !p.seen || s.Temperature > p.peak {
		p.peak = s.Temperature
	}
	p.seen = true
}

func (p *PeakTemperature) Value() float64 { return p.peak }

func (p *PeakTemperature) Reset() {
	p.peak = 0
	p.seen = false
}
