package metrics

import "math"

// ControlEffort is the mean absolute commanded voltage.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(s Sample) {
	c.sum += math.Abs(s.Command)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// PeakCurrent is the largest stator current seen, in amps.
type PeakCurrent struct {
	peak float64
}

func NewPeakCurrent() *PeakCurrent { return &PeakCurrent{} }

func (p *PeakCurrent) Name() string { return "peak_current" }

func (p *PeakCurrent) Observe(s Sample) {
	p.peak = math.Max(p.peak, math.Abs(s.Current))
}

func (p *PeakCurrent) Value() float64 { return p.peak }

func (p *PeakCurrent) Reset() { p.peak = 0 }
