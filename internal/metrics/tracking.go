package metrics

import "math"

// TrackingError is the RMS distance to the position target over the
// samples that had one.
type TrackingError struct {
	sumSq   float64
	samples int
}

func NewTrackingError() *TrackingError { return &TrackingError{} }

func (e *TrackingError) Name() string { return "tracking_rms" }

func (e *TrackingError) Observe(s Sample) {
	if !s.HasTarget {
		return
	}
	d := s.Target - s.Height
	e.sumSq += d * d
	e.samples++
}

func (e *TrackingError) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return math.Sqrt(e.sumSq / float64(e.samples))
}

func (e *TrackingError) Reset() {
	e.sumSq = 0
	e.samples = 0
}

// Overshoot is the furthest the carriage went past a position target,
// measured in the direction of travel. A new target restarts the
// direction from the height at which it was first seen; the worst
// overshoot across targets is kept.
type Overshoot struct {
	target    float64
	direction float64
	active    bool
	worst     float64
}

func NewOvershoot() *Overshoot { return &Overshoot{} }

func (o *Overshoot) Name() string { return "overshoot" }

func (o *Overshoot) Observe(s Sample) {
	if !s.HasTarget {
		o.active = false
		return
	}
	if !o.active || s.Target != o.target {
		o.target = s.Target
		o.direction = sign(s.Target - s.Height)
		o.active = true
	}
	if o.direction == 0 {
		return
	}
	if past := (s.Height - o.target) * o.direction; past > o.worst {
		o.worst = past
	}
}

func (o *Overshoot) Value() float64 { return o.worst }

func (o *Overshoot) Reset() { *o = Overshoot{} }

// SettlingTime is the time of the last sample outside the tolerance band
// around the final position target, relative to when that target was set.
// A run that ends outside the band reports +Inf.
type SettlingTime struct {
	Tolerance float64

	target     float64
	active     bool
	start      float64
	lastOut    float64
	endsInBand bool
}

func NewSettlingTime(tolerance float64) *SettlingTime {
	return &SettlingTime{Tolerance: tolerance}
}

func (st *SettlingTime) Name() string { return "settling_time" }

func (st *SettlingTime) Observe(s Sample) {
	if !s.HasTarget {
		st.active = false
		st.endsInBand = false
		return
	}
	if !st.active || s.Target != st.target {
		st.target = s.Target
		st.start = s.Time
		st.lastOut = s.Time
		st.active = true
	}
	st.endsInBand = math.Abs(s.Target-s.Height) <= st.Tolerance
	if !st.endsInBand {
		st.lastOut = s.Time
	}
}

func (st *SettlingTime) Value() float64 {
	if !st.active || !st.endsInBand {
		return math.Inf(1)
	}
	return st.lastOut - st.start
}

func (st *SettlingTime) Reset() {
	*st = SettlingTime{Tolerance: st.Tolerance}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
