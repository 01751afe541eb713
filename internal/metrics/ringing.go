package metrics

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// MinRingingAmplitude is the smallest oscillation, in meters, that
// Ringing reports.
const MinRingingAmplitude = 1e-4

// Ringing is the dominant frequency, in Hz, of the gap between the
// profiled setpoint and the carriage over position-mode samples. It is
// zero when there is no oscillation above MinRingingAmplitude.
type Ringing struct {
	errs   []float64
	t0, t1 float64
}

func NewRinging() *Ringing { return &Ringing{} }

func (r *Ringing) Name() string { return "ringing_hz" }

func (r *Ringing) Observe(s Sample) {
	if !s.HasTarget {
		return
	}
	if len(r.errs) == 0 {
		r.t0 = s.Time
	}
	r.t1 = s.Time
	r.errs = append(r.errs, s.Setpoint-s.Height)
}

func (r *Ringing) Value() float64 {
	n := len(r.errs)
	if n < 8 || r.t1 <= r.t0 {
		return 0
	}
	dt := (r.t1 - r.t0) / float64(n-1)

	var mean float64
	for _, e := range r.errs {
		mean += e
	}
	mean /= float64(n)
	x := make([]float64, n)
	for i, e := range r.errs {
		x[i] = e - mean
	}

	spectrum := fft.FFTReal(x)
	peak, bin := 0.0, 0
	for k := 1; k <= n/2; k++ {
		if m := cmplx.Abs(spectrum[k]); m > peak {
			peak, bin = m, k
		}
	}
	if 2*peak/float64(n) < MinRingingAmplitude {
		return 0
	}
	return float64(bin) / (float64(n) * dt)
}

func (r *Ringing) Reset() {
	r.errs = r.errs[:0]
	r.t0, r.t1 = 0, 0
}
