package metrics

// LimitContact is the fraction of samples spent on or past either travel
// limit.
type LimitContact struct {
	name     string
	min, max float64
	contacts int
	samples  int
}

func NewLimitContact(minHeight, maxHeight float64) *LimitContact {
	return &LimitContact{
		name: "limit_contact",
		min:  minHeight,
		max:  maxHeight,
	}
}

func (l *LimitContact) Name() string {
	return l.name
}

func (l *LimitContact) Observe(s Sample) {
	l.samples++
	if s.Height <= l.min || s.Height >= l.max {
		l.contacts++
	}
}

func (l *LimitContact) Value() float64 {
	if l.samples == 0 {
		return 0
	}
	return float64(l.contacts) / float64(l.samples)
}

func (l *LimitContact) Reset() {
	l.contacts = 0
	l.samples = 0
}
