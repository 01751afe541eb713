package elevator

import (
	"context"
	"math"
)

// Tolerance is how close MoveToHeight must get, in meters.
const Tolerance = 0.02

// SetHeight commands a position once and returns.
func (s *Subsystem) SetHeight(meters float64) {
	s.SetPosition(meters)
}

// MoveToHeight re-asserts the target every period until the carriage is
// within Tolerance. It only returns early when ctx is done; an unreachable
// target blocks until then.
func (s *Subsystem) MoveToHeight(ctx context.Context, meters float64) error {
	return s.poll(ctx, func() bool {
		s.SetPosition(meters)
		return math.Abs(meters-s.Height()) < Tolerance
	})
}

// Hold keeps the current height until ctx is done.
func (s *Subsystem) Hold(ctx context.Context) error {
	h := s.Height()
	return s.poll(ctx, func() bool {
		s.SetPosition(h)
		return false
	})
}

// RunAtVelocity holds mps until ctx is done.
func (s *Subsystem) RunAtVelocity(ctx context.Context, mps float64) error {
	return s.poll(ctx, func() bool {
		s.SetVelocity(mps)
		return false
	})
}

// Stop commands zero velocity.
func (s *Subsystem) Stop() {
	s.SetVelocity(0)
}

func (s *Subsystem) poll(ctx context.Context, step func() (done bool)) error {
	ticker := s.clock.Ticker(s.period)
	defer ticker.Stop()

	for {
		if step() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
