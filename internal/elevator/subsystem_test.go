package elevator_test

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/elevsim/internal/config"
	"github.com/san-kum/elevsim/internal/control"
	"github.com/san-kum/elevsim/internal/elevator"
	"github.com/san-kum/elevsim/internal/host"
	"github.com/san-kum/elevsim/internal/logging"
	"github.com/san-kum/elevsim/internal/motor"
	"github.com/san-kum/elevsim/internal/profile"
)

const period = 20 * time.Millisecond

type rig struct {
	cfg  *config.Config
	sim  *motor.Simulated
	rec  *motor.Recorder
	sub  *elevator.Subsystem
	loop *host.Loop
	logs *observer.ObservedLogs
	mock *clock.Mock
}

func newRig(edit func(*config.Config)) *rig {
	cfg := config.DefaultConfig()
	if edit != nil {
		edit(cfg)
	}
	Expect(cfg.Validate()).To(Succeed())

	plant, err := cfg.NewElevatorSim()
	Expect(err).NotTo(HaveOccurred())
	conv, err := cfg.Actuator.Converter()
	Expect(err).NotTo(HaveOccurred())

	r := &rig{cfg: cfg, mock: clock.NewMock()}
	r.sim = motor.NewSimulated(plant, conv)
	r.rec = motor.NewRecorder(r.sim)

	logger, logs := logging.NewObservedTestLogger(GinkgoT())
	r.logs = logs

	r.sub, err = elevator.New(context.Background(), cfg.Actuator, r.rec, logger,
		elevator.WithPeriod(period),
		elevator.WithClock(r.mock),
		elevator.WithInitialHeight(cfg.Plant.StartHeight))
	Expect(err).NotTo(HaveOccurred())

	r.loop = host.NewLoop(period, r.mock, logger, r.sub, host.SimulationPeriodic(r.sim, period))
	return r
}

// run steps the loop n times and returns the plant height after each.
func (r *rig) run(n int) []float64 {
	heights := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		Expect(r.loop.Step(context.Background())).To(Succeed())
		heights = append(heights, r.sim.Plant().Position())
	}
	return heights
}

var _ = Describe("Subsystem", func() {
	var r *rig

	BeforeEach(func() {
		r = newRig(nil)
	})

	Describe("construction", func() {
		It("starts in open loop at zero volts", func() {
			Expect(r.sub.Mode()).To(Equal(control.OpenLoop{}))
			Expect(r.sub.Height()).To(BeNumerically("~", 0, 1e-12))
			Expect(r.sim.Settings()).To(Equal(motor.Settings{CurrentLimitAmps: 40, IdleMode: motor.Brake}))
		})

		It("rejects an invalid actuator config", func() {
			cfg := config.DefaultConfig()
			cfg.Actuator.DrumRadius = 0
			_, err := elevator.New(context.Background(), cfg.Actuator, r.sim, nil)
			Expect(errors.Is(err, config.ErrInvalid)).To(BeTrue())
		})

		It("reports a device that cannot be configured as a hardware error", func() {
			Expect(r.sim.Close()).To(Succeed())
			_, err := elevator.New(context.Background(), r.cfg.Actuator, r.sim, nil)
			Expect(errors.Is(err, elevator.ErrHardware)).To(BeTrue())
			Expect(errors.Is(err, motor.ErrClosed)).To(BeTrue())
		})
	})

	Describe("moving half a meter", func() {
		It("converges within two centimeters and stays in position mode", func() {
			r.sub.SetPosition(0.5)
			heights := r.run(300)

			circumference := 2 * math.Pi * r.cfg.Actuator.DrumRadius
			Expect(r.sub.Position() * circumference).To(BeNumerically("~", 0.5, elevator.Tolerance))
			for _, h := range heights {
				Expect(h).To(BeNumerically("<=", 0.5+elevator.Tolerance))
			}
			for _, h := range heights[150:] {
				Expect(h).To(BeNumerically("~", 0.5, elevator.Tolerance))
			}
			Expect(r.sub.Mode()).To(Equal(control.Position{Rotations: r.sub.Converter().ToRotations(0.5)}))
		})

		It("keeps the profile within its limits", func() {
			limits := r.sub.Constraints()
			dt := period.Seconds()

			r.sub.SetPosition(0.5)
			prev := profile.State{}
			for i := 0; i < 200; i++ {
				r.run(1)
				sp := r.sub.Setpoint()
				Expect(math.Abs(sp.Velocity)).To(BeNumerically("<=", limits.MaxVelocity+1e-9))
				Expect(math.Abs(sp.Velocity - prev.Velocity)).To(BeNumerically("<=", limits.MaxAcceleration*dt+1e-9))
				prev = sp
			}
		})

		It("continues the profile when re-targeted mid-move", func() {
			r.sub.SetPosition(0.5)
			r.run(30)
			before := r.sub.Setpoint()
			Expect(before.Velocity).To(BeNumerically(">", 0))

			r.sub.SetPosition(0.8)
			r.run(1)
			after := r.sub.Setpoint()
			step := r.sub.Constraints().MaxAcceleration * period.Seconds()
			Expect(after.Velocity).To(BeNumerically("~", before.Velocity, step+1e-9))
			Expect(after.Position).To(BeNumerically(">", before.Position))

			r.run(300)
			Expect(r.sub.Height()).To(BeNumerically("~", 0.8, elevator.Tolerance))
		})

		It("brakes within its limits when the new target is inside the stopping distance", func() {
			r.sub.SetPosition(0.9)
			r.run(50)
			prev := r.sub.Setpoint()
			Expect(prev.Velocity).To(BeNumerically(">", 0))

			target := r.sub.Height() + 0.05
			step := r.sub.Constraints().MaxAcceleration*period.Seconds() + 1e-9
			r.sub.SetPosition(target)
			for i := 0; i < 300; i++ {
				r.run(1)
				sp := r.sub.Setpoint()
				Expect(math.Abs(sp.Velocity-prev.Velocity)).To(BeNumerically("<=", step), "tick %d", i)
				if i == 0 {
					Expect(sp.Position).To(BeNumerically(">", prev.Position))
				}
				prev = sp
			}
			Expect(r.sub.Height()).To(BeNumerically("~", target, elevator.Tolerance))
		})
	})

	Describe("modes", func() {
		It("activates exactly the mode of the last setter", func() {
			conv := r.sub.Converter()

			r.sub.SetPosition(0.3)
			Expect(r.sub.Mode()).To(Equal(control.Position{Rotations: conv.ToRotations(0.3)}))
			r.sub.SetVelocity(0.1)
			Expect(r.sub.Mode()).To(Equal(control.Velocity{RotationsPerSecond: conv.ToRotationsPerSecond(0.1)}))
			r.sub.SetVoltage(2)
			Expect(r.sub.Mode()).To(Equal(control.OpenLoop{Volts: 2}))
			r.sub.SetPosition(0.4)
			Expect(r.sub.Mode()).To(BeAssignableToTypeOf(control.Position{}))
		})

		It("forwards open-loop voltage unmodified", func() {
			r.sub.SetPosition(0.5)
			r.run(10)

			r.sub.SetVoltage(3.5)
			r.run(1)
			Expect(r.sub.Command()).To(Equal(3.5))
			Expect(r.rec.LastCommand()).To(Equal(3.5))
			Expect(motor.AppliedVoltage(r.sim)).To(BeNumerically("~", 3.5, 1e-12))
		})

		It("holds a commanded velocity", func() {
			r.sub.SetVelocity(0.2)
			r.run(75)
			mps := r.sub.Converter().ToMetersPerSecond(r.sub.Velocity())
			Expect(mps).To(BeNumerically("~", 0.2, 0.005))
			Expect(r.sub.Height()).To(BeNumerically(">", 0.25))

			r.sub.Stop()
			Expect(r.sub.Mode()).To(Equal(control.Velocity{}))
			r.run(50)
			Expect(r.sub.Converter().ToMetersPerSecond(r.sub.Velocity())).To(BeNumerically("~", 0, 0.005))
		})

		It("does not clamp targets outside travel but warns", func() {
			r.sub.SetPosition(1.4)
			Expect(r.sub.Mode()).To(Equal(control.Position{Rotations: r.sub.Converter().ToRotations(1.4)}))

			warns := r.logs.FilterMessage("position target outside travel").FilterLevelExact(zapcore.WarnLevel)
			Expect(warns.Len()).To(Equal(1))

			r.run(200)
			Expect(r.sim.Plant().HasHitUpperLimit()).To(BeTrue())
			Expect(r.sub.Height()).To(BeNumerically("~", 1.0, 1e-9))
		})
	})

	Describe("acceleration override", func() {
		It("applies only positive overrides", func() {
			conv := r.sub.Converter()
			base := r.sub.Constraints()

			r.sub.SetPosition(0.5, 2)
			Expect(r.sub.Constraints()).To(Equal(profile.Constraints{
				MaxVelocity:     base.MaxVelocity,
				MaxAcceleration: conv.ToRotationsPerSecond(2),
			}))

			r.sub.SetPosition(0.5)
			Expect(r.sub.Constraints().MaxAcceleration).To(Equal(conv.ToRotationsPerSecond(2)))
			r.sub.SetPosition(0.5, 0)
			Expect(r.sub.Constraints().MaxAcceleration).To(Equal(conv.ToRotationsPerSecond(2)))
			r.sub.SetVelocity(0.1, -1)
			Expect(r.sub.Constraints().MaxAcceleration).To(Equal(conv.ToRotationsPerSecond(2)))

			r.sub.SetVelocity(0.1, 0.5)
			Expect(r.sub.Constraints().MaxAcceleration).To(Equal(conv.ToRotationsPerSecond(0.5)))
		})

		It("bounds the next profile tick by the new acceleration", func() {
			r.sub.SetPosition(0.5, 2)
			r.run(1)
			want := r.sub.Converter().ToRotationsPerSecond(2) * period.Seconds()
			Expect(r.sub.Setpoint().Velocity).To(BeNumerically("~", want, 1e-9))
		})

		It("swaps the limit and the mode together while the loop runs", func() {
			conv := r.sub.Converter()
			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 200; i++ {
					r.sub.SetPosition(0.4, 2)
					r.sub.SetVelocity(0.1, 0.5)
				}
			}()
			for i := 0; i < 200; i++ {
				Expect(r.loop.Step(context.Background())).To(Succeed())
			}
			<-done

			Expect(r.sub.Mode()).To(Equal(control.Velocity{RotationsPerSecond: conv.ToRotationsPerSecond(0.1)}))
			Expect(r.sub.Constraints().MaxAcceleration).To(Equal(conv.ToRotationsPerSecond(0.5)))
		})
	})

	Describe("hardware errors", func() {
		It("propagates a fault and commands nothing", func() {
			boom := errors.New("bus off")
			r.sub.SetVoltage(2)
			r.run(1)
			commands, _ := r.rec.Counts()

			r.sim.SetFault(boom)
			err := r.sub.Tick(context.Background())
			Expect(errors.Is(err, elevator.ErrHardware)).To(BeTrue())
			Expect(errors.Is(err, boom)).To(BeTrue())
			after, _ := r.rec.Counts()
			Expect(after).To(Equal(commands))

			// the host keeps running the simulation and counts the failure
			Expect(r.loop.Step(context.Background())).To(MatchError(elevator.ErrHardware))
			Expect(r.loop.Stats().Errors).To(Equal(int64(1)))

			r.sim.SetFault(nil)
			Expect(r.sub.Tick(context.Background())).To(Succeed())
		})
	})

	Describe("commands", func() {
		// drive steps the loop and the mock clock until done reports.
		drive := func(done <-chan error, maxTicks int) error {
			for i := 0; i < maxTicks; i++ {
				Expect(r.loop.Step(context.Background())).To(Succeed())
				r.mock.Add(period)
				select {
				case err := <-done:
					return err
				default:
				}
			}
			Fail("command did not finish")
			return nil
		}

		It("MoveToHeight finishes within tolerance", func() {
			done := make(chan error, 1)
			go func() { done <- r.sub.MoveToHeight(context.Background(), 0.3) }()

			Expect(drive(done, 500)).To(Succeed())
			Expect(r.sub.Height()).To(BeNumerically("~", 0.3, elevator.Tolerance))
		})

		It("MoveToHeight blocks on an unreachable target until cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- r.sub.MoveToHeight(ctx, 1.5) }()

			for i := 0; i < 200; i++ {
				Expect(r.loop.Step(context.Background())).To(Succeed())
				r.mock.Add(period)
			}
			Consistently(done).ShouldNot(Receive())

			cancel()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
		})

		It("Hold keeps the current height", func() {
			r.sub.SetHeight(0.4)
			r.run(150)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- r.sub.Hold(ctx) }()
			Eventually(r.sub.Mode).Should(BeAssignableToTypeOf(control.Position{}))

			for i := 0; i < 100; i++ {
				Expect(r.loop.Step(context.Background())).To(Succeed())
				r.mock.Add(period)
			}
			Expect(r.sub.Height()).To(BeNumerically("~", 0.4, elevator.Tolerance))

			cancel()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
		})

		It("RunAtVelocity keeps asserting velocity mode", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- r.sub.RunAtVelocity(ctx, 0.1) }()

			Eventually(r.sub.Mode).Should(BeAssignableToTypeOf(control.Velocity{}))
			for i := 0; i < 50; i++ {
				Expect(r.loop.Step(context.Background())).To(Succeed())
				r.mock.Add(period)
			}
			Expect(r.sub.Height()).To(BeNumerically(">", 0.05))

			cancel()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
		})
	})

	It("stops and releases the motor on Close", func() {
		r.sub.SetVoltage(4)
		r.run(1)
		Expect(r.sub.Close(context.Background())).To(Succeed())
		Expect(r.sim.AppliedOutput()).To(Equal(0.0))
		Expect(errors.Is(r.sub.Tick(context.Background()), motor.ErrClosed)).To(BeTrue())
	})
})
