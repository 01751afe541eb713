package motor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/onsi/gomega"
	"go.einride.tech/can"
	"go.uber.org/zap/zaptest"

	"github.com/san-kum/elevsim/internal/integrators"
	"github.com/san-kum/elevsim/internal/physics"
	"github.com/san-kum/elevsim/internal/units"
)

func newSimulated(t *testing.T, start float64) *Simulated {
	t.Helper()
	dc, err := physics.NewDCMotor(physics.NEO, 1)
	if err != nil {
		t.Fatal(err)
	}
	plant := physics.NewElevator(dc, 15, 5, 0.0254)
	conv, err := units.NewConverter(0.0254, 15)
	if err != nil {
		t.Fatal(err)
	}
	return NewSimulated(physics.NewElevatorSim(plant, 0, 1, start, integrators.NewRK4()), conv)
}

// chanBus is an in-memory CAN transport.
type chanBus struct {
	mu     sync.Mutex
	sent   []can.Frame
	txErr  error
	frames chan can.Frame
	cur    can.Frame
	err    error
}

func newChanBus() *chanBus {
	return &chanBus{frames: make(chan can.Frame, 16)}
}

func (b *chanBus) TransmitFrame(ctx context.Context, f can.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.txErr != nil {
		return b.txErr
	}
	b.sent = append(b.sent, f)
	return nil
}

func (b *chanBus) Receive() bool {
	f, ok := <-b.frames
	b.cur = f
	return ok
}

func (b *chanBus) Frame() can.Frame { return b.cur }
func (b *chanBus) Err() error       { return b.err }

func (b *chanBus) Sent() []can.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]can.Frame(nil), b.sent...)
}

// feed pushes transmitted frames into the receive side.
type feed chan can.Frame

func (f feed) TransmitFrame(ctx context.Context, frame can.Frame) error {
	f <- frame
	return nil
}

func TestSimulatedEncoderFrame(t *testing.T) {
	g := gomega.NewWithT(t)
	m := newSimulated(t, 0.5)

	// 0.5 m on a 0.0254 m drum behind 15:1 is about 47 motor rotations.
	g.Expect(m.Position()).To(gomega.BeNumerically("~", 46.99457, 1e-4))
	g.Expect(m.SetEncoderPosition(0)).To(gomega.Succeed())
	g.Expect(m.Position()).To(gomega.BeNumerically("~", 0, 1e-9))

	g.Expect(m.SetVoltage(context.Background(), 6)).To(gomega.Succeed())
	for i := 0; i < 10; i++ {
		g.Expect(m.Update(0.02)).To(gomega.Succeed())
	}
	conv, _ := units.NewConverter(0.0254, 15)
	plant := m.Plant()
	g.Expect(m.Position()).To(gomega.BeNumerically("~", conv.ToMotorRotations(plant.Position()-0.5), 1e-9))
	g.Expect(m.VelocityRPM()).To(gomega.BeNumerically("~", conv.ToMotorRotations(plant.Velocity())*60, 1e-9))
	g.Expect(m.VelocityRPM()).To(gomega.BeNumerically(">", 0))
}

func TestSimulatedDutyClamp(t *testing.T) {
	g := gomega.NewWithT(t)
	m := newSimulated(t, 0)
	ctx := context.Background()

	g.Expect(m.SetVoltage(ctx, 6)).To(gomega.Succeed())
	g.Expect(m.AppliedOutput()).To(gomega.Equal(0.5))
	g.Expect(AppliedVoltage(m)).To(gomega.Equal(6.0))

	g.Expect(m.SetVoltage(ctx, 40)).To(gomega.Succeed())
	g.Expect(m.AppliedOutput()).To(gomega.Equal(1.0))
	g.Expect(m.SetVoltage(ctx, -40)).To(gomega.Succeed())
	g.Expect(m.AppliedOutput()).To(gomega.Equal(-1.0))
}

func TestSimulatedCurrentLimit(t *testing.T) {
	g := gomega.NewWithT(t)
	ctx := context.Background()

	// Stalled on the lower limit pushing down: full stall current unless limited.
	unlimited := newSimulated(t, 0)
	g.Expect(unlimited.SetVoltage(ctx, -12)).To(gomega.Succeed())
	g.Expect(unlimited.Update(0.02)).To(gomega.Succeed())
	g.Expect(unlimited.OutputCurrent()).To(gomega.BeNumerically("~", 105, 1e-6))

	limited := newSimulated(t, 0)
	g.Expect(limited.Configure(ctx, Settings{CurrentLimitAmps: 40})).To(gomega.Succeed())
	g.Expect(limited.SetVoltage(ctx, -12)).To(gomega.Succeed())
	g.Expect(limited.Update(0.02)).To(gomega.Succeed())
	g.Expect(limited.OutputCurrent()).To(gomega.BeNumerically("~", 40, 1e-6))
}

func TestSimulatedIdleModes(t *testing.T) {
	g := gomega.NewWithT(t)
	ctx := context.Background()

	fall := func(mode IdleMode) float64 {
		m := newSimulated(t, 0.8)
		g.Expect(m.Configure(ctx, Settings{IdleMode: mode})).To(gomega.Succeed())
		for i := 0; i < 10; i++ {
			g.Expect(m.Update(0.02)).To(gomega.Succeed())
		}
		return m.Plant().Position()
	}

	// Brake shorts the windings and holds the fall to a crawl.
	brake, coast := fall(Brake), fall(Coast)
	g.Expect(brake).To(gomega.BeNumerically(">", 0.79))
	g.Expect(coast).To(gomega.BeNumerically("<", brake-0.01))
}

func TestSimulatedHeatsUp(t *testing.T) {
	g := gomega.NewWithT(t)
	m := newSimulated(t, 0)
	g.Expect(m.Temperature()).To(gomega.Equal(DefaultAmbient))

	g.Expect(m.SetVoltage(context.Background(), -6)).To(gomega.Succeed())
	for i := 0; i < 50; i++ {
		g.Expect(m.Update(0.02)).To(gomega.Succeed())
	}
	g.Expect(m.Temperature()).To(gomega.BeNumerically(">", DefaultAmbient+1))
}

func TestSimulatedFaultAndClose(t *testing.T) {
	g := gomega.NewWithT(t)
	m := newSimulated(t, 0)
	ctx := context.Background()

	boom := errors.New("bus off")
	m.SetFault(boom)
	g.Expect(m.Fault()).To(gomega.MatchError(boom))
	g.Expect(m.SetVoltage(ctx, 1)).To(gomega.MatchError(boom))
	m.SetFault(nil)
	g.Expect(m.Fault()).To(gomega.Succeed())

	g.Expect(m.Close()).To(gomega.Succeed())
	g.Expect(m.Fault()).To(gomega.MatchError(ErrClosed))
	g.Expect(m.SetVoltage(ctx, 1)).To(gomega.MatchError(ErrClosed))
}

func TestRecorder(t *testing.T) {
	g := gomega.NewWithT(t)
	sim := newSimulated(t, 0)
	r := NewRecorder(sim)
	ctx := context.Background()

	g.Expect(r.SetVoltage(ctx, 3)).To(gomega.Succeed())
	sim.SetFault(errors.New("nope"))
	g.Expect(r.SetVoltage(ctx, 5)).NotTo(gomega.Succeed())

	g.Expect(r.LastCommand()).To(gomega.Equal(3.0))
	commands, failures := r.Counts()
	g.Expect(commands).To(gomega.Equal(2))
	g.Expect(failures).To(gomega.Equal(1))
	g.Expect(r.AppliedOutput()).To(gomega.Equal(0.25))
}

func TestFrameEncoding(t *testing.T) {
	g := gomega.NewWithT(t)

	v := encodeVoltage(3, -7.5)
	g.Expect(v.ID).To(gomega.Equal(uint32(0x103)))
	g.Expect(v.Length).To(gomega.Equal(uint8(4)))
	g.Expect(decodeFloat32(v)).To(gomega.Equal(-7.5))

	c := encodeConfig(3, Settings{CurrentLimitAmps: 40, IdleMode: Coast})
	g.Expect(c.Data[0]).To(gomega.Equal(byte(40)))
	g.Expect(decodeConfig(c)).To(gomega.Equal(Settings{CurrentLimitAmps: 40, IdleMode: Coast}))

	want := Status{AppliedOutput: -0.5, BusVoltage: 12.34, Current: 3.21, Temperature: 41, Position: 12.5, VelocityRPM: -300}
	s0, s1 := encodeStatus(3, want)
	var got Status
	applyStatus0(&got, s0)
	applyStatus1(&got, s1)
	g.Expect(got.AppliedOutput).To(gomega.BeNumerically("~", -0.5, 1e-4))
	g.Expect(got.BusVoltage).To(gomega.BeNumerically("~", 12.34, 1e-3))
	g.Expect(got.Current).To(gomega.BeNumerically("~", 3.21, 1e-2))
	g.Expect(got.Temperature).To(gomega.Equal(41.0))
	g.Expect(got.Position).To(gomega.Equal(12.5))
	g.Expect(got.VelocityRPM).To(gomega.Equal(-300.0))

	// out of range values saturate rather than wrap
	s0, _ = encodeStatus(3, Status{AppliedOutput: 3, BusVoltage: 100, Temperature: -5})
	applyStatus0(&got, s0)
	g.Expect(got.AppliedOutput).To(gomega.Equal(1.0))
	g.Expect(got.BusVoltage).To(gomega.BeNumerically("~", 65.535, 1e-9))
	g.Expect(got.Temperature).To(gomega.Equal(0.0))
}

func TestCANRejectsDeviceID(t *testing.T) {
	bus := newChanBus()
	for _, id := range []uint8{0, 16, 255} {
		if _, err := NewCAN(bus, bus, CANConfig{DeviceID: id}); err == nil {
			t.Errorf("device id %d accepted", id)
		}
	}
}

func TestCANStatusAndStaleness(t *testing.T) {
	g := gomega.NewWithT(t)
	mock := clock.NewMock()
	bus := newChanBus()

	m, err := NewCAN(bus, bus, CANConfig{DeviceID: 2, StatusTimeout: 50 * time.Millisecond, Clock: mock, Logger: zaptest.NewLogger(t)})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(errors.Is(m.Fault(), ErrStale)).To(gomega.BeTrue())

	s0, s1 := encodeStatus(2, Status{AppliedOutput: 0.25, BusVoltage: 12, Current: 4, Temperature: 30, Position: 10, VelocityRPM: 600})
	other, _ := encodeStatus(7, Status{Position: 99})
	bus.frames <- other
	bus.frames <- s0
	bus.frames <- s1

	g.Eventually(m.Position).Should(gomega.Equal(10.0))
	g.Expect(m.Fault()).To(gomega.Succeed())
	g.Expect(m.VelocityRPM()).To(gomega.Equal(600.0))
	g.Expect(m.BusVoltage()).To(gomega.Equal(12.0))
	g.Expect(m.OutputCurrent()).To(gomega.Equal(4.0))
	g.Expect(m.Temperature()).To(gomega.Equal(30.0))
	g.Expect(AppliedVoltage(m)).To(gomega.BeNumerically("~", 3, 1e-3))

	mock.Add(100 * time.Millisecond)
	g.Expect(errors.Is(m.Fault(), ErrStale)).To(gomega.BeTrue())

	bus.frames <- s0
	g.Eventually(m.Fault).Should(gomega.Succeed())

	close(bus.frames)
	<-m.Done()
	g.Expect(errors.Is(m.Fault(), ErrClosed)).To(gomega.BeTrue())
}

func TestCANReceiveError(t *testing.T) {
	g := gomega.NewWithT(t)
	bus := newChanBus()
	bus.err = errors.New("interface down")

	m, err := NewCAN(bus, bus, CANConfig{DeviceID: 1, Logger: zaptest.NewLogger(t)})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	close(bus.frames)
	<-m.Done()
	g.Expect(m.Fault()).To(gomega.MatchError(gomega.ContainSubstring("interface down")))
}

func TestCANCommands(t *testing.T) {
	g := gomega.NewWithT(t)
	bus := newChanBus()
	ctx := context.Background()

	m, err := NewCAN(bus, bus, CANConfig{DeviceID: 4})
	g.Expect(err).NotTo(gomega.HaveOccurred())

	g.Expect(m.Configure(ctx, Settings{CurrentLimitAmps: 40})).To(gomega.Succeed())
	g.Expect(m.SetVoltage(ctx, 2.5)).To(gomega.Succeed())
	g.Expect(m.SetEncoderPosition(0)).To(gomega.Succeed())

	sent := bus.Sent()
	g.Expect(sent).To(gomega.HaveLen(3))
	g.Expect(sent[0].ID).To(gomega.Equal(uint32(0x114)))
	g.Expect(sent[1].ID).To(gomega.Equal(uint32(0x104)))
	g.Expect(sent[2].ID).To(gomega.Equal(uint32(0x124)))

	bus.mu.Lock()
	bus.txErr = errors.New("no buffer space")
	bus.mu.Unlock()
	g.Expect(m.SetVoltage(ctx, 1)).To(gomega.MatchError(gomega.ContainSubstring("transmit 0x104")))

	g.Expect(m.Close()).To(gomega.Succeed())
	g.Expect(m.SetVoltage(ctx, 1)).To(gomega.MatchError(ErrClosed))
	close(bus.frames)
}

func TestCANLoopbackToSimulated(t *testing.T) {
	g := gomega.NewWithT(t)
	ctx := context.Background()
	device := &Responder{ID: 5, Motor: newSimulated(t, 0.2)}

	bus := newChanBus()
	m, err := NewCAN(bus, bus, CANConfig{DeviceID: 5})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer close(bus.frames)

	g.Expect(m.Configure(ctx, Settings{CurrentLimitAmps: 30, IdleMode: Brake})).To(gomega.Succeed())
	g.Expect(m.SetVoltage(ctx, 3)).To(gomega.Succeed())
	for _, f := range bus.Sent() {
		g.Expect(device.HandleFrame(ctx, f)).To(gomega.Succeed())
	}
	sim := device.Motor.(*Simulated)
	g.Expect(sim.Settings().CurrentLimitAmps).To(gomega.Equal(30.0))
	g.Expect(sim.AppliedOutput()).To(gomega.Equal(0.25))

	g.Expect(sim.Update(0.02)).To(gomega.Succeed())
	g.Expect(device.Publish(ctx, feed(bus.frames))).To(gomega.Succeed())

	want := sim.Position()
	g.Eventually(m.Position).Should(gomega.BeNumerically("~", want, math.Abs(want)*1e-6))
	g.Expect(m.AppliedOutput()).To(gomega.BeNumerically("~", 0.25, 1e-4))
}

func TestResponderServe(t *testing.T) {
	g := gomega.NewWithT(t)
	ctx := context.Background()
	sim := newSimulated(t, 0.2)
	device := &Responder{ID: 3, Motor: sim}

	in := newChanBus()
	in.frames <- encodeVoltage(3, -6)
	in.frames <- encodeVoltage(4, 12)
	in.frames <- encodeConfig(3, Settings{CurrentLimitAmps: 20, IdleMode: Coast})
	close(in.frames)

	g.Expect(device.Serve(ctx, in, nil)).To(gomega.Succeed())
	g.Expect(sim.AppliedOutput()).To(gomega.Equal(-0.5))
	g.Expect(sim.Settings()).To(gomega.Equal(Settings{CurrentLimitAmps: 20, IdleMode: Coast}))

	// A closed motor rejects commands but serving carries on.
	g.Expect(sim.Close()).To(gomega.Succeed())
	in = newChanBus()
	in.err = errors.New("bus down")
	in.frames <- encodeVoltage(3, 1)
	close(in.frames)
	g.Expect(device.Serve(ctx, in, nil)).To(gomega.MatchError("bus down"))
}
