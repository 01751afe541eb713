package motor

import (
	"context"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const DefaultStatusTimeout = 100 * time.Millisecond

// FrameTransmitter sends frames; *socketcan.Transmitter satisfies it.
type FrameTransmitter interface {
	TransmitFrame(ctx context.Context, frame can.Frame) error
}

// FrameReceiver is the iterator shape of *socketcan.Receiver.
type FrameReceiver interface {
	Receive() bool
	Frame() can.Frame
	Err() error
}

type CANConfig struct {
	DeviceID      uint8
	StatusTimeout time.Duration
	Clock         clock.Clock
	Logger        *zap.Logger
}

// CAN drives a smart motor controller over a CAN bus. Status frames are
// read in the background and cached; getters never block on the bus.
type CAN struct {
	id      uint8
	timeout time.Duration
	clock   clock.Clock
	logger  *zap.Logger

	tx     FrameTransmitter
	rx     FrameReceiver
	closer func() error

	status   *atomic.Pointer[Status]
	lastSeen *atomic.Time
	recvErr  *atomic.Error
	closed   *atomic.Bool
	done     chan struct{}
}

// DialCAN opens a SocketCAN interface such as "can0" or "vcan0".
func DialCAN(ctx context.Context, iface string, cfg CANConfig) (*CAN, error) {
	if err := validateDeviceID(cfg.DeviceID); err != nil {
		return nil, err
	}
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, errors.Wrapf(err, "socketcan dial %s", iface)
	}
	return newCAN(socketcan.NewTransmitter(conn), socketcan.NewReceiver(conn), conn, cfg), nil
}

// NewCAN runs the driver over an existing transport.
func NewCAN(tx FrameTransmitter, rx FrameReceiver, cfg CANConfig) (*CAN, error) {
	if err := validateDeviceID(cfg.DeviceID); err != nil {
		return nil, err
	}
	return newCAN(tx, rx, nil, cfg), nil
}

func newCAN(tx FrameTransmitter, rx FrameReceiver, conn net.Conn, cfg CANConfig) *CAN {
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = DefaultStatusTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	m := &CAN{
		id:       cfg.DeviceID,
		timeout:  cfg.StatusTimeout,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With(zap.Uint8("device", cfg.DeviceID)),
		tx:       tx,
		rx:       rx,
		status:   atomic.NewPointer(&Status{}),
		lastSeen: atomic.NewTime(time.Time{}),
		recvErr:  atomic.NewError(nil),
		closed:   atomic.NewBool(false),
		done:     make(chan struct{}),
	}
	if conn != nil {
		m.closer = conn.Close
	}
	go m.receive()
	return m
}

func (m *CAN) receive() {
	defer close(m.done)
	for m.rx.Receive() {
		f := m.rx.Frame()
		next := *m.status.Load()
		switch f.ID {
		case status0Base + uint32(m.id):
			applyStatus0(&next, f)
		case status1Base + uint32(m.id):
			applyStatus1(&next, f)
		default:
			continue
		}
		m.status.Store(&next)
		m.lastSeen.Store(m.clock.Now())
	}

	err := m.rx.Err()
	if err == nil {
		err = ErrClosed
	}
	if !m.closed.Load() {
		m.logger.Warn("can receive stopped", zap.Error(err))
	}
	m.recvErr.Store(err)
}

func (m *CAN) Configure(ctx context.Context, s Settings) error {
	return m.transmit(ctx, encodeConfig(m.id, s))
}

func (m *CAN) SetVoltage(ctx context.Context, volts float64) error {
	return m.transmit(ctx, encodeVoltage(m.id, volts))
}

func (m *CAN) SetEncoderPosition(rotations float64) error {
	return m.transmit(context.Background(), encodeEncoderPosition(m.id, rotations))
}

func (m *CAN) transmit(ctx context.Context, f can.Frame) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if err := m.tx.TransmitFrame(ctx, f); err != nil {
		return errors.Wrapf(err, "transmit 0x%03x", f.ID)
	}
	return nil
}

// Status returns the most recent decoded status.
func (m *CAN) Status() Status {
	return *m.status.Load()
}

func (m *CAN) Position() float64      { return m.Status().Position }
func (m *CAN) VelocityRPM() float64   { return m.Status().VelocityRPM }
func (m *CAN) AppliedOutput() float64 { return m.Status().AppliedOutput }
func (m *CAN) BusVoltage() float64    { return m.Status().BusVoltage }
func (m *CAN) OutputCurrent() float64 { return m.Status().Current }
func (m *CAN) Temperature() float64   { return m.Status().Temperature }

// Fault reports a receive failure, or ErrStale when no status frame has
// arrived within the status timeout.
func (m *CAN) Fault() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if err := m.recvErr.Load(); err != nil {
		return errors.Wrap(err, "can receive")
	}
	seen := m.lastSeen.Load()
	if seen.IsZero() {
		return errors.Wrap(ErrStale, "no status received")
	}
	if age := m.clock.Since(seen); age > m.timeout {
		return errors.Wrapf(ErrStale, "last status %s ago", age)
	}
	return nil
}

// Close releases the socket. The receiver goroutine exits once the
// underlying connection reports closed.
func (m *CAN) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.closer != nil {
		return m.closer()
	}
	return nil
}

// Done is closed when the receiver goroutine has exited.
func (m *CAN) Done() <-chan struct{} {
	return m.done
}
