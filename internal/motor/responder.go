package motor

import (
	"context"

	"go.einride.tech/can"
	"go.uber.org/zap"
)

// Responder is the device side of the CAN protocol: it applies command
// frames to a Motor and produces its status frames. It lets a simulated
// elevator stand in for hardware on a real or virtual bus.
type Responder struct {
	ID    uint8
	Motor Motor
}

// HandleFrame applies a command addressed to this device. Other frames are
// ignored.
func (r *Responder) HandleFrame(ctx context.Context, f can.Frame) error {
	switch f.ID {
	case voltageCommandBase + uint32(r.ID):
		return r.Motor.SetVoltage(ctx, decodeFloat32(f))
	case configCommandBase + uint32(r.ID):
		return r.Motor.Configure(ctx, decodeConfig(f))
	case encoderCommandBase + uint32(r.ID):
		return r.Motor.SetEncoderPosition(decodeFloat32(f))
	}
	return nil
}

// StatusFrames samples the motor into its two status frames.
func (r *Responder) StatusFrames() (status0, status1 can.Frame) {
	return encodeStatus(r.ID, Status{
		AppliedOutput: r.Motor.AppliedOutput(),
		BusVoltage:    r.Motor.BusVoltage(),
		Current:       r.Motor.OutputCurrent(),
		Temperature:   r.Motor.Temperature(),
		Position:      r.Motor.Position(),
		VelocityRPM:   r.Motor.VelocityRPM(),
	})
}

// Publish transmits both status frames.
func (r *Responder) Publish(ctx context.Context, tx FrameTransmitter) error {
	s0, s1 := r.StatusFrames()
	if err := tx.TransmitFrame(ctx, s0); err != nil {
		return err
	}
	return tx.TransmitFrame(ctx, s1)
}

// Serve applies every frame from rx until it ends and returns the
// receiver's error. A frame the motor rejects is logged and skipped.
func (r *Responder) Serve(ctx context.Context, rx FrameReceiver, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for rx.Receive() {
		f := rx.Frame()
		if err := r.HandleFrame(ctx, f); err != nil {
			logger.Warn("command rejected", zap.Uint32("id", f.ID), zap.Error(err))
		}
	}
	return rx.Err()
}
