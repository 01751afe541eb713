package motor

import (
	"math"

	"github.com/pkg/errors"
	"go.einride.tech/can"
)

// Arbitration ID bases; the device ID is added to each.
const (
	voltageCommandBase uint32 = 0x100
	configCommandBase  uint32 = 0x110
	encoderCommandBase uint32 = 0x120
	status0Base        uint32 = 0x200
	status1Base        uint32 = 0x210

	maxDeviceID = 0x0F
)

// Status is the device state carried by the two periodic status frames.
type Status struct {
	AppliedOutput float64 // duty, -1..1
	BusVoltage    float64 // V
	Current       float64 // A
	Temperature   float64 // °C
	Position      float64 // motor rotations
	VelocityRPM   float64
}

func encodeVoltage(id uint8, volts float64) can.Frame {
	f := can.Frame{ID: voltageCommandBase + uint32(id), Length: 4}
	f.Data.SetUnsignedBitsLittleEndian(0, 32, uint64(math.Float32bits(float32(volts))))
	return f
}

func encodeEncoderPosition(id uint8, rotations float64) can.Frame {
	f := can.Frame{ID: encoderCommandBase + uint32(id), Length: 4}
	f.Data.SetUnsignedBitsLittleEndian(0, 32, uint64(math.Float32bits(float32(rotations))))
	return f
}

func encodeConfig(id uint8, s Settings) can.Frame {
	f := can.Frame{ID: configCommandBase + uint32(id), Length: 3}
	limit := math.Max(0, math.Min(math.MaxUint16, math.Round(s.CurrentLimitAmps)))
	f.Data.SetUnsignedBitsLittleEndian(0, 16, uint64(limit))
	if s.IdleMode == Coast {
		f.Data.SetUnsignedBitsLittleEndian(16, 1, 1)
	}
	return f
}

func decodeConfig(f can.Frame) Settings {
	s := Settings{CurrentLimitAmps: float64(f.Data.UnsignedBitsLittleEndian(0, 16))}
	if f.Data.UnsignedBitsLittleEndian(16, 1) == 1 {
		s.IdleMode = Coast
	}
	return s
}

func decodeFloat32(f can.Frame) float64 {
	return float64(math.Float32frombits(uint32(f.Data.UnsignedBitsLittleEndian(0, 32))))
}

// encodeStatus is the device side of the status frames.
func encodeStatus(id uint8, s Status) (status0, status1 can.Frame) {
	status0 = can.Frame{ID: status0Base + uint32(id), Length: 7}
	applied := math.Max(-1, math.Min(1, s.AppliedOutput))
	status0.Data.SetSignedBitsLittleEndian(0, 16, int64(math.Round(applied*math.MaxInt16)))
	status0.Data.SetUnsignedBitsLittleEndian(16, 16, saturate16(s.BusVoltage*1000))
	status0.Data.SetUnsignedBitsLittleEndian(32, 16, saturate16(math.Abs(s.Current)*100))
	status0.Data.SetUnsignedBitsLittleEndian(48, 8, uint64(math.Max(0, math.Min(255, math.Round(s.Temperature)))))

	status1 = can.Frame{ID: status1Base + uint32(id), Length: 8}
	status1.Data.SetUnsignedBitsLittleEndian(0, 32, uint64(math.Float32bits(float32(s.Position))))
	status1.Data.SetUnsignedBitsLittleEndian(32, 32, uint64(math.Float32bits(float32(s.VelocityRPM))))
	return status0, status1
}

// applyStatus0 decodes the electrical status into s.
func applyStatus0(s *Status, f can.Frame) {
	s.AppliedOutput = float64(f.Data.SignedBitsLittleEndian(0, 16)) / math.MaxInt16
	s.BusVoltage = float64(f.Data.UnsignedBitsLittleEndian(16, 16)) / 1000
	s.Current = float64(f.Data.UnsignedBitsLittleEndian(32, 16)) / 100
	s.Temperature = float64(f.Data.UnsignedBitsLittleEndian(48, 8))
}

// applyStatus1 decodes the encoder status into s.
func applyStatus1(s *Status, f can.Frame) {
	s.Position = float64(math.Float32frombits(uint32(f.Data.UnsignedBitsLittleEndian(0, 32))))
	s.VelocityRPM = float64(math.Float32frombits(uint32(f.Data.UnsignedBitsLittleEndian(32, 32))))
}

func saturate16(v float64) uint64 {
	return uint64(math.Max(0, math.Min(math.MaxUint16, math.Round(v))))
}

func validateDeviceID(id uint8) error {
	if id == 0 || id > maxDeviceID {
		return errors.Errorf("device id must be 1..%d, got %d", maxDeviceID, id)
	}
	return nil
}
