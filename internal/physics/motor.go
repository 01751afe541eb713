package physics

import (
	"sort"

	"github.com/pkg/errors"
)

const rpmToRadPerSec = 2 * 3.141592653589793 / 60

// DCMotor holds the datasheet constants of a gang of identical motors and
// the derived resistance and speed and torque constants.
type DCMotor struct {
	NominalVoltage float64 // V
	StallTorque    float64 // N·m
	StallCurrent   float64 // A
	FreeCurrent    float64 // A
	FreeSpeed      float64 // rad/s

	R  float64 // Ω
	Kv float64 // rad/s per V
	Kt float64 // N·m per A
}

// MotorKind names an entry in the motor catalog.
type MotorKind string

const (
	NEO       MotorKind = "neo"
	NEO550    MotorKind = "neo550"
	Vortex    MotorKind = "vortex"
	KrakenX60 MotorKind = "krakenx60"
	KrakenX44 MotorKind = "krakenx44"
	Minion    MotorKind = "minion"
)

type motorSpec struct {
	stallTorque, stallCurrent, freeCurrent, freeSpeedRPM float64
}

var catalog = map[MotorKind]motorSpec{
	NEO:       {2.6, 105, 1.8, 5676},
	NEO550:    {0.97, 100, 1.4, 11000},
	Vortex:    {3.6, 211, 3.6, 6784},
	KrakenX60: {7.09, 366, 2, 6000},
	KrakenX44: {4.05, 275, 1.4, 7530},
	Minion:    {3.17, 211, 2, 7704},
}

// NewDCMotor looks kind up in the catalog, geared together count times.
func NewDCMotor(kind MotorKind, count int) (DCMotor, error) {
	spec, ok := catalog[kind]
	if !ok {
		return DCMotor{}, errors.Errorf("unknown motor: %q", kind)
	}
	if count < 1 {
		return DCMotor{}, errors.Errorf("motor count must be at least 1, got %d", count)
	}
	return NewDCMotorFromSpec(12, spec.stallTorque, spec.stallCurrent, spec.freeCurrent, spec.freeSpeedRPM*rpmToRadPerSec, count), nil
}

// NewDCMotorFromSpec builds a motor from datasheet values. freeSpeed is in rad/s.
func NewDCMotorFromSpec(nominalVoltage, stallTorque, stallCurrent, freeCurrent, freeSpeed float64, count int) DCMotor {
	n := float64(count)
	m := DCMotor{
		NominalVoltage: nominalVoltage,
		StallTorque:    stallTorque * n,
		StallCurrent:   stallCurrent * n,
		FreeCurrent:    freeCurrent * n,
		FreeSpeed:      freeSpeed,
	}
	m.R = m.NominalVoltage / m.StallCurrent
	m.Kv = m.FreeSpeed / (m.NominalVoltage - m.R*m.FreeCurrent)
	m.Kt = m.StallTorque / m.StallCurrent
	return m
}

// Current drawn at speed (rad/s) with volts applied.
func (m DCMotor) Current(speed, volts float64) float64 {
	return -speed/m.Kv/m.R + volts/m.R
}

func (m DCMotor) Torque(current float64) float64 {
	return current * m.Kt
}

// Voltage needed to produce torque at speed.
func (m DCMotor) Voltage(torque, speed float64) float64 {
	return speed/m.Kv + torque/m.Kt*m.R
}

func MotorKinds() []string {
	kinds := make([]string, 0, len(catalog))
	for k := range catalog {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	return kinds
}
