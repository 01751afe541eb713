// Package control turns a target into a voltage for the elevator motor.
//
// A [ProfiledController] combines three pieces:
//
//   - [PID]: feedback on the profiled setpoint (github.com/felixge/pidctrl
//     stepped at a fixed period)
//   - [Feedforward]: static friction, gravity, velocity and acceleration terms
//   - a trapezoidal profile that bounds how fast the setpoint may move
//
// The active law is chosen by the [Mode] value passed to ComputeVoltage:
//
//	v := ctrl.ComputeVoltage(control.Position{Rotations: 3.13}, fb)
//
// [OpenLoop] bypasses feedback entirely.
package control
