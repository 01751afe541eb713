// Package dynamo provides the simulation primitives shared by the plant
// model and its integrators.
//
//   - [State]: vector representing plant state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical stepper
//
// # Example
//
//	dc, _ := physics.NewDCMotor(physics.NEO, 1)
//	plant := physics.NewElevator(dc, 15, 5, 0.0254)
//	integ := integrators.NewRK4()
//	x = integ.Step(plant, x, dynamo.Control{volts}, t, dt)
//
// Integrators keep scratch buffers and are NOT safe for concurrent use.
package dynamo
