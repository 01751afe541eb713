// Package physics models the elevator plant.
//
// [Elevator] implements [dynamo.System] with state [position m, velocity m/s]
// and control [volts]. [ElevatorSim] steps it with an injected integrator,
// enforces the travel limits and tracks the supply-limited input:
//
//	motor, _ := physics.NewDCMotor(physics.NEO, 1)
//	plant := physics.NewElevator(motor, 15, 5, 0.0254)
//	sim := physics.NewElevatorSim(plant, 0, 1, 0, integrators.NewRK4())
//	sim.SetInput(4)
//	_ = sim.Update(0.020)
//
// Motor constants follow the usual stall/free-speed description of a
// brushed or brushless DC motor; see [DCMotor].
package physics
