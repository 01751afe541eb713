// Package viz is the live terminal view of the simulated elevator.
//
// The view runs the control loop in simulated time on every frame and
// draws the shaft, the carriage and a history graph with Bubble Tea,
// Lip Gloss and asciigraph.
//
// # Key Bindings
//
//	Up/K, Down/J - Move the position target by one nudge
//	0-9          - Jump the position target to a tenth of the travel
//	V / Shift+V  - Run up / down at the cruise velocity
//	S            - Stop (hold zero velocity)
//	O            - Open loop at 0 V
//	F            - Toggle an injected motor fault
//	Space        - Pause/Resume
//	R            - Reset to the start height
//	?            - Show help overlay
package viz
