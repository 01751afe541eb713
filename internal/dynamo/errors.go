package dynamo

import "github.com/pkg/errors"

var (
	// ErrInvalidState marks a state vector with NaN or Inf entries.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")
)
