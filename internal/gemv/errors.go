package gemv

import "errors"

var (
	// ErrInvalidDimension reports a rows/cols operand that is zero or
	// exceeds the engine's configured maximums. Checked before any
	// streaming begins; a failed invocation produces no output.
	ErrInvalidDimension = errors.New("gemv: invalid dimension")

	// ErrStalled reports that the tile-buffer collaborator never supplied
	// a requested tile within the bridge's attempt budget.
	ErrStalled = errors.New("gemv: tile source stalled")
)
