package gravsim

import "errors"

// Errors returned by the simulation core.
var (
	// ErrInvalidGeometry is returned for zero-sized worlds or tiles.
	ErrInvalidGeometry = errors.New("gravsim: invalid geometry")

	// ErrCellDataSize is returned when encoded cell data is not a whole
	// number of records or does not match the grid.
	ErrCellDataSize = errors.New("gravsim: cell data size mismatch")

	// ErrLayoutMismatch is returned when a binding set is built against a
	// layout that does not have the display/previous/next shape.
	ErrLayoutMismatch = errors.New("gravsim: binding layout mismatch")

	// ErrStaleBinding is returned when a binding set built before a buffer
	// swap is used for dispatch.
	ErrStaleBinding = errors.New("gravsim: binding set is stale")

	// ErrStageRegistered is returned when a stage pipeline is registered twice.
	ErrStageRegistered = errors.New("gravsim: stage already registered")

	// ErrUnknownStage is returned for stages outside the closed stage set or
	// without a registered pipeline.
	ErrUnknownStage = errors.New("gravsim: unknown stage")

	// ErrCompilationFailed wraps a pipeline compiler error.
	ErrCompilationFailed = errors.New("gravsim: pipeline compilation failed")

	// ErrReleased is returned when released buffers or a closed simulation
	// are used.
	ErrReleased = errors.New("gravsim: resources released")
)
