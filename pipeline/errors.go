package pipeline

import "errors"

// Pipeline errors.
var (
	// ErrInvalidPipeline is returned when a shader pair cannot form a pipeline.
	ErrInvalidPipeline = errors.New("pipeline: invalid shader pair")

	// ErrMissingCount is returned when a draw needs a vertex Count and none is set.
	ErrMissingCount = errors.New("pipeline: draw needs an explicit Count")

	// ErrNotSynced is returned when a bound type has no GPU mirror yet.
	ErrNotSynced = errors.New("pipeline: bound type not mirrored")

	// ErrNoTarget is returned when a viewport has no texture for a color target.
	ErrNoTarget = errors.New("pipeline: render target missing")

	// ErrTargetFormat is returned when a target texture does not match the
	// format the pipeline was built for.
	ErrTargetFormat = errors.New("pipeline: render target format mismatch")

	// ErrZeroSize is returned when a render target is requested with a zero dimension.
	ErrZeroSize = errors.New("pipeline: zero-size render target")
)
