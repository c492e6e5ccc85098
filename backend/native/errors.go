package native

import "errors"

// Package errors for the native device.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrNoHALProvider is returned when a device provider does not expose HAL types.
	ErrNoHALProvider = errors.New("native: provider does not expose HAL device and queue")

	// ErrShaderCompile is returned when WGSL fails to compile to SPIR-V.
	ErrShaderCompile = errors.New("native: shader compilation failed")

	// ErrGPUTimeout is returned when a fence wait times out.
	ErrGPUTimeout = errors.New("native: timed out waiting for GPU")
)
