package backend

import (
	"errors"

	"github.com/gogpu/gecs/gpucore"
)

// Backend name constants.
const (
	// BackendSoftware is the name of the in-memory device.
	BackendSoftware = "software"
	// BackendNative is the name of the Pure Go GPU device (gogpu/wgpu).
	BackendNative = "native"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Factory opens a new device.
type Factory func() (gpucore.Device, error)
