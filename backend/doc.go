// Package backend selects the GPU device the engine runs on.
//
// Devices are registered by name via init() functions and opened at
// runtime. The software device is registered on import of this package;
// the native wgpu device registers itself when backend/native is imported:
//
//	import _ "github.com/gogpu/gecs/backend/native"
//
// # Device Selection
//
// Use Default to open the best available device, or Open to request one
// by name:
//
//	dev, err := backend.Default()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	dev, err = backend.Open("software")
//
// Priority order is native, then software.
//
// # Software Device
//
// [SoftwareDevice] keeps buffers in host memory and records submitted
// render passes instead of rasterizing them. It enforces an optional
// memory budget, which makes allocation failures reproducible in tests.
package backend
