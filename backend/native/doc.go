// Package native provides the GPU device backed by gogpu/wgpu.
//
// The device is registered under backend.BackendNative on import:
//
//	import _ "github.com/gogpu/gecs/backend/native"
//
// Open creates its own Vulkan instance. FromProvider shares the device of
// a host application that exposes HAL handles, such as a gogpu window.
//
// WGSL is compiled to SPIR-V with gogpu/naga. Every pipeline uses the
// engine binding layout: group 0 binding 0 is a uniform u32 entity index,
// group 1 holds one read-only storage buffer per binding. Each draw gets
// its own 256-byte slot in a per-pass uniform buffer.
package native
