// Package gpucore defines the GPU capability the engine calls into.
//
// The engine never talks to a graphics API directly. Component mirrors,
// render targets and pipelines are created through the [Device] interface,
// which is implemented by:
//   - backend/native: gogpu/wgpu HAL devices (Vulkan, or noop in tests)
//   - backend: an in-memory software device for headless runs and tests
//
// Resources are addressed by opaque IDs. A device maps IDs to its own
// resource handles; [InvalidID] is never a live resource.
package gpucore
