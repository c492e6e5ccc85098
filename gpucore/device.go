package gpucore

import "errors"

// Device errors.
var (
	// ErrOutOfMemory is returned when a device cannot reserve memory for a resource.
	ErrOutOfMemory = errors.New("gpucore: out of device memory")

	// ErrUnknownResource is returned for an ID the device does not own.
	ErrUnknownResource = errors.New("gpucore: unknown resource")

	// ErrDeviceClosed is returned after Close.
	ErrDeviceClosed = errors.New("gpucore: device closed")

	// ErrInvalidDescriptor is returned for a malformed descriptor.
	ErrInvalidDescriptor = errors.New("gpucore: invalid descriptor")
)

// Device is the graphics capability used by the engine.
//
// Implementations must be safe for concurrent use; the engine calls a
// device from the scheduler goroutine only, but tests and hosts may not.
type Device interface {
	// Name identifies the backend (e.g., "native", "software").
	Name() string

	// CreateBuffer reserves device memory. Failure to reserve memory
	// must wrap ErrOutOfMemory.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// WriteBuffer copies data into a buffer at offset.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// ReadBuffer copies buffer contents at offset into dst. It blocks
	// until previously submitted work touching the buffer has completed.
	ReadBuffer(id BufferID, offset uint64, dst []byte) error

	// DestroyBuffer releases a buffer. Unknown IDs are ignored.
	DestroyBuffer(id BufferID)

	// CreateTexture creates a 2D render target texture.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a texture. Unknown IDs are ignored.
	DestroyTexture(id TextureID)

	// CreateShaderModule compiles WGSL source.
	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// CreateRenderPipeline builds a pipeline with the engine binding layout:
	// group 0 binding 0 is a uniform u32 entity index, group 1 holds
	// StorageBindings read-only storage buffers.
	CreateRenderPipeline(desc *RenderPipelineDesc) (RenderPipelineID, error)

	// DestroyRenderPipeline releases a pipeline.
	DestroyRenderPipeline(id RenderPipelineID)

	// Submit encodes and submits one render pass. It does not wait for
	// the GPU to finish.
	Submit(pass *RenderPass) error

	// Close releases every resource owned by the device.
	Close()
}

// BufferDesc describes a buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage declares how the buffer will be bound.
	Usage BufferUsage
}

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the texture dimensions in pixels.
	Width, Height uint32

	// Format is the texel format.
	Format TextureFormat
}

// ShaderModuleDesc describes a shader module.
type ShaderModuleDesc struct {
	// Label is an optional debug label.
	Label string

	// WGSL is the shader source text.
	WGSL string
}

// ShaderStage names an entry point in a module.
type ShaderStage struct {
	Module     ShaderModuleID
	EntryPoint string
}

// ColorTarget describes one fragment output.
type ColorTarget struct {
	Format TextureFormat
	Blend  BlendMode
}

// RenderPipelineDesc describes a render pipeline.
type RenderPipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Vertex and Fragment are the shader stages.
	Vertex   ShaderStage
	Fragment ShaderStage

	// StorageBindings is the number of group 1 storage buffer bindings.
	StorageBindings int

	// Topology is the primitive topology.
	Topology Topology

	// Targets lists the color outputs in location order.
	Targets []ColorTarget
}

// Attachment is a color attachment of a render pass.
type Attachment struct {
	Texture TextureID
	LoadOp  LoadOp
	Clear   Color
}

// Draw is one draw call inside a render pass.
type Draw struct {
	// Pipeline is the render pipeline to bind.
	Pipeline RenderPipelineID

	// EntityIndex is written to the group 0 uniform.
	EntityIndex uint32

	// Storage lists the group 1 buffers in binding order.
	Storage []BufferID

	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// RenderPass is a set of draws into the same attachments.
type RenderPass struct {
	// Label is an optional debug label.
	Label string

	// Attachments are the color targets, matching the pipelines' Targets.
	Attachments []Attachment

	// Draws are recorded in order.
	Draws []Draw
}
