package gpucore

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// ShaderModuleID is an opaque handle to a compiled shader module.
type ShaderModuleID uint64

// RenderPipelineID is an opaque handle to a render pipeline.
type RenderPipelineID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 0

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 1

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 2

	// BufferUsageStorage indicates the buffer can be used as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 3
)

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatRGBA8Unorm is 8-bit RGBA, normalized unsigned integer.
	TextureFormatRGBA8Unorm TextureFormat = iota + 1

	// TextureFormatBGRA8Unorm is 8-bit BGRA, normalized unsigned integer.
	TextureFormatBGRA8Unorm

	// TextureFormatRGBA16Float is 16-bit RGBA, floating point. Suited to
	// additive light accumulation.
	TextureFormatRGBA16Float

	// TextureFormatRGBA32Float is 32-bit RGBA, floating point.
	TextureFormatRGBA32Float
)

// BytesPerPixel returns the texel size of f.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case TextureFormatRGBA16Float:
		return 8
	case TextureFormatRGBA32Float:
		return 16
	default:
		return 4
	}
}

func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8Unorm:
		return "rgba8unorm"
	case TextureFormatBGRA8Unorm:
		return "bgra8unorm"
	case TextureFormatRGBA16Float:
		return "rgba16float"
	case TextureFormatRGBA32Float:
		return "rgba32float"
	default:
		return "unknown"
	}
}

// ParseTextureFormat converts a configuration name to a format.
func ParseTextureFormat(s string) (TextureFormat, bool) {
	for f := TextureFormatRGBA8Unorm; f <= TextureFormatRGBA32Float; f++ {
		if f.String() == s {
			return f, true
		}
	}
	return 0, false
}

// Topology is the primitive assembly mode of a draw.
type Topology uint32

// Topologies. The zero value is a triangle list.
const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyLineStrip
	TopologyPointList
)

func (t Topology) String() string {
	switch t {
	case TopologyTriangleList:
		return "triangle-list"
	case TopologyTriangleStrip:
		return "triangle-strip"
	case TopologyLineList:
		return "line-list"
	case TopologyLineStrip:
		return "line-strip"
	case TopologyPointList:
		return "point-list"
	default:
		return "unknown"
	}
}

// ParseTopology converts a manifest name. The empty string is a triangle list.
func ParseTopology(s string) (Topology, bool) {
	if s == "" {
		return TopologyTriangleList, true
	}
	for t := TopologyTriangleList; t <= TopologyPointList; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// BlendMode selects how fragment output combines with the target.
type BlendMode uint32

// Blend modes. The zero value replaces the destination.
const (
	// BlendReplace writes the fragment color unchanged.
	BlendReplace BlendMode = iota

	// BlendAdd adds the fragment color to the destination (one, one).
	BlendAdd

	// BlendAlpha composites with source alpha (src-alpha, one-minus-src-alpha).
	BlendAlpha
)

func (b BlendMode) String() string {
	switch b {
	case BlendReplace:
		return "replace"
	case BlendAdd:
		return "add"
	case BlendAlpha:
		return "alpha"
	default:
		return "unknown"
	}
}

// ParseBlendMode converts a manifest name. The empty string is replace.
func ParseBlendMode(s string) (BlendMode, bool) {
	if s == "" {
		return BlendReplace, true
	}
	for b := BlendReplace; b <= BlendAlpha; b++ {
		if b.String() == s {
			return b, true
		}
	}
	return 0, false
}

// LoadOp chooses what a render pass does with an attachment's contents.
type LoadOp uint32

const (
	// LoadOpClear clears the attachment to the pass clear color.
	LoadOpClear LoadOp = iota
	// LoadOpLoad keeps the previous contents.
	LoadOpLoad
)

// Color is a linear RGBA clear color.
type Color struct {
	R, G, B, A float64
}
