package native

import (
	"github.com/gogpu/gecs/gpucore"
	"github.com/gogpu/gputypes"
)

func convertBufferUsage(u gpucore.BufferUsage) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	if u&gpucore.BufferUsageCopySrc != 0 {
		out |= gputypes.BufferUsageCopySrc
	}
	if u&gpucore.BufferUsageCopyDst != 0 {
		out |= gputypes.BufferUsageCopyDst
	}
	if u&gpucore.BufferUsageUniform != 0 {
		out |= gputypes.BufferUsageUniform
	}
	if u&gpucore.BufferUsageStorage != 0 {
		out |= gputypes.BufferUsageStorage
	}
	return out
}

func convertTextureFormat(f gpucore.TextureFormat) gputypes.TextureFormat {
	switch f {
	case gpucore.TextureFormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm
	case gpucore.TextureFormatRGBA16Float:
		return gputypes.TextureFormatRGBA16Float
	case gpucore.TextureFormatRGBA32Float:
		return gputypes.TextureFormatRGBA32Float
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

func convertTopology(t gpucore.Topology) gputypes.PrimitiveTopology {
	switch t {
	case gpucore.TopologyTriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip
	case gpucore.TopologyLineList:
		return gputypes.PrimitiveTopologyLineList
	case gpucore.TopologyLineStrip:
		return gputypes.PrimitiveTopologyLineStrip
	case gpucore.TopologyPointList:
		return gputypes.PrimitiveTopologyPointList
	default:
		return gputypes.PrimitiveTopologyTriangleList
	}
}

// convertBlend returns nil for replace, which disables blending.
func convertBlend(b gpucore.BlendMode) *gputypes.BlendState {
	switch b {
	case gpucore.BlendAdd:
		return &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
		}
	case gpucore.BlendAlpha:
		return &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorSrcAlpha,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
		}
	default:
		return nil
	}
}

func convertLoadOp(op gpucore.LoadOp) gputypes.LoadOp {
	if op == gpucore.LoadOpLoad {
		return gputypes.LoadOpLoad
	}
	return gputypes.LoadOpClear
}

func convertColor(c gpucore.Color) gputypes.Color {
	return gputypes.Color{R: c.R, G: c.G, B: c.B, A: c.A}
}
