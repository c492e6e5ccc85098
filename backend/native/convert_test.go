package native

import (
	"testing"

	"github.com/gogpu/gecs/gpucore"
	"github.com/gogpu/gputypes"
)

func TestConvertBufferUsage(t *testing.T) {
	got := convertBufferUsage(gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst)
	want := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	if got != want {
		t.Errorf("convertBufferUsage = %v, want %v", got, want)
	}
	if convertBufferUsage(0) != 0 {
		t.Error("empty usage should convert to 0")
	}
}

func TestConvertTextureFormat(t *testing.T) {
	tests := []struct {
		in   gpucore.TextureFormat
		want gputypes.TextureFormat
	}{
		{gpucore.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8Unorm},
		{gpucore.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8Unorm},
		{gpucore.TextureFormatRGBA16Float, gputypes.TextureFormatRGBA16Float},
		{gpucore.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Float},
	}
	for _, tt := range tests {
		if got := convertTextureFormat(tt.in); got != tt.want {
			t.Errorf("convertTextureFormat(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConvertBlend(t *testing.T) {
	if convertBlend(gpucore.BlendReplace) != nil {
		t.Error("replace should disable blending")
	}
	for _, mode := range []gpucore.BlendMode{gpucore.BlendAdd, gpucore.BlendAlpha} {
		if convertBlend(mode) == nil {
			t.Errorf("%v: expected blend state", mode)
		}
	}
}

func TestConvertLoadOp(t *testing.T) {
	if convertLoadOp(gpucore.LoadOpClear) != gputypes.LoadOpClear {
		t.Error("clear should map to LoadOpClear")
	}
	if convertLoadOp(gpucore.LoadOpLoad) != gputypes.LoadOpLoad {
		t.Error("load should map to LoadOpLoad")
	}
}
