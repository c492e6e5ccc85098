package native

import (
	"errors"
	"testing"

	"github.com/gogpu/gecs/gpucore"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
)

const testShader = `
@group(0) @binding(0) var<uniform> entity_index: u32;
@group(1) @binding(0) var<storage, read> colors: array<vec4<f32>>;

@vertex
fn vs_main(@builtin(vertex_index) vi: u32) -> @builtin(position) vec4<f32> {
    let x = f32(vi & 1u) * 2.0 - 1.0;
    let y = f32((vi >> 1u) & 1u) * 2.0 - 1.0;
    return vec4<f32>(x, y, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return colors[entity_index];
}
`

// newNoopDevice opens a noop HAL device and wraps it.
func newNoopDevice(t *testing.T) *Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	d, err := NewDevice(openDev.Device, openDev.Queue)
	if err != nil {
		t.Fatalf("NewDevice failed: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return d
}

func TestDeviceBuffers(t *testing.T) {
	d := newNoopDevice(t)

	id, err := d.CreateBuffer(&gpucore.BufferDesc{
		Label: "colors",
		Size:  1024,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	if id == gpucore.InvalidID {
		t.Fatal("expected valid buffer ID")
	}

	if err := d.WriteBuffer(id, 0, make([]byte, 64)); err != nil {
		t.Errorf("WriteBuffer failed: %v", err)
	}
	if err := d.WriteBuffer(id, 16, []byte{1, 2, 3}); err != nil {
		t.Errorf("unaligned WriteBuffer failed: %v", err)
	}
	if err := d.WriteBuffer(id, 1020, make([]byte, 8)); err == nil {
		t.Error("expected overrun error")
	}

	dst := make([]byte, 16)
	if err := d.ReadBuffer(id, 0, dst); err != nil {
		t.Errorf("ReadBuffer failed: %v", err)
	}

	d.DestroyBuffer(id)
	err = d.WriteBuffer(id, 0, make([]byte, 4))
	if !errors.Is(err, gpucore.ErrUnknownResource) {
		t.Errorf("WriteBuffer after destroy: got %v, want ErrUnknownResource", err)
	}
}

func TestDeviceInvalidDescriptors(t *testing.T) {
	d := newNoopDevice(t)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"zero buffer", func() error {
			_, err := d.CreateBuffer(&gpucore.BufferDesc{Size: 0})
			return err
		}},
		{"zero texture", func() error {
			_, err := d.CreateTexture(&gpucore.TextureDesc{Width: 0, Height: 4, Format: gpucore.TextureFormatRGBA8Unorm})
			return err
		}},
		{"empty shader", func() error {
			_, err := d.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: "empty"})
			return err
		}},
		{"no targets", func() error {
			_, err := d.CreateRenderPipeline(&gpucore.RenderPipelineDesc{Label: "bare"})
			return err
		}},
		{"no attachments", func() error {
			return d.Submit(&gpucore.RenderPass{Label: "empty"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, gpucore.ErrInvalidDescriptor) {
				t.Errorf("got %v, want ErrInvalidDescriptor", err)
			}
		})
	}
}

func TestDeviceShaderCache(t *testing.T) {
	d := newNoopDevice(t)

	for range 3 {
		if _, err := d.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: "quad", WGSL: testShader}); err != nil {
			t.Fatalf("CreateShaderModule failed: %v", err)
		}
	}
	if s := d.spirv.Stats(); s.Len != 1 || s.Hits != 2 {
		t.Errorf("cache = %+v, want 1 entry and 2 hits", s)
	}

	_, err := d.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: "broken", WGSL: "fn {"})
	if !errors.Is(err, ErrShaderCompile) {
		t.Errorf("got %v, want ErrShaderCompile", err)
	}
}

func TestDeviceSubmit(t *testing.T) {
	d := newNoopDevice(t)

	module, err := d.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: "quad", WGSL: testShader})
	if err != nil {
		t.Fatalf("CreateShaderModule failed: %v", err)
	}
	pipeline, err := d.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Label:           "quad",
		Vertex:          gpucore.ShaderStage{Module: module, EntryPoint: "vs_main"},
		Fragment:        gpucore.ShaderStage{Module: module, EntryPoint: "fs_main"},
		StorageBindings: 1,
		Topology:        gpucore.TopologyTriangleStrip,
		Targets:         []gpucore.ColorTarget{{Format: gpucore.TextureFormatRGBA8Unorm, Blend: gpucore.BlendAlpha}},
	})
	if err != nil {
		t.Fatalf("CreateRenderPipeline failed: %v", err)
	}
	tex, err := d.CreateTexture(&gpucore.TextureDesc{Label: "target", Width: 64, Height: 64, Format: gpucore.TextureFormatRGBA8Unorm})
	if err != nil {
		t.Fatalf("CreateTexture failed: %v", err)
	}
	colors, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "colors", Size: 1024, Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}

	pass := &gpucore.RenderPass{
		Label:       "frame",
		Attachments: []gpucore.Attachment{{Texture: tex, LoadOp: gpucore.LoadOpClear}},
		Draws: []gpucore.Draw{
			{Pipeline: pipeline, EntityIndex: 0, Storage: []gpucore.BufferID{colors}, VertexCount: 4, InstanceCount: 1},
			{Pipeline: pipeline, EntityIndex: 1, Storage: []gpucore.BufferID{colors}, VertexCount: 4, InstanceCount: 1},
		},
	}
	for range 2 {
		if err := d.Submit(pass); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	pass.Draws[0].Storage = nil
	if err := d.Submit(pass); !errors.Is(err, gpucore.ErrInvalidDescriptor) {
		t.Errorf("storage count mismatch: got %v, want ErrInvalidDescriptor", err)
	}

	d.DestroyRenderPipeline(pipeline)
	pass.Draws[0].Storage = []gpucore.BufferID{colors}
	if err := d.Submit(pass); !errors.Is(err, gpucore.ErrUnknownResource) {
		t.Errorf("destroyed pipeline: got %v, want ErrUnknownResource", err)
	}
}

func TestDeviceClose(t *testing.T) {
	d := newNoopDevice(t)

	tex, err := d.CreateTexture(&gpucore.TextureDesc{Label: "target", Width: 8, Height: 8, Format: gpucore.TextureFormatBGRA8Unorm})
	if err != nil {
		t.Fatalf("CreateTexture failed: %v", err)
	}
	d.Close()
	d.Close() // idempotent

	err = d.Submit(&gpucore.RenderPass{Attachments: []gpucore.Attachment{{Texture: tex}}})
	if !errors.Is(err, gpucore.ErrDeviceClosed) {
		t.Errorf("Submit after Close: got %v, want ErrDeviceClosed", err)
	}
}

func TestFromProviderRejectsPlainProvider(t *testing.T) {
	if _, err := FromProvider(nil); !errors.Is(err, ErrNoHALProvider) {
		t.Errorf("nil provider: got %v, want ErrNoHALProvider", err)
	}
}
