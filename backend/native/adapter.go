package native

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gecs/gpucore"
	"github.com/gogpu/gecs/internal/cache"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// uniformSlot is the per-draw stride of the entity index uniform buffer,
// the minimum uniform buffer offset alignment of every backend.
const uniformSlot = 256

// fenceTimeout bounds every wait on GPU work.
const fenceTimeout = 5 * time.Second

type halBuffer struct {
	buf  hal.Buffer
	size uint64
}

type halTexture struct {
	tex  hal.Texture
	view hal.TextureView
	desc gpucore.TextureDesc
}

type halPipeline struct {
	pipeline hal.RenderPipeline
	layout   hal.PipelineLayout
	groups   []hal.BindGroupLayout
	storage  int
	label    string
}

// passResources are released once the pass's fence signals.
type passResources struct {
	uniform    hal.Buffer
	bindGroups []hal.BindGroup
	cmdBuf     hal.CommandBuffer
}

// Device implements gpucore.Device using gogpu/wgpu/hal directly.
//
// Thread Safety: Device is safe for concurrent use from multiple goroutines.
// All resource operations are protected by a mutex.
type Device struct {
	mu       sync.RWMutex
	device   hal.Device
	queue    hal.Queue
	instance hal.Instance
	external bool
	closed   bool

	// ID generation
	nextID atomic.Uint64

	// Resource tracking maps gpucore IDs to hal resources
	buffers   map[gpucore.BufferID]*halBuffer
	textures  map[gpucore.TextureID]*halTexture
	modules   map[gpucore.ShaderModuleID]hal.ShaderModule
	pipelines map[gpucore.RenderPipelineID]*halPipeline

	spirv *cache.Cache[string, []uint32]

	// Submission tracking. fenceValue is the last value submitted.
	fence      hal.Fence
	fenceValue uint64
	inflight   *passResources
}

// NewDevice wraps an open HAL device and queue. The caller keeps
// ownership of the device; Close releases only resources created here.
func NewDevice(device hal.Device, queue hal.Queue) (*Device, error) {
	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	d := &Device{
		device:    device,
		queue:     queue,
		external:  true,
		buffers:   make(map[gpucore.BufferID]*halBuffer),
		textures:  make(map[gpucore.TextureID]*halTexture),
		modules:   make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		pipelines: make(map[gpucore.RenderPipelineID]*halPipeline),
		spirv:     newSPIRVCache(),
		fence:     fence,
	}
	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	slogger().Debug("native: device wrapped")
	return d, nil
}

// newID generates a unique resource ID.
func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// Name returns the backend identifier.
func (d *Device) Name() string { return "native" }

// === Buffer Management ===

// CreateBuffer creates a GPU buffer. HAL allocation failures are reported
// as gpucore.ErrOutOfMemory.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: buffer size must be positive", gpucore.ErrInvalidDescriptor)
	}
	// Sizes are rounded to 4 bytes for COPY_BUFFER_ALIGNMENT.
	size := (desc.Size + 3) &^ 3
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: convertBufferUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %s (%d bytes): %w", gpucore.ErrOutOfMemory, desc.Label, size, err)
	}

	id := gpucore.BufferID(d.newID())
	d.mu.Lock()
	d.buffers[id] = &halBuffer{buf: buf, size: size}
	d.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a GPU buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	if ok {
		delete(d.buffers, id)
	}
	d.mu.Unlock()

	if ok {
		// In-flight passes may still reference the buffer.
		d.waitIdle()
		d.device.DestroyBuffer(b.buf)
	}
}

// WriteBuffer writes data to a buffer through the queue.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.RLock()
	b, ok := d.buffers[id]
	d.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("write of %d bytes at %d overruns buffer %d (%d bytes)", len(data), offset, id, b.size)
	}
	if len(data) == 0 {
		return nil
	}
	// Queue writes must be 4-byte aligned in size.
	if len(data)%4 != 0 {
		padded := make([]byte, (len(data)+3)&^3)
		copy(padded, data)
		if offset+uint64(len(padded)) > b.size {
			return fmt.Errorf("padded write at %d overruns buffer %d", offset, id)
		}
		data = padded
	}
	d.queue.WriteBuffer(b.buf, offset, data)
	return nil
}

// ReadBuffer copies buffer contents back to the host through a staging
// buffer. It waits for all submitted work first.
func (d *Device) ReadBuffer(id gpucore.BufferID, offset uint64, dst []byte) error {
	d.mu.RLock()
	b, ok := d.buffers[id]
	d.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if offset+uint64(len(dst)) > b.size {
		return fmt.Errorf("read of %d bytes at %d overruns buffer %d (%d bytes)", len(dst), offset, id, b.size)
	}
	if len(dst) == 0 {
		return nil
	}
	if err := d.waitIdle(); err != nil {
		return err
	}

	size := (uint64(len(dst)) + 3) &^ 3
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "gecs_readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gecs_readback"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("gecs_readback"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	copySize := min(size, b.size-offset)
	encoder.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{
		{SrcOffset: offset, DstOffset: 0, Size: copySize},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	if err := d.submitAndWait(cmdBuf); err != nil {
		return err
	}

	readback := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, readback); err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	copy(dst, readback)
	return nil
}

// === Texture Management ===

// CreateTexture creates a render target texture and its default view.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: texture dimensions must be positive", gpucore.ErrInvalidDescriptor)
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        convertTextureFormat(desc.Format),
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %s: %w", gpucore.ErrOutOfMemory, desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: desc.Label + "_view"})
	if err != nil {
		d.device.DestroyTexture(tex)
		return gpucore.InvalidID, fmt.Errorf("create texture view %s: %w", desc.Label, err)
	}

	id := gpucore.TextureID(d.newID())
	d.mu.Lock()
	d.textures[id] = &halTexture{tex: tex, view: view, desc: *desc}
	d.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a texture and its view.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	if ok {
		delete(d.textures, id)
	}
	d.mu.Unlock()

	if ok {
		d.waitIdle()
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.tex)
	}
}

// === Shaders and Pipelines ===

// CreateShaderModule compiles WGSL to SPIR-V and creates a HAL module.
func (d *Device) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if desc == nil || desc.WGSL == "" {
		return gpucore.InvalidID, fmt.Errorf("%w: empty shader source", gpucore.ErrInvalidDescriptor)
	}
	code, err := compileCached(d.spirv, desc.WGSL)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("shader %s: %w", desc.Label, err)
	}
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create shader module %s: %w", desc.Label, err)
	}

	id := gpucore.ShaderModuleID(d.newID())
	d.mu.Lock()
	d.modules[id] = module
	d.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (d *Device) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	m, ok := d.modules[id]
	if ok {
		delete(d.modules, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyShaderModule(m)
	}
}

// CreateRenderPipeline creates the bind group layouts, pipeline layout and
// render pipeline for desc.
func (d *Device) CreateRenderPipeline(desc *gpucore.RenderPipelineDesc) (gpucore.RenderPipelineID, error) {
	if desc == nil || len(desc.Targets) == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline without color targets", gpucore.ErrInvalidDescriptor)
	}
	d.mu.RLock()
	vs, okV := d.modules[desc.Vertex.Module]
	fs, okF := d.modules[desc.Fragment.Module]
	d.mu.RUnlock()
	if !okV || !okF {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module for %s", gpucore.ErrUnknownResource, desc.Label)
	}

	p := &halPipeline{storage: desc.StorageBindings, label: desc.Label}
	if err := d.buildPipeline(p, desc, vs, fs); err != nil {
		d.destroyPipeline(p)
		return gpucore.InvalidID, err
	}

	id := gpucore.RenderPipelineID(d.newID())
	d.mu.Lock()
	d.pipelines[id] = p
	d.mu.Unlock()
	slogger().Debug("native: render pipeline created", "label", desc.Label, "id", id)
	return id, nil
}

func (d *Device) buildPipeline(p *halPipeline, desc *gpucore.RenderPipelineDesc, vs, fs hal.ShaderModule) error {
	visibility := gputypes.ShaderStageVertex | gputypes.ShaderStageFragment

	entityLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: desc.Label + "_entity_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: visibility,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create entity bind group layout %s: %w", desc.Label, err)
	}
	p.groups = append(p.groups, entityLayout)

	if desc.StorageBindings > 0 {
		entries := make([]gputypes.BindGroupLayoutEntry, desc.StorageBindings)
		for i := range entries {
			entries[i] = gputypes.BindGroupLayoutEntry{
				Binding:    uint32(i),
				Visibility: visibility,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
			}
		}
		storageLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   desc.Label + "_storage_layout",
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("create storage bind group layout %s: %w", desc.Label, err)
		}
		p.groups = append(p.groups, storageLayout)
	}

	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_layout",
		BindGroupLayouts: p.groups,
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout %s: %w", desc.Label, err)
	}
	p.layout = layout

	targets := make([]gputypes.ColorTargetState, len(desc.Targets))
	for i, t := range desc.Targets {
		targets[i] = gputypes.ColorTargetState{
			Format:    convertTextureFormat(t.Format),
			Blend:     convertBlend(t.Blend),
			WriteMask: gputypes.ColorWriteMaskAll,
		}
	}

	pipeline, err := d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     vs,
			EntryPoint: desc.Vertex.EntryPoint,
		},
		Fragment: &hal.FragmentState{
			Module:     fs,
			EntryPoint: desc.Fragment.EntryPoint,
			Targets:    targets,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: convertTopology(desc.Topology),
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("create render pipeline %s: %w", desc.Label, err)
	}
	p.pipeline = pipeline
	return nil
}

// destroyPipeline releases pipeline objects in reverse creation order.
func (d *Device) destroyPipeline(p *halPipeline) {
	if p.pipeline != nil {
		d.device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.layout != nil {
		d.device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	for i := len(p.groups) - 1; i >= 0; i-- {
		d.device.DestroyBindGroupLayout(p.groups[i])
	}
	p.groups = nil
}

// DestroyRenderPipeline releases a pipeline.
func (d *Device) DestroyRenderPipeline(id gpucore.RenderPipelineID) {
	d.mu.Lock()
	p, ok := d.pipelines[id]
	if ok {
		delete(d.pipelines, id)
	}
	d.mu.Unlock()

	if ok {
		d.waitIdle()
		d.destroyPipeline(p)
	}
}

// === Submission ===

// Submit encodes one render pass and submits it without waiting. Resources
// of the previous pass are released first, after its fence signals.
func (d *Device) Submit(pass *gpucore.RenderPass) error {
	if pass == nil || len(pass.Attachments) == 0 {
		return fmt.Errorf("%w: render pass without attachments", gpucore.ErrInvalidDescriptor)
	}
	if err := d.waitIdle(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}

	res := &passResources{}
	if err := d.encodePass(pass, res); err != nil {
		d.releasePass(res)
		return err
	}

	d.fenceValue++
	if err := d.queue.Submit([]hal.CommandBuffer{res.cmdBuf}, d.fence, d.fenceValue); err != nil {
		d.releasePass(res)
		return fmt.Errorf("submit %s: %w", pass.Label, err)
	}
	d.inflight = res
	return nil
}

// encodePass must be called with mu held.
func (d *Device) encodePass(pass *gpucore.RenderPass, res *passResources) error {
	attachments := make([]hal.RenderPassColorAttachment, len(pass.Attachments))
	for i, a := range pass.Attachments {
		t, ok := d.textures[a.Texture]
		if !ok {
			return fmt.Errorf("%w: attachment texture %d", gpucore.ErrUnknownResource, a.Texture)
		}
		attachments[i] = hal.RenderPassColorAttachment{
			View:       t.view,
			LoadOp:     convertLoadOp(a.LoadOp),
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: convertColor(a.Clear),
		}
	}

	uniformSize := uint64(max(len(pass.Draws), 1)) * uniformSlot
	uniform, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "gecs_entity_index",
		Size:  uniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("%w: entity index uniform: %w", gpucore.ErrOutOfMemory, err)
	}
	res.uniform = uniform
	slots := make([]byte, uniformSize)
	for i, dr := range pass.Draws {
		off := i * uniformSlot
		slots[off] = byte(dr.EntityIndex)
		slots[off+1] = byte(dr.EntityIndex >> 8)
		slots[off+2] = byte(dr.EntityIndex >> 16)
		slots[off+3] = byte(dr.EntityIndex >> 24)
	}
	d.queue.WriteBuffer(uniform, 0, slots)

	type drawBinding struct {
		pipeline *halPipeline
		groups   []hal.BindGroup
	}
	bindings := make([]drawBinding, len(pass.Draws))
	for i, dr := range pass.Draws {
		p, ok := d.pipelines[dr.Pipeline]
		if !ok {
			return fmt.Errorf("%w: draw %d pipeline %d", gpucore.ErrUnknownResource, i, dr.Pipeline)
		}
		if len(dr.Storage) != p.storage {
			return fmt.Errorf("%w: draw %d binds %d storage buffers, pipeline %s wants %d",
				gpucore.ErrInvalidDescriptor, i, len(dr.Storage), p.label, p.storage)
		}
		groups, err := d.createDrawGroups(p, dr, uniform, uint64(i)*uniformSlot, res)
		if err != nil {
			return err
		}
		bindings[i] = drawBinding{pipeline: p, groups: groups}
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: pass.Label})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(pass.Label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:            pass.Label,
		ColorAttachments: attachments,
	})
	for i, dr := range pass.Draws {
		b := bindings[i]
		rp.SetPipeline(b.pipeline.pipeline)
		for g, group := range b.groups {
			rp.SetBindGroup(uint32(g), group, nil)
		}
		rp.Draw(dr.VertexCount, dr.InstanceCount, dr.FirstVertex, dr.FirstInstance)
	}
	rp.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	res.cmdBuf = cmdBuf
	return nil
}

// createDrawGroups builds the entity and storage bind groups of one draw.
func (d *Device) createDrawGroups(p *halPipeline, dr gpucore.Draw, uniform hal.Buffer, offset uint64, res *passResources) ([]hal.BindGroup, error) {
	entity, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  p.label + "_entity",
		Layout: p.groups[0],
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: uniform.NativeHandle(), Offset: offset, Size: 16,
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create entity bind group %s: %w", p.label, err)
	}
	res.bindGroups = append(res.bindGroups, entity)
	groups := []hal.BindGroup{entity}

	if p.storage == 0 {
		return groups, nil
	}
	entries := make([]gputypes.BindGroupEntry, len(dr.Storage))
	for i, id := range dr.Storage {
		b, ok := d.buffers[id]
		if !ok {
			return nil, fmt.Errorf("%w: storage buffer %d for %s", gpucore.ErrUnknownResource, id, p.label)
		}
		entries[i] = gputypes.BindGroupEntry{
			Binding: uint32(i),
			Resource: gputypes.BufferBinding{
				Buffer: b.buf.NativeHandle(),
				Offset: 0,
				Size:   0, // 0 = entire buffer
			},
		}
	}
	storage, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.label + "_storage",
		Layout:  p.groups[1],
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage bind group %s: %w", p.label, err)
	}
	res.bindGroups = append(res.bindGroups, storage)
	return append(groups, storage), nil
}

func (d *Device) releasePass(res *passResources) {
	if res == nil {
		return
	}
	for i := len(res.bindGroups) - 1; i >= 0; i-- {
		d.device.DestroyBindGroup(res.bindGroups[i])
	}
	if res.uniform != nil {
		d.device.DestroyBuffer(res.uniform)
	}
	if res.cmdBuf != nil {
		d.device.FreeCommandBuffer(res.cmdBuf)
	}
}

// waitIdle blocks until the last submitted pass completes and releases
// its transient resources.
func (d *Device) waitIdle() error {
	d.mu.Lock()
	res := d.inflight
	d.inflight = nil
	value := d.fenceValue
	d.mu.Unlock()

	if res == nil {
		return nil
	}
	ok, err := d.device.Wait(d.fence, value, fenceTimeout)
	if err != nil {
		d.releasePass(res)
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !ok {
		d.releasePass(res)
		return ErrGPUTimeout
	}
	d.releasePass(res)
	return nil
}

// submitAndWait submits a one-off command buffer and waits for it.
func (d *Device) submitAndWait(cmdBuf hal.CommandBuffer) error {
	d.mu.Lock()
	d.fenceValue++
	value := d.fenceValue
	d.mu.Unlock()

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, d.fence, value); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	ok, err := d.device.Wait(d.fence, value, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !ok {
		return ErrGPUTimeout
	}
	return nil
}

// Close releases every resource created through the device. A device
// opened by Open is destroyed as well.
func (d *Device) Close() {
	_ = d.waitIdle()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true

	for id, p := range d.pipelines {
		d.destroyPipeline(p)
		delete(d.pipelines, id)
	}
	for id, m := range d.modules {
		d.device.DestroyShaderModule(m)
		delete(d.modules, id)
	}
	for id, t := range d.textures {
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.tex)
		delete(d.textures, id)
	}
	for id, b := range d.buffers {
		d.device.DestroyBuffer(b.buf)
		delete(d.buffers, id)
	}
	d.device.DestroyFence(d.fence)

	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
}
