package backend

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gecs/gpucore"
)

// init registers the software device on package import.
func init() {
	Register(BackendSoftware, func() (gpucore.Device, error) {
		return NewSoftwareDevice(), nil
	})
}

// SoftwareOption configures a SoftwareDevice.
type SoftwareOption func(*SoftwareDevice)

// WithMemoryBudget limits the bytes of buffers and textures alive at once.
// Zero means unlimited.
func WithMemoryBudget(bytes uint64) SoftwareOption {
	return func(d *SoftwareDevice) {
		d.budget = bytes
	}
}

// WithPassHistory keeps at most n submitted passes for inspection.
func WithPassHistory(n int) SoftwareOption {
	return func(d *SoftwareDevice) {
		d.history = n
	}
}

// MemoryStats contains software device usage statistics.
type MemoryStats struct {
	// BudgetBytes is the memory budget, zero when unlimited.
	BudgetBytes uint64

	// UsedBytes is the memory held by live buffers and textures.
	UsedBytes uint64

	// Buffers and Textures count live resources.
	Buffers  int
	Textures int

	// Writes counts WriteBuffer calls; BytesWritten sums their payloads.
	Writes       uint64
	BytesWritten uint64

	// Passes counts submitted render passes.
	Passes uint64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%d/%d bytes, %d buffers, %d textures, %d writes]",
		s.UsedBytes, s.BudgetBytes, s.Buffers, s.Textures, s.Writes)
}

// SoftwareTexture is the host-side record of a texture.
type SoftwareTexture struct {
	Desc gpucore.TextureDesc

	// Clears and Loads count how the texture was attached to passes.
	Clears int
	Loads  int

	// Draws counts draw calls recorded into the texture.
	Draws int

	// Clear is the last clear color.
	Clear gpucore.Color
}

func (t *SoftwareTexture) size() uint64 {
	return uint64(t.Desc.Width) * uint64(t.Desc.Height) * uint64(t.Desc.Format.BytesPerPixel())
}

// SoftwareDevice is a gpucore.Device backed by host memory.
//
// Buffers are byte slices; textures and pipelines are bookkeeping records.
// Submitted passes are validated and kept for inspection but not rasterized.
//
// Thread safety: SoftwareDevice is safe for concurrent use.
type SoftwareDevice struct {
	mu sync.Mutex

	nextID atomic.Uint64
	closed bool

	budget  uint64
	used    uint64
	history int

	buffers   map[gpucore.BufferID][]byte
	textures  map[gpucore.TextureID]*SoftwareTexture
	modules   map[gpucore.ShaderModuleID]gpucore.ShaderModuleDesc
	pipelines map[gpucore.RenderPipelineID]gpucore.RenderPipelineDesc

	passes []gpucore.RenderPass
	stats  MemoryStats
}

// NewSoftwareDevice creates an empty device.
func NewSoftwareDevice(opts ...SoftwareOption) *SoftwareDevice {
	d := &SoftwareDevice{
		history:   64,
		buffers:   make(map[gpucore.BufferID][]byte),
		textures:  make(map[gpucore.TextureID]*SoftwareTexture),
		modules:   make(map[gpucore.ShaderModuleID]gpucore.ShaderModuleDesc),
		pipelines: make(map[gpucore.RenderPipelineID]gpucore.RenderPipelineDesc),
	}
	for _, opt := range opts {
		opt(d)
	}
	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	return d
}

func (d *SoftwareDevice) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// Name returns the backend identifier.
func (d *SoftwareDevice) Name() string { return BackendSoftware }

// reserve must be called with mu held.
func (d *SoftwareDevice) reserve(size uint64, label string) error {
	if d.closed {
		return gpucore.ErrDeviceClosed
	}
	if d.budget > 0 && d.used+size > d.budget {
		return fmt.Errorf("%w: %s needs %d bytes, %d of %d in use",
			gpucore.ErrOutOfMemory, label, size, d.used, d.budget)
	}
	d.used += size
	return nil
}

// CreateBuffer allocates a zeroed host buffer.
func (d *SoftwareDevice) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: buffer size must be positive", gpucore.ErrInvalidDescriptor)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.reserve(desc.Size, desc.Label); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.BufferID(d.newID())
	d.buffers[id] = make([]byte, desc.Size)
	return id, nil
}

// WriteBuffer copies data into a buffer.
func (d *SoftwareDevice) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return fmt.Errorf("write of %d bytes at %d overruns buffer %d (%d bytes)", len(data), offset, id, len(buf))
	}
	copy(buf[offset:], data)
	d.stats.Writes++
	d.stats.BytesWritten += uint64(len(data))
	return nil
}

// ReadBuffer copies buffer contents into dst.
func (d *SoftwareDevice) ReadBuffer(id gpucore.BufferID, offset uint64, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if offset+uint64(len(dst)) > uint64(len(buf)) {
		return fmt.Errorf("read of %d bytes at %d overruns buffer %d (%d bytes)", len(dst), offset, id, len(buf))
	}
	copy(dst, buf[offset:])
	return nil
}

// BufferSize returns the size of a live buffer, zero if unknown.
func (d *SoftwareDevice) BufferSize(id gpucore.BufferID) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(len(d.buffers[id]))
}

// DestroyBuffer releases a buffer.
func (d *SoftwareDevice) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf, ok := d.buffers[id]; ok {
		d.used -= uint64(len(buf))
		delete(d.buffers, id)
	}
}

// CreateTexture records a texture and reserves its memory.
func (d *SoftwareDevice) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: texture dimensions must be positive", gpucore.ErrInvalidDescriptor)
	}
	tex := &SoftwareTexture{Desc: *desc}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.reserve(tex.size(), desc.Label); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.TextureID(d.newID())
	d.textures[id] = tex
	return id, nil
}

// Texture returns a snapshot of a texture record.
func (d *SoftwareDevice) Texture(id gpucore.TextureID) (SoftwareTexture, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[id]
	if !ok {
		return SoftwareTexture{}, false
	}
	return *t, true
}

// DestroyTexture releases a texture.
func (d *SoftwareDevice) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.textures[id]; ok {
		d.used -= t.size()
		delete(d.textures, id)
	}
}

// CreateShaderModule records the module source. Empty source is rejected.
func (d *SoftwareDevice) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if desc == nil || desc.WGSL == "" {
		return gpucore.InvalidID, fmt.Errorf("%w: empty shader source", gpucore.ErrInvalidDescriptor)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	id := gpucore.ShaderModuleID(d.newID())
	d.modules[id] = *desc
	return id, nil
}

// DestroyShaderModule releases a module.
func (d *SoftwareDevice) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.modules, id)
}

// CreateRenderPipeline checks that both stages exist and records the pipeline.
func (d *SoftwareDevice) CreateRenderPipeline(desc *gpucore.RenderPipelineDesc) (gpucore.RenderPipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("%w: nil pipeline descriptor", gpucore.ErrInvalidDescriptor)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	for _, st := range []gpucore.ShaderStage{desc.Vertex, desc.Fragment} {
		if _, ok := d.modules[st.Module]; !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", gpucore.ErrUnknownResource, st.Module)
		}
		if st.EntryPoint == "" {
			return gpucore.InvalidID, fmt.Errorf("%w: %s missing entry point", gpucore.ErrInvalidDescriptor, desc.Label)
		}
	}
	if len(desc.Targets) == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: %s has no color targets", gpucore.ErrInvalidDescriptor, desc.Label)
	}
	rec := *desc
	rec.Targets = slices.Clone(desc.Targets)
	id := gpucore.RenderPipelineID(d.newID())
	d.pipelines[id] = rec
	return id, nil
}

// Pipeline returns the descriptor a pipeline was created with.
func (d *SoftwareDevice) Pipeline(id gpucore.RenderPipelineID) (gpucore.RenderPipelineDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[id]
	return p, ok
}

// DestroyRenderPipeline releases a pipeline.
func (d *SoftwareDevice) DestroyRenderPipeline(id gpucore.RenderPipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, id)
}

// Submit validates a pass against live resources and records it.
func (d *SoftwareDevice) Submit(pass *gpucore.RenderPass) error {
	if pass == nil || len(pass.Attachments) == 0 {
		return fmt.Errorf("%w: render pass without attachments", gpucore.ErrInvalidDescriptor)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}

	for _, att := range pass.Attachments {
		if _, ok := d.textures[att.Texture]; !ok {
			return fmt.Errorf("%w: attachment texture %d", gpucore.ErrUnknownResource, att.Texture)
		}
	}
	for i, dr := range pass.Draws {
		p, ok := d.pipelines[dr.Pipeline]
		if !ok {
			return fmt.Errorf("%w: draw %d pipeline %d", gpucore.ErrUnknownResource, i, dr.Pipeline)
		}
		if len(dr.Storage) != p.StorageBindings {
			return fmt.Errorf("%w: draw %d binds %d storage buffers, pipeline %s wants %d",
				gpucore.ErrInvalidDescriptor, i, len(dr.Storage), p.Label, p.StorageBindings)
		}
		if len(p.Targets) != len(pass.Attachments) {
			return fmt.Errorf("%w: draw %d pipeline %s has %d targets, pass has %d",
				gpucore.ErrInvalidDescriptor, i, p.Label, len(p.Targets), len(pass.Attachments))
		}
		for _, b := range dr.Storage {
			if _, ok := d.buffers[b]; !ok {
				return fmt.Errorf("%w: draw %d storage buffer %d", gpucore.ErrUnknownResource, i, b)
			}
		}
	}

	for _, att := range pass.Attachments {
		t := d.textures[att.Texture]
		switch att.LoadOp {
		case gpucore.LoadOpClear:
			t.Clears++
			t.Clear = att.Clear
		case gpucore.LoadOpLoad:
			t.Loads++
		}
		t.Draws += len(pass.Draws)
	}

	rec := *pass
	rec.Attachments = slices.Clone(pass.Attachments)
	rec.Draws = make([]gpucore.Draw, len(pass.Draws))
	for i, dr := range pass.Draws {
		dr.Storage = slices.Clone(dr.Storage)
		rec.Draws[i] = dr
	}
	d.passes = append(d.passes, rec)
	if d.history > 0 && len(d.passes) > d.history {
		d.passes = slices.Delete(d.passes, 0, len(d.passes)-d.history)
	}
	d.stats.Passes++
	return nil
}

// Passes returns the recorded passes, oldest first.
func (d *SoftwareDevice) Passes() []gpucore.RenderPass {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.passes)
}

// ResetPasses forgets recorded passes.
func (d *SoftwareDevice) ResetPasses() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.passes = d.passes[:0]
}

// Stats returns usage statistics.
func (d *SoftwareDevice) Stats() MemoryStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.BudgetBytes = d.budget
	s.UsedBytes = d.used
	s.Buffers = len(d.buffers)
	s.Textures = len(d.textures)
	return s
}

// Close releases every resource. Further creation calls fail.
func (d *SoftwareDevice) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	clear(d.buffers)
	clear(d.textures)
	clear(d.modules)
	clear(d.pipelines)
	d.passes = nil
	d.used = 0
}
