package pipeline

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/gpucore"
	"github.com/gogpu/gecs/job"
	"github.com/gogpu/gecs/mirror"
)

// Default entry points used when a stage leaves EntryPoint empty.
const (
	DefaultVertexEntry   = "vs_main"
	DefaultFragmentEntry = "fs_main"
)

// Binding is one resolved group 1 storage binding.
type Binding struct {
	Group   uint32
	Binding uint32
	Type    string

	// Index is true for the sparse index buffer of Type.
	Index bool
}

// Layout is the binding table of a pipeline.
type Layout struct {
	// Bindings lists group 1 bindings in binding order.
	Bindings []Binding

	// Types lists the bound component types; type k owns bindings 2k and 2k+1.
	Types []string

	// Targets lists the color targets in location order.
	Targets []string
}

// Pipeline is a built vertex/fragment pair.
type Pipeline struct {
	name    string
	id      gpucore.RenderPipelineID
	modules []gpucore.ShaderModuleID
	layout  Layout

	types   []component.TypeID
	targets []component.TypeID
	formats []gpucore.TextureFormat

	// driving is the type draws iterate over when hasDriver is set.
	driving   component.TypeID
	hasDriver bool
	instances component.TypeID
	byInst    bool

	draw  job.Draw
	blend gpucore.BlendMode
	clear gpucore.Color
}

// Name returns the pipeline name shared by both stages.
func (p *Pipeline) Name() string { return p.name }

// ID returns the device pipeline.
func (p *Pipeline) ID() gpucore.RenderPipelineID { return p.id }

// Layout returns a copy of the binding table.
func (p *Pipeline) Layout() Layout {
	return Layout{
		Bindings: slices.Clone(p.layout.Bindings),
		Types:    slices.Clone(p.layout.Types),
		Targets:  slices.Clone(p.layout.Targets),
	}
}

// Types returns the ids of the bound component types in binding order.
func (p *Pipeline) Types() []component.TypeID { return slices.Clone(p.types) }

// Option configures a Builder.
type Option func(*Builder)

// WithDefaultFormat sets the color format of targets that no TargetJob
// declared a format for.
func WithDefaultFormat(f gpucore.TextureFormat) Option {
	return func(b *Builder) {
		if f != 0 {
			b.format = f
		}
	}
}

// Builder creates pipelines on a device and resolves their draws from a
// registry and the mirrors of its types.
//
// Thread Safety: Build, Release and Close are serialized. Draws and
// Execute read component stores and must not race with writers of the
// bound types; the scheduler guarantees this.
type Builder struct {
	mu      sync.Mutex
	device  gpucore.Device
	reg     *component.Registry
	mirrors *mirror.Set

	format  gpucore.TextureFormat
	formats map[string]gpucore.TextureFormat

	pipelines map[string]*Pipeline
	order     []*Pipeline
	closed    bool
}

// NewBuilder creates a builder. The default target format is RGBA8Unorm.
func NewBuilder(device gpucore.Device, reg *component.Registry, mirrors *mirror.Set, opts ...Option) *Builder {
	b := &Builder{
		device:    device,
		reg:       reg,
		mirrors:   mirrors,
		format:    gpucore.TextureFormatRGBA8Unorm,
		formats:   make(map[string]gpucore.TextureFormat),
		pipelines: make(map[string]*Pipeline),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Format returns the color format used for targetType.
func (b *Builder) Format(targetType string) gpucore.TextureFormat {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.formatLocked(targetType)
}

func (b *Builder) formatLocked(targetType string) gpucore.TextureFormat {
	if f, ok := b.formats[targetType]; ok {
		return f
	}
	return b.format
}

// Build validates a shader pair and creates its pipeline. A pipeline built
// earlier under the same name stays valid until it is released, so a
// caller can swap pipelines only once a whole reload succeeded.
func (b *Builder) Build(vs, fs *job.Descriptor) (*Pipeline, error) {
	if vs == nil || fs == nil {
		return nil, fmt.Errorf("%w: nil stage", ErrInvalidPipeline)
	}
	if vs.Kind != job.KindVertexShader || fs.Kind != job.KindFragmentShader {
		return nil, fmt.Errorf("%w: %s and %s are not a vertex/fragment pair", ErrInvalidPipeline, vs.Key(), fs.Key())
	}
	if vs.Name != fs.Name {
		return nil, fmt.Errorf("%w: stages %s and %s have different names", ErrInvalidPipeline, vs.Key(), fs.Key())
	}
	if out := vs.Outputs(); len(out) > 0 {
		return nil, fmt.Errorf("%w: vertex stage %s writes %v", ErrInvalidPipeline, vs.Name, out)
	}

	p := &Pipeline{name: vs.Name, draw: vs.Draw, blend: fs.Draw.Blend, clear: fs.Draw.Clear}
	if err := b.resolve(p, vs, fs); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, gpucore.ErrDeviceClosed
	}
	for _, t := range p.layout.Targets {
		p.formats = append(p.formats, b.formatLocked(t))
	}
	if err := b.create(p, vs, fs); err != nil {
		return nil, err
	}

	b.pipelines[p.name] = p
	b.order = append(b.order, p)
	slogger().Debug("pipeline: built",
		"pipeline", p.name, "types", p.layout.Types, "targets", p.layout.Targets)
	return p, nil
}

// resolve fills the binding table, targets and draw sources of p.
func (b *Builder) resolve(p *Pipeline, vs, fs *job.Descriptor) error {
	firstRead := ""
	for _, d := range []*job.Descriptor{vs, fs} {
		for _, name := range d.Inputs() {
			id, err := b.reg.Resolve(name)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidPipeline, d.Key(), err)
			}
			if b.reg.Type(id).Kind == component.KindRenderTarget {
				continue
			}
			if d == vs && firstRead == "" {
				firstRead = name
			}
			if slices.Contains(p.types, id) {
				continue
			}
			k := uint32(len(p.types))
			p.types = append(p.types, id)
			p.layout.Types = append(p.layout.Types, name)
			p.layout.Bindings = append(p.layout.Bindings,
				Binding{Group: 1, Binding: 2 * k, Type: name},
				Binding{Group: 1, Binding: 2*k + 1, Type: name, Index: true},
			)
		}
	}

	for _, name := range fs.Outputs() {
		id, err := b.reg.Resolve(name)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidPipeline, fs.Key(), err)
		}
		if b.reg.Type(id).Kind != component.KindRenderTarget {
			return fmt.Errorf("%w: fragment stage %s writes %s, which is not a render target", ErrInvalidPipeline, fs.Name, name)
		}
		p.targets = append(p.targets, id)
		p.layout.Targets = append(p.layout.Targets, name)
	}
	if len(p.targets) == 0 {
		return fmt.Errorf("%w: fragment stage %s writes no render target", ErrInvalidPipeline, fs.Name)
	}

	driver := vs.Draw.Vertices
	if driver == "" {
		driver = firstRead
	}
	if driver != "" {
		id, ok := b.reg.Lookup(driver)
		if !ok || !slices.Contains(p.types, id) {
			return fmt.Errorf("%w: vertex source %s is not read by %s", ErrInvalidPipeline, driver, vs.Name)
		}
		p.driving, p.hasDriver = id, true
	}
	if vs.Draw.Instances != "" {
		id, err := b.reg.Resolve(vs.Draw.Instances)
		if err != nil {
			return fmt.Errorf("%w: %s instances: %w", ErrInvalidPipeline, vs.Name, err)
		}
		p.instances, p.byInst = id, true
	}
	return nil
}

// create must be called with mu held.
func (b *Builder) create(p *Pipeline, vs, fs *job.Descriptor) error {
	vsMod, err := b.device.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: vs.Key(), WGSL: vs.Shader.Source})
	if err != nil {
		return fmt.Errorf("pipeline %s: vertex module: %w", p.name, err)
	}
	p.modules = append(p.modules, vsMod)
	fsMod := vsMod
	if fs.Shader.Source != vs.Shader.Source {
		fsMod, err = b.device.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: fs.Key(), WGSL: fs.Shader.Source})
		if err != nil {
			b.destroyModules(p)
			return fmt.Errorf("pipeline %s: fragment module: %w", p.name, err)
		}
		p.modules = append(p.modules, fsMod)
	}

	targets := make([]gpucore.ColorTarget, len(p.formats))
	for i, f := range p.formats {
		targets[i] = gpucore.ColorTarget{Format: f, Blend: p.blend}
	}
	id, err := b.device.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Label:           p.name,
		Vertex:          gpucore.ShaderStage{Module: vsMod, EntryPoint: entry(vs.Shader.EntryPoint, DefaultVertexEntry)},
		Fragment:        gpucore.ShaderStage{Module: fsMod, EntryPoint: entry(fs.Shader.EntryPoint, DefaultFragmentEntry)},
		StorageBindings: 2 * len(p.types),
		Topology:        vs.Draw.Topology,
		Targets:         targets,
	})
	if err != nil {
		b.destroyModules(p)
		return fmt.Errorf("pipeline %s: %w", p.name, err)
	}
	p.id = id
	return nil
}

func entry(name, def string) string {
	if name == "" {
		return def
	}
	return name
}

func (b *Builder) destroyModules(p *Pipeline) {
	for _, m := range p.modules {
		b.device.DestroyShaderModule(m)
	}
	p.modules = nil
}

// Pipeline returns the pipeline built for name.
func (b *Builder) Pipeline(name string) (*Pipeline, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pipelines[name]
	return p, ok
}

// Len returns the number of live pipelines.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Release destroys p and its shader modules. Releasing twice is a no-op.
func (b *Builder) Release(p *Pipeline) {
	if p == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseLocked(p)
}

func (b *Builder) releaseLocked(p *Pipeline) {
	i := slices.Index(b.order, p)
	if i < 0 {
		return
	}
	b.order = slices.Delete(b.order, i, i+1)
	if b.pipelines[p.name] == p {
		delete(b.pipelines, p.name)
		// Fall back to the newest survivor of the same name.
		for j := len(b.order) - 1; j >= 0; j-- {
			if b.order[j].name == p.name {
				b.pipelines[p.name] = b.order[j]
				break
			}
		}
	}
	b.device.DestroyRenderPipeline(p.id)
	b.destroyModules(p)
}

// Close destroys every pipeline in reverse creation order. Render target
// textures are released through ReleaseTargets.
func (b *Builder) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.order) - 1; i >= 0; i-- {
		p := b.order[i]
		b.device.DestroyRenderPipeline(p.id)
		b.destroyModules(p)
	}
	b.order = nil
	clear(b.pipelines)
	b.closed = true
}
