package pipeline

import (
	"fmt"
	"sync"

	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/gpucore"
)

// Frame tracks which targets have been cleared during one tick.
//
// The first pass drawing into a target in a frame clears it and later
// passes load it, so additive pipelines accumulate into the same image.
type Frame struct {
	mu      sync.Mutex
	cleared map[gpucore.TextureID]bool
	passes  int
}

// NewFrame returns an empty frame.
func NewFrame() *Frame {
	return &Frame{cleared: make(map[gpucore.TextureID]bool)}
}

// claim reports whether tex has not yet been cleared and marks it cleared.
func (f *Frame) claim(tex gpucore.TextureID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cleared[tex] {
		return false
	}
	f.cleared[tex] = true
	return true
}

// Passes returns the number of passes submitted in the frame.
func (f *Frame) Passes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.passes
}

// Draws resolves the draw calls of p for viewport. Every draw binds the
// mirrored buffers of the pipeline's types in binding order.
func (b *Builder) Draws(p *Pipeline, viewport component.Entity) ([]gpucore.Draw, error) {
	storage := make([]gpucore.BufferID, 0, 2*len(p.types))
	for i, id := range p.types {
		data, index, ok := b.mirrors.Bindings(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s in %s", ErrNotSynced, p.layout.Types[i], p.name)
		}
		storage = append(storage, data, index)
	}

	d := p.draw
	instances := max(d.InstanceCount, 1)
	base := gpucore.Draw{Pipeline: p.id, Storage: storage, VertexCount: d.Count, InstanceCount: instances}

	switch {
	case p.byInst:
		if d.Count == 0 {
			return nil, fmt.Errorf("%w: %s draws instances of %s", ErrMissingCount, p.name, d.Instances)
		}
		st := b.reg.Storage(p.instances)
		if st == nil || st.Len() == 0 {
			return nil, nil
		}
		base.InstanceCount = uint32(st.Len())
		return []gpucore.Draw{base}, nil

	case !p.hasDriver:
		if d.Count == 0 {
			return nil, fmt.Errorf("%w: %s has no vertex source", ErrMissingCount, p.name)
		}
		return []gpucore.Draw{base}, nil
	}

	st := b.reg.Storage(p.driving)
	entities := drivingEntities(st, viewport)
	switch s := st.(type) {
	case *component.ListStore:
		draws := make([]gpucore.Draw, 0, len(entities))
		for _, e := range entities {
			n := d.Count
			if n == 0 {
				n = uint32(s.Count(e))
			}
			if n == 0 {
				continue
			}
			dr := base
			dr.EntityIndex = e.Index()
			dr.VertexCount = n
			draws = append(draws, dr)
		}
		return draws, nil
	default:
		if len(entities) == 0 {
			return nil, nil
		}
		if d.Count == 0 {
			return nil, fmt.Errorf("%w: %s draws one per %s", ErrMissingCount, p.name, st.Type().Name)
		}
		draws := make([]gpucore.Draw, len(entities))
		for i, e := range entities {
			dr := base
			dr.EntityIndex = e.Index()
			draws[i] = dr
		}
		return draws, nil
	}
}

// drivingEntities returns the owners of st, or only viewport for a
// viewport-scoped type.
func drivingEntities(st component.Storage, viewport component.Entity) []component.Entity {
	if st.Type().Scope == component.ScopeViewport {
		if st.Has(viewport) {
			return []component.Entity{viewport}
		}
		return nil
	}
	switch s := st.(type) {
	case *component.Store:
		return s.Entities()
	case *component.ListStore:
		return s.Entities()
	}
	return nil
}

// Execute encodes one render pass of p into viewport's targets.
//
// A pass with no draws is still submitted when it would clear a target,
// so every target shows a cleared image after its first pass of a frame.
func (b *Builder) Execute(p *Pipeline, viewport component.Entity, frame *Frame) error {
	textures := make([]gpucore.TextureID, len(p.targets))
	for i, id := range p.targets {
		st, err := b.reg.Store(id)
		if err != nil {
			return err
		}
		t, err := component.Get[Target](st, viewport)
		if err != nil {
			return fmt.Errorf("%w: %s for viewport %v: %w", ErrNoTarget, p.layout.Targets[i], viewport, err)
		}
		if t.Format != p.formats[i] {
			return fmt.Errorf("%w: %s is %v, %s renders %v",
				ErrTargetFormat, p.layout.Targets[i], t.Format, p.name, p.formats[i])
		}
		textures[i] = t.Texture
	}

	draws, err := b.Draws(p, viewport)
	if err != nil {
		return err
	}

	clears := false
	attachments := make([]gpucore.Attachment, len(textures))
	for i, tex := range textures {
		attachments[i] = gpucore.Attachment{Texture: tex, LoadOp: gpucore.LoadOpLoad}
		if frame.claim(tex) {
			attachments[i].LoadOp = gpucore.LoadOpClear
			attachments[i].Clear = p.clear
			clears = true
		}
	}
	if len(draws) == 0 && !clears {
		return nil
	}

	if err := b.device.Submit(&gpucore.RenderPass{
		Label:       fmt.Sprintf("%s/%v", p.name, viewport),
		Attachments: attachments,
		Draws:       draws,
	}); err != nil {
		return fmt.Errorf("pipeline %s: %w", p.name, err)
	}
	frame.mu.Lock()
	frame.passes++
	frame.mu.Unlock()
	return nil
}
