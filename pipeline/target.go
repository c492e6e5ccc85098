package pipeline

import (
	"context"
	"fmt"

	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/gpucore"
	"github.com/gogpu/gecs/job"
)

// ViewportDimensionsType is the name of the built-in viewport type.
const ViewportDimensionsType = "ViewportDimensions"

// ViewportDimensions is the value of the built-in viewport-scoped type.
type ViewportDimensions struct {
	Width  uint32
	Height uint32
	Scale  float32
	_      uint32
}

// ViewportDimensionsComponent returns the schema of ViewportDimensions.
func ViewportDimensionsComponent() component.Type {
	return component.Type{
		Name:  ViewportDimensionsType,
		Size:  16,
		Scope: component.ScopeViewport,
		Fields: []component.Field{
			{Name: "width", Format: component.FormatU32, Lanes: 1, Offset: 0},
			{Name: "height", Format: component.FormatU32, Lanes: 1, Offset: 4},
			{Name: "scale", Format: component.FormatF32, Lanes: 1, Offset: 8},
		},
	}
}

// Target is the value of a render-target component.
type Target struct {
	Texture gpucore.TextureID
	Width   uint32
	Height  uint32
	Format  gpucore.TextureFormat
	_       uint32
}

// TargetType returns the schema of a render-target type named name.
func TargetType(name string) component.Type {
	return component.Type{
		Name:  name,
		Size:  24,
		Scope: component.ScopeViewport,
		Kind:  component.KindRenderTarget,
	}
}

// TargetJob returns an update job that keeps one render target per live
// viewport sized to its ViewportDimensions. A target whose size or format
// no longer matches is recreated and the old texture released. The format
// is also recorded as the color target format of pipelines drawing into
// targetType.
func (b *Builder) TargetJob(name, targetType string, format gpucore.TextureFormat) *job.Descriptor {
	b.mu.Lock()
	b.formats[targetType] = format
	b.mu.Unlock()

	return &job.Descriptor{
		Name:   name,
		Kind:   job.KindUpdate,
		Access: []job.Access{job.R(ViewportDimensionsType), job.W(targetType)},
		Run: func(_ context.Context, c *job.Context) error {
			dims, err := c.ReadStore(ViewportDimensionsType)
			if err != nil {
				return err
			}
			targets, err := c.WriteStore(targetType)
			if err != nil {
				return err
			}
			for _, vp := range c.Viewports {
				d, err := component.Get[ViewportDimensions](dims, vp)
				if err != nil {
					return fmt.Errorf("viewport %v: %w", vp, err)
				}
				if err := b.ensureTarget(targets, vp, d, format); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (b *Builder) ensureTarget(targets *component.Store, vp component.Entity, d ViewportDimensions, format gpucore.TextureFormat) error {
	name := targets.Type().Name
	if d.Width == 0 || d.Height == 0 {
		return fmt.Errorf("%w: %s for viewport %v is %dx%d", ErrZeroSize, name, vp, d.Width, d.Height)
	}
	old, err := component.Get[Target](targets, vp)
	present := err == nil
	if present && old.Width == d.Width && old.Height == d.Height && old.Format == format {
		return nil
	}

	tex, err := b.device.CreateTexture(&gpucore.TextureDesc{
		Label:  fmt.Sprintf("%s_%d", name, vp.Index()),
		Width:  d.Width,
		Height: d.Height,
		Format: format,
	})
	if err != nil {
		return fmt.Errorf("create %s for viewport %v: %w", name, vp, err)
	}
	if err := component.Set(targets, vp, Target{Texture: tex, Width: d.Width, Height: d.Height, Format: format}); err != nil {
		b.device.DestroyTexture(tex)
		return err
	}
	if present {
		b.device.DestroyTexture(old.Texture)
		slogger().Debug("pipeline: render target recreated",
			"target", name, "viewport", vp, "width", d.Width, "height", d.Height)
	}
	return nil
}

// ReleaseTargets destroys the textures of every render target held by
// viewport and removes the components.
func (b *Builder) ReleaseTargets(viewport component.Entity) {
	for _, st := range b.reg.Stores(component.ScopeViewport) {
		if st.Type().Kind != component.KindRenderTarget {
			continue
		}
		s, ok := st.(*component.Store)
		if !ok {
			continue
		}
		if t, err := component.Get[Target](s, viewport); err == nil {
			b.device.DestroyTexture(t.Texture)
			s.Remove(viewport)
		}
	}
}
