package pipeline

import (
	"errors"
	"testing"

	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/gpucore"
	"github.com/gogpu/gecs/job"
)

func TestTargetJobCreatesAndRecreates(t *testing.T) {
	f := newFixture(t)
	d := f.b.TargetJob("color-target", "Color", gpucore.TextureFormatRGBA16Float)
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !d.Reads(ViewportDimensionsType) || !d.Writes("Color") {
		t.Errorf("Access = %v", d.Access)
	}
	if got := f.b.Format("Color"); got != gpucore.TextureFormatRGBA16Float {
		t.Errorf("Format(Color) = %v", got)
	}

	if err := f.runTargets(t, d); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := f.target(t)
	tex, ok := f.dev.Texture(first.Texture)
	if !ok {
		t.Fatal("target texture not on device")
	}
	if tex.Desc.Width != 64 || tex.Desc.Height != 32 || tex.Desc.Format != gpucore.TextureFormatRGBA16Float {
		t.Errorf("texture desc = %+v", tex.Desc)
	}

	// Same size keeps the texture.
	if err := f.runTargets(t, d); err != nil {
		t.Fatal(err)
	}
	if f.target(t).Texture != first.Texture {
		t.Error("unchanged size recreated the texture")
	}

	f.setDims(t, 128, 64)
	if err := f.runTargets(t, d); err != nil {
		t.Fatal(err)
	}
	second := f.target(t)
	if second.Texture == first.Texture || second.Width != 128 || second.Height != 64 {
		t.Errorf("resized target = %+v", second)
	}
	if _, ok := f.dev.Texture(first.Texture); ok {
		t.Error("old texture not released")
	}
	if n := f.dev.Stats().Textures; n != 1 {
		t.Errorf("live textures = %d, want 1", n)
	}
}

func TestTargetJobZeroSize(t *testing.T) {
	f := newFixture(t)
	f.setDims(t, 0, 32)
	d := f.b.TargetJob("color-target", "Color", gpucore.TextureFormatRGBA8Unorm)
	if err := f.runTargets(t, d); !errors.Is(err, ErrZeroSize) {
		t.Errorf("run err = %v, want ErrZeroSize", err)
	}
	if f.dev.Stats().Textures != 0 {
		t.Error("texture created for zero-size viewport")
	}
}

func TestReleaseTargets(t *testing.T) {
	f := newFixture(t)
	if err := f.runTargets(t, f.b.TargetJob("color-target", "Color", gpucore.TextureFormatRGBA8Unorm)); err != nil {
		t.Fatal(err)
	}
	tex := f.target(t).Texture

	f.b.ReleaseTargets(f.vp)
	if _, ok := f.dev.Texture(tex); ok {
		t.Error("texture survived ReleaseTargets")
	}
	if f.store(t, "Color").Has(f.vp) {
		t.Error("target component survived ReleaseTargets")
	}
}

func TestExecuteClearsOncePerFrame(t *testing.T) {
	f := newFixture(t)
	if err := f.runTargets(t, f.b.TargetJob("color-target", "Color", gpucore.TextureFormatRGBA8Unorm)); err != nil {
		t.Fatal(err)
	}
	verts := f.list(t, "VertexPosition")
	e := f.entity(t)
	for range 3 {
		if err := component.Append(verts, e, [4]float32{}); err != nil {
			t.Fatal(err)
		}
	}
	f.sync(t, "VertexPosition")

	clearColor := gpucore.Color{R: 0.1, G: 0.2, B: 0.3, A: 1}
	vs, fs := stages("base", []job.Access{job.R("VertexPosition")}, []job.Access{job.W("Color")}, job.Draw{})
	fs.Draw.Clear = clearColor
	base, err := f.b.Build(vs, fs)
	if err != nil {
		t.Fatal(err)
	}
	vs, fs = stages("glow", []job.Access{job.R("VertexPosition")}, []job.Access{job.W("Color")}, job.Draw{})
	fs.Draw.Blend = gpucore.BlendAdd
	glow, err := f.b.Build(vs, fs)
	if err != nil {
		t.Fatal(err)
	}

	frame := NewFrame()
	for _, p := range []*Pipeline{base, glow} {
		if err := f.b.Execute(p, f.vp, frame); err != nil {
			t.Fatalf("Execute(%s): %v", p.Name(), err)
		}
	}
	if frame.Passes() != 2 {
		t.Errorf("Passes = %d, want 2", frame.Passes())
	}
	tex, _ := f.dev.Texture(f.target(t).Texture)
	if tex.Clears != 1 || tex.Loads != 1 || tex.Draws != 2 {
		t.Errorf("texture clears/loads/draws = %d/%d/%d, want 1/1/2", tex.Clears, tex.Loads, tex.Draws)
	}
	if tex.Clear != clearColor {
		t.Errorf("clear color = %+v", tex.Clear)
	}

	// A new frame clears again; a pass with nothing to draw still clears.
	if err := verts.Replace(e, nil); err != nil {
		t.Fatal(err)
	}
	f.sync(t, "VertexPosition")
	frame = NewFrame()
	if err := f.b.Execute(base, f.vp, frame); err != nil {
		t.Fatal(err)
	}
	if err := f.b.Execute(glow, f.vp, frame); err != nil {
		t.Fatal(err)
	}
	if frame.Passes() != 1 {
		t.Errorf("Passes = %d, want only the clearing pass", frame.Passes())
	}
	tex, _ = f.dev.Texture(f.target(t).Texture)
	if tex.Clears != 2 || tex.Loads != 1 {
		t.Errorf("clears/loads = %d/%d, want 2/1", tex.Clears, tex.Loads)
	}
}

func TestExecuteTargetErrors(t *testing.T) {
	f := newFixture(t)
	vs, fs := stages("mesh", nil, []job.Access{job.W("Color")}, job.Draw{Count: 3})
	p, err := f.b.Build(vs, fs)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.b.Execute(p, f.vp, NewFrame()); !errors.Is(err, ErrNoTarget) {
		t.Errorf("Execute without target err = %v, want ErrNoTarget", err)
	}

	if err := f.runTargets(t, f.b.TargetJob("color-target", "Color", gpucore.TextureFormatRGBA32Float)); err != nil {
		t.Fatal(err)
	}
	if err := f.b.Execute(p, f.vp, NewFrame()); !errors.Is(err, ErrTargetFormat) {
		t.Errorf("Execute with stale format err = %v, want ErrTargetFormat", err)
	}
}
