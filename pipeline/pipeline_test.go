package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/gecs/backend"
	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/gpucore"
	"github.com/gogpu/gecs/job"
	"github.com/gogpu/gecs/mirror"
)

const testWGSL = `
@vertex fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
	return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}
@fragment fn fs_main() -> @location(0) vec4<f32> {
	return vec4<f32>(1.0, 1.0, 1.0, 1.0);
}
`

type fixture struct {
	dev      *backend.SoftwareDevice
	reg      *component.Registry
	mirrors  *mirror.Set
	b        *Builder
	entities *component.Allocator
	vp       component.Entity
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		dev:      backend.NewSoftwareDevice(),
		reg:      component.NewRegistry(),
		entities: component.NewAllocator(16),
	}
	for _, typ := range []component.Type{
		ViewportDimensionsComponent(),
		TargetType("Color"),
		{Name: "VertexPosition", Size: 16, List: true},
		{Name: "Transform", Size: 64},
		{Name: "Material", Size: 16},
	} {
		if _, err := f.reg.Register(typ); err != nil {
			t.Fatalf("Register(%s): %v", typ.Name, err)
		}
	}
	f.mirrors = mirror.NewSet(f.dev, f.reg)
	f.b = NewBuilder(f.dev, f.reg, f.mirrors, opts...)
	t.Cleanup(func() {
		f.b.Close()
		f.mirrors.Close()
	})

	vps := component.NewAllocator(4)
	vp, err := vps.Create()
	if err != nil {
		t.Fatalf("viewport: %v", err)
	}
	f.vp = vp
	f.setDims(t, 64, 32)
	return f
}

func (f *fixture) store(t *testing.T, name string) *component.Store {
	t.Helper()
	id, err := f.reg.Resolve(name)
	if err != nil {
		t.Fatal(err)
	}
	st, err := f.reg.Store(id)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func (f *fixture) list(t *testing.T, name string) *component.ListStore {
	t.Helper()
	id, err := f.reg.Resolve(name)
	if err != nil {
		t.Fatal(err)
	}
	ls, err := f.reg.List(id)
	if err != nil {
		t.Fatal(err)
	}
	return ls
}

func (f *fixture) setDims(t *testing.T, w, h uint32) {
	t.Helper()
	if err := component.Set(f.store(t, ViewportDimensionsType), f.vp, ViewportDimensions{Width: w, Height: h, Scale: 1}); err != nil {
		t.Fatalf("set dimensions: %v", err)
	}
}

func (f *fixture) entity(t *testing.T) component.Entity {
	t.Helper()
	e, err := f.entities.Create()
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func (f *fixture) sync(t *testing.T, names ...string) {
	t.Helper()
	ids := make([]component.TypeID, len(names))
	for i, n := range names {
		ids[i], _ = f.reg.Lookup(n)
	}
	if err := f.mirrors.Sync(ids...); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

// runTargets runs a TargetJob for the fixture viewport.
func (f *fixture) runTargets(t *testing.T, d *job.Descriptor) error {
	t.Helper()
	return d.Run(context.Background(), &job.Context{
		Job:       d,
		Registry:  f.reg,
		Viewports: []component.Entity{f.vp},
		Tick:      1,
	})
}

func (f *fixture) target(t *testing.T) Target {
	t.Helper()
	tg, err := component.Get[Target](f.store(t, "Color"), f.vp)
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	return tg
}

func stages(name string, vsAccess, fsAccess []job.Access, draw job.Draw) (*job.Descriptor, *job.Descriptor) {
	vs := &job.Descriptor{
		Name:   name,
		Kind:   job.KindVertexShader,
		Access: vsAccess,
		Shader: job.Shader{Source: testWGSL},
		Draw:   draw,
	}
	fs := &job.Descriptor{
		Name:   name,
		Kind:   job.KindFragmentShader,
		Access: fsAccess,
		Shader: job.Shader{Source: testWGSL},
	}
	return vs, fs
}

func TestBuildLayout(t *testing.T) {
	f := newFixture(t)
	vs, fs := stages("mesh",
		[]job.Access{job.R("VertexPosition"), job.R("Transform")},
		[]job.Access{job.R("Transform"), job.R("Material"), job.W("Color")},
		job.Draw{Topology: gpucore.TopologyTriangleStrip},
	)
	fs.Draw.Blend = gpucore.BlendAdd

	p, err := f.b.Build(vs, fs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	l := p.Layout()
	wantTypes := []string{"VertexPosition", "Transform", "Material"}
	if len(l.Types) != len(wantTypes) {
		t.Fatalf("Types = %v, want %v", l.Types, wantTypes)
	}
	for i, name := range wantTypes {
		if l.Types[i] != name {
			t.Errorf("Types[%d] = %s, want %s", i, l.Types[i], name)
		}
		data, index := l.Bindings[2*i], l.Bindings[2*i+1]
		if data.Group != 1 || data.Binding != uint32(2*i) || data.Type != name || data.Index {
			t.Errorf("data binding %d = %+v", i, data)
		}
		if index.Binding != uint32(2*i+1) || !index.Index {
			t.Errorf("index binding %d = %+v", i, index)
		}
	}
	if len(l.Targets) != 1 || l.Targets[0] != "Color" {
		t.Errorf("Targets = %v", l.Targets)
	}
	if len(p.modules) != 1 {
		t.Errorf("modules = %d, want one shared module", len(p.modules))
	}

	desc, ok := f.dev.Pipeline(p.ID())
	if !ok {
		t.Fatal("pipeline not on device")
	}
	if desc.StorageBindings != 6 {
		t.Errorf("StorageBindings = %d, want 6", desc.StorageBindings)
	}
	if desc.Topology != gpucore.TopologyTriangleStrip {
		t.Errorf("Topology = %v", desc.Topology)
	}
	if desc.Vertex.EntryPoint != DefaultVertexEntry || desc.Fragment.EntryPoint != DefaultFragmentEntry {
		t.Errorf("entry points = %s, %s", desc.Vertex.EntryPoint, desc.Fragment.EntryPoint)
	}
	if len(desc.Targets) != 1 || desc.Targets[0].Blend != gpucore.BlendAdd ||
		desc.Targets[0].Format != gpucore.TextureFormatRGBA8Unorm {
		t.Errorf("Targets = %+v", desc.Targets)
	}
}

func TestBuildSeparateModules(t *testing.T) {
	f := newFixture(t)
	vs, fs := stages("split", []job.Access{job.R("Transform")}, []job.Access{job.W("Color")}, job.Draw{Count: 3})
	fs.Shader = job.Shader{Source: testWGSL + "\n// fragment", EntryPoint: "main_fs"}

	p, err := f.b.Build(vs, fs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.modules) != 2 {
		t.Errorf("modules = %d, want 2", len(p.modules))
	}
	desc, _ := f.dev.Pipeline(p.ID())
	if desc.Fragment.EntryPoint != "main_fs" {
		t.Errorf("fragment entry = %s", desc.Fragment.EntryPoint)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(vs, fs *job.Descriptor)
	}{
		{"vertex writes", func(vs, _ *job.Descriptor) { vs.Access = append(vs.Access, job.W("Material")) }},
		{"fragment writes data", func(_, fs *job.Descriptor) { fs.Access = []job.Access{job.W("Material")} }},
		{"no target", func(_, fs *job.Descriptor) { fs.Access = []job.Access{job.R("Material")} }},
		{"names differ", func(_, fs *job.Descriptor) { fs.Name = "other" }},
		{"kinds swapped", func(vs, fs *job.Descriptor) { vs.Kind, fs.Kind = fs.Kind, vs.Kind }},
		{"vertex source not read", func(vs, _ *job.Descriptor) { vs.Draw.Vertices = "Material" }},
		{"unknown input", func(vs, _ *job.Descriptor) { vs.Access = []job.Access{job.R("Missing")} }},
		{"unknown instances", func(vs, _ *job.Descriptor) { vs.Draw.Instances = "Missing" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			vs, fs := stages("bad", []job.Access{job.R("Transform")}, []job.Access{job.W("Color")}, job.Draw{Count: 3})
			tt.mutate(vs, fs)
			if _, err := f.b.Build(vs, fs); !errors.Is(err, ErrInvalidPipeline) {
				t.Errorf("Build err = %v, want ErrInvalidPipeline", err)
			}
			if f.b.Len() != 0 {
				t.Errorf("Len = %d after failed build", f.b.Len())
			}
		})
	}
}

func TestBuildSameNameKeepsPrevious(t *testing.T) {
	f := newFixture(t)
	vs, fs := stages("mesh", []job.Access{job.R("Transform")}, []job.Access{job.W("Color")}, job.Draw{Count: 3})
	first, err := f.b.Build(vs, fs)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.b.Build(vs, fs)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := f.b.Pipeline("mesh"); got != second {
		t.Error("Pipeline(mesh) is not the newest build")
	}
	if _, ok := f.dev.Pipeline(first.ID()); !ok {
		t.Error("previous pipeline released before Release")
	}

	f.b.Release(second)
	if got, _ := f.b.Pipeline("mesh"); got != first {
		t.Error("releasing the newest build did not fall back to the previous one")
	}
	f.b.Release(first)
	if _, ok := f.b.Pipeline("mesh"); ok || f.b.Len() != 0 {
		t.Errorf("Len = %d after releasing both", f.b.Len())
	}
}

func TestDrawsListVertices(t *testing.T) {
	f := newFixture(t)
	verts := f.list(t, "VertexPosition")
	quad := f.entity(t)
	for i := range 4 {
		if err := component.Append(verts, quad, [4]float32{float32(i), 0, 0, 1}); err != nil {
			t.Fatal(err)
		}
	}
	empty := f.entity(t)
	if err := component.ReplaceList(verts, empty, [][4]float32{}); err != nil {
		t.Fatal(err)
	}
	f.sync(t, "VertexPosition")

	vs, fs := stages("mesh", []job.Access{job.R("VertexPosition")}, []job.Access{job.W("Color")},
		job.Draw{Topology: gpucore.TopologyTriangleStrip})
	p, err := f.b.Build(vs, fs)
	if err != nil {
		t.Fatal(err)
	}
	draws, err := f.b.Draws(p, f.vp)
	if err != nil {
		t.Fatalf("Draws: %v", err)
	}
	if len(draws) != 1 {
		t.Fatalf("draws = %d, want 1", len(draws))
	}
	d := draws[0]
	if d.VertexCount != 4 || d.InstanceCount != 1 || d.EntityIndex != quad.Index() {
		t.Errorf("draw = %+v", d)
	}
	data, index, _ := f.mirrors.Bindings(p.Types()[0])
	if len(d.Storage) != 2 || d.Storage[0] != data || d.Storage[1] != index {
		t.Errorf("Storage = %v, want [%d %d]", d.Storage, data, index)
	}
}

func TestDrawsEntityStore(t *testing.T) {
	f := newFixture(t)
	tr := f.store(t, "Transform")
	a, b := f.entity(t), f.entity(t)
	for _, e := range []component.Entity{a, b} {
		if err := component.Set(tr, e, [16]float32{}); err != nil {
			t.Fatal(err)
		}
	}
	f.sync(t, "Transform")

	vs, fs := stages("boxes", []job.Access{job.R("Transform")}, []job.Access{job.W("Color")}, job.Draw{})
	p, err := f.b.Build(vs, fs)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.b.Draws(p, f.vp); !errors.Is(err, ErrMissingCount) {
		t.Fatalf("Draws without Count err = %v, want ErrMissingCount", err)
	}

	f.b.Release(p)
	vs.Draw.Count = 36
	if p, err = f.b.Build(vs, fs); err != nil {
		t.Fatal(err)
	}
	draws, err := f.b.Draws(p, f.vp)
	if err != nil {
		t.Fatalf("Draws: %v", err)
	}
	if len(draws) != 2 {
		t.Fatalf("draws = %d, want 2", len(draws))
	}
	for i, e := range []component.Entity{a, b} {
		if draws[i].EntityIndex != e.Index() || draws[i].VertexCount != 36 {
			t.Errorf("draw %d = %+v", i, draws[i])
		}
	}
}

func TestDrawsInstancesAndNoSource(t *testing.T) {
	f := newFixture(t)
	tr := f.store(t, "Transform")
	for range 5 {
		if err := component.Set(tr, f.entity(t), [16]float32{}); err != nil {
			t.Fatal(err)
		}
	}
	f.sync(t, "Transform")

	vs, fs := stages("inst", []job.Access{job.R("Transform")}, []job.Access{job.W("Color")},
		job.Draw{Count: 6, Instances: "Transform"})
	p, err := f.b.Build(vs, fs)
	if err != nil {
		t.Fatal(err)
	}
	draws, err := f.b.Draws(p, f.vp)
	if err != nil {
		t.Fatal(err)
	}
	if len(draws) != 1 || draws[0].InstanceCount != 5 || draws[0].VertexCount != 6 {
		t.Errorf("instanced draws = %+v", draws)
	}

	vs, fs = stages("fullscreen", nil, []job.Access{job.W("Color")}, job.Draw{Count: 3})
	p, err = f.b.Build(vs, fs)
	if err != nil {
		t.Fatal(err)
	}
	draws, err = f.b.Draws(p, f.vp)
	if err != nil {
		t.Fatal(err)
	}
	if len(draws) != 1 || draws[0].VertexCount != 3 || len(draws[0].Storage) != 0 {
		t.Errorf("fullscreen draws = %+v", draws)
	}

	vs.Draw.Count = 0
	if p, err = f.b.Build(vs, fs); err != nil {
		t.Fatal(err)
	}
	if _, err := f.b.Draws(p, f.vp); !errors.Is(err, ErrMissingCount) {
		t.Errorf("no source, no Count err = %v", err)
	}
}

func TestDrawsNotSynced(t *testing.T) {
	f := newFixture(t)
	vs, fs := stages("mesh", []job.Access{job.R("Transform")}, []job.Access{job.W("Color")}, job.Draw{Count: 3})
	p, err := f.b.Build(vs, fs)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.b.Draws(p, f.vp); !errors.Is(err, ErrNotSynced) {
		t.Errorf("Draws err = %v, want ErrNotSynced", err)
	}
}

func TestReleaseAndClose(t *testing.T) {
	f := newFixture(t)
	vs, fs := stages("a", nil, []job.Access{job.W("Color")}, job.Draw{Count: 3})
	a, err := f.b.Build(vs, fs)
	if err != nil {
		t.Fatal(err)
	}
	vs, fs = stages("b", nil, []job.Access{job.W("Color")}, job.Draw{Count: 3})
	b, err := f.b.Build(vs, fs)
	if err != nil {
		t.Fatal(err)
	}

	f.b.Release(a)
	f.b.Release(a)
	if _, ok := f.dev.Pipeline(a.ID()); ok {
		t.Error("released pipeline still on device")
	}
	if _, ok := f.b.Pipeline("a"); ok {
		t.Error("released pipeline still registered")
	}

	f.b.Close()
	if _, ok := f.dev.Pipeline(b.ID()); ok {
		t.Error("pipeline survived Close")
	}
	if _, err := f.b.Build(vs, fs); !errors.Is(err, gpucore.ErrDeviceClosed) {
		t.Errorf("Build after Close err = %v", err)
	}
}
