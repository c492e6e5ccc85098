package script

import (
	"context"
	"errors"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/job"
)

type transform struct {
	Position [3]float32
	Scale    float32
}

type vertex struct {
	Pos   [2]float32
	Index uint32
	Delta int32
}

func testRegistry(t *testing.T) *component.Registry {
	t.Helper()
	reg := component.NewRegistry()
	xform := []component.Field{
		{Name: "position", Format: component.FormatF32, Lanes: 3},
		{Name: "scale", Format: component.FormatF32, Lanes: 1},
	}
	size := component.LayoutFields(xform)
	verts := []component.Field{
		{Name: "pos", Format: component.FormatF32, Lanes: 2},
		{Name: "index", Format: component.FormatU32, Lanes: 1},
		{Name: "delta", Format: component.FormatI32, Lanes: 1},
	}
	vsize := component.LayoutFields(verts)
	for _, typ := range []component.Type{
		{Name: "Transform", Size: size, Fields: xform},
		{Name: "LocalToWorld", Size: size, Fields: xform},
		{Name: "Vertices", Size: vsize, List: true, Fields: verts},
		{Name: "Opaque", Size: 16},
	} {
		if _, err := reg.Register(typ); err != nil {
			t.Fatalf("Register(%s): %v", typ.Name, err)
		}
	}
	return reg
}

func store(t *testing.T, reg *component.Registry, name string) *component.Store {
	t.Helper()
	id, _ := reg.Lookup(name)
	st, err := reg.Store(id)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func run(t *testing.T, s *Script, reg *component.Registry, access ...job.Access) error {
	t.Helper()
	d := s.Descriptor(access, nil, false)
	return d.Run(context.Background(), &job.Context{Job: d, Registry: reg, Tick: 7})
}

func luaNumber(e component.Entity) lua.LNumber { return lua.LNumber(uint32(e)) }

func compile(t *testing.T, src string) *Script {
	t.Helper()
	s, err := Compile("test", src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestScriptTransformsEntities(t *testing.T) {
	reg := testRegistry(t)
	src := store(t, reg, "Transform")
	a, b := component.NewEntity(1, 0), component.NewEntity(2, 0)
	if err := component.Set(src, a, transform{Position: [3]float32{1, 2, 3}, Scale: 2}); err != nil {
		t.Fatal(err)
	}
	if err := component.Set(src, b, transform{Position: [3]float32{-1, 0, 4}, Scale: 0.5}); err != nil {
		t.Fatal(err)
	}

	s := compile(t, `
function update(tick)
	each("Transform", function(e, t)
		local p = t.position
		set("LocalToWorld", e, {
			position = { p[1] * t.scale, p[2] * t.scale, p[3] * t.scale + tick },
			scale = 1,
		})
	end)
end
`)
	if err := run(t, s, reg, job.R("Transform"), job.W("LocalToWorld")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	dst := store(t, reg, "LocalToWorld")
	tests := []struct {
		e    component.Entity
		want transform
	}{
		{a, transform{Position: [3]float32{2, 4, 13}, Scale: 1}},
		{b, transform{Position: [3]float32{-0.5, 0, 9}, Scale: 1}},
	}
	for _, tt := range tests {
		got, err := component.Get[transform](dst, tt.e)
		if err != nil {
			t.Fatalf("Get(%v): %v", tt.e, err)
		}
		if got != tt.want {
			t.Errorf("LocalToWorld(%v) = %+v, want %+v", tt.e, got, tt.want)
		}
	}
}

func TestScriptPartialSetKeepsFields(t *testing.T) {
	reg := testRegistry(t)
	st := store(t, reg, "Transform")
	e := component.NewEntity(3, 1)
	if err := component.Set(st, e, transform{Position: [3]float32{1, 1, 1}, Scale: 5}); err != nil {
		t.Fatal(err)
	}
	s := compile(t, `function update() set("Transform", ENTITY, { scale = 9 }) end`)
	s.vm.SetGlobal("ENTITY", luaNumber(e))
	if err := run(t, s, reg, job.W("Transform")); err != nil {
		t.Fatal(err)
	}
	got, _ := component.Get[transform](st, e)
	if got.Position != [3]float32{1, 1, 1} || got.Scale != 9 {
		t.Errorf("Transform = %+v", got)
	}
}

func TestScriptLists(t *testing.T) {
	reg := testRegistry(t)
	e := component.NewEntity(4, 0)
	s := compile(t, `
function update()
	set("Vertices", ENTITY, {
		{ pos = { 0, 0 }, index = 0, delta = -1 },
		{ pos = { 1, 0 }, index = 1, delta = -2 },
		{ pos = { 0, 1 }, index = 2, delta = -3 },
	})
	local vs = get("Vertices", ENTITY)
	COUNT = #vs
	LAST = vs[3].delta
end
`)
	s.vm.SetGlobal("ENTITY", luaNumber(e))
	if err := run(t, s, reg, job.W("Vertices")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	id, _ := reg.Lookup("Vertices")
	ls, _ := reg.List(id)
	if ls.Count(e) != 3 {
		t.Fatalf("Count = %d, want 3", ls.Count(e))
	}
	v, err := component.At[vertex](ls, e, 1)
	if err != nil {
		t.Fatal(err)
	}
	if v != (vertex{Pos: [2]float32{1, 0}, Index: 1, Delta: -2}) {
		t.Errorf("element 1 = %+v", v)
	}
	if got := s.vm.GetGlobal("COUNT").String(); got != "3" {
		t.Errorf("COUNT = %s", got)
	}
	if got := s.vm.GetGlobal("LAST").String(); got != "-3" {
		t.Errorf("LAST = %s", got)
	}
}

func TestScriptErrors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		access []job.Access
		want   error
	}{
		{"undeclared write", `function update() set("LocalToWorld", 1, { scale = 1 }) end`,
			[]job.Access{job.R("Transform")}, job.ErrUndeclaredAccess},
		{"undeclared read", `function update() get("Transform", 1) end`,
			[]job.Access{job.W("LocalToWorld")}, job.ErrUndeclaredAccess},
		{"no field layout", `function update() get("Opaque", 1) end`,
			[]job.Access{job.R("Opaque")}, ErrNoFields},
		{"unknown type", `function update() get("Missing", 1) end`,
			nil, job.ErrUndeclaredAccess},
		{"lua error", `function update() error("boom") end`, nil, ErrRuntime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := compile(t, tt.src)
			err := run(t, s, testRegistry(t), tt.access...)
			if !errors.Is(err, ErrRuntime) || !errors.Is(err, tt.want) {
				t.Errorf("Run err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestScriptUnknownFieldWritesNothing(t *testing.T) {
	reg := testRegistry(t)
	s := compile(t, `function update() set("Transform", 1, { rotation = 1 }) end`)
	if err := run(t, s, reg, job.W("Transform")); !errors.Is(err, ErrRuntime) {
		t.Fatalf("Run err = %v", err)
	}
	if store(t, reg, "Transform").Len() != 0 {
		t.Error("value written despite unknown field")
	}
}

func TestCompileErrors(t *testing.T) {
	if _, err := Compile("empty", `x = 1`); !errors.Is(err, ErrNoUpdate) {
		t.Errorf("missing update err = %v", err)
	}
	if _, err := Compile("syntax", `function update(`); err == nil {
		t.Error("syntax error accepted")
	}
	if _, err := Compile("load-time", `get("Transform", 1) function update() end`); err == nil {
		t.Error("component access at load time accepted")
	}
	if _, err := Compile("sandbox", `os.exit(1) function update() end`); err == nil {
		t.Error("os library reachable")
	}
}

func TestScriptContextAndClose(t *testing.T) {
	reg := testRegistry(t)
	s := compile(t, `function update() while true do end end`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := s.Descriptor(nil, nil, false)
	if err := d.Run(ctx, &job.Context{Job: d, Registry: reg}); !errors.Is(err, ErrRuntime) {
		t.Errorf("cancelled Run err = %v", err)
	}

	s.Close()
	if err := run(t, s, reg); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after Close err = %v", err)
	}
}

func TestScriptReceivesTimeStep(t *testing.T) {
	reg := testRegistry(t)
	s := compile(t, `
function update(tick, dt, time)
	set("LocalToWorld", 1, { position = { tick, time, 0 }, scale = dt })
end
`)
	d := s.Descriptor([]job.Access{job.W("LocalToWorld")}, nil, false)
	err := d.Run(context.Background(), &job.Context{
		Job:      d,
		Registry: reg,
		Tick:     3,
		Delta:    250 * time.Millisecond,
		Time:     1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := component.Get[transform](store(t, reg, "LocalToWorld"), component.Entity(1))
	if err != nil {
		t.Fatal(err)
	}
	if got != (transform{Position: [3]float32{3, 1.5, 0}, Scale: 0.25}) {
		t.Errorf("LocalToWorld = %+v", got)
	}
}
