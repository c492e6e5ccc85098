package script

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/job"
)

// UpdateFunc is the global a script must define.
const UpdateFunc = "update"

// Script is one compiled Lua chunk with its own VM.
//
// Thread Safety: Run calls are serialized; a VM is never shared between
// goroutines.
type Script struct {
	mu   sync.Mutex
	name string
	vm   *lua.LState

	// Set only while update runs.
	jc     *job.Context
	failed error
}

// Compile loads source into a sandboxed VM (base, table, string and math
// libraries only) and checks that it defines update.
func Compile(name, source string) (*Script, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := vm.CallByParam(lua.P{Fn: vm.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			vm.Close()
			return nil, fmt.Errorf("script %s: open %s: %w", name, lib.name, err)
		}
	}

	s := &Script{name: name, vm: vm}
	for fn, impl := range map[string]lua.LGFunction{
		"get":       s.luaGet,
		"set":       s.luaSet,
		"remove":    s.luaRemove,
		"each":      s.luaEach,
		"viewports": s.luaViewports,
		"log":       s.luaLog,
	} {
		vm.SetGlobal(fn, vm.NewFunction(impl))
	}

	if err := vm.DoString(source); err != nil {
		vm.Close()
		return nil, fmt.Errorf("script %s: %w", name, err)
	}
	if _, ok := vm.GetGlobal(UpdateFunc).(*lua.LFunction); !ok {
		vm.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoUpdate, name)
	}
	return s, nil
}

// CompileFile compiles the script at path.
func CompileFile(name, path string) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", name, err)
	}
	return Compile(name, string(src))
}

// Name returns the script name.
func (s *Script) Name() string { return s.name }

// Descriptor returns an Update job running the script.
func (s *Script) Descriptor(access []job.Access, after []string, continuous bool) *job.Descriptor {
	return &job.Descriptor{
		Name:       s.name,
		Kind:       job.KindUpdate,
		Access:     slices.Clone(access),
		After:      slices.Clone(after),
		Continuous: continuous,
		Run:        s.Run,
	}
}

// Run calls update(tick, dt, time) with the component API bound to c.
// dt and time are in seconds.
func (s *Script) Run(ctx context.Context, c *job.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vm == nil {
		return fmt.Errorf("%w: %s", ErrClosed, s.name)
	}

	s.jc, s.failed = c, nil
	s.vm.SetContext(ctx)
	defer func() {
		s.vm.RemoveContext()
		s.jc = nil
	}()

	err := s.vm.CallByParam(lua.P{
		Fn:      s.vm.GetGlobal(UpdateFunc),
		NRet:    0,
		Protect: true,
	}, lua.LNumber(c.Tick), lua.LNumber(c.Delta.Seconds()), lua.LNumber(c.Time.Seconds()))
	if err == nil {
		return nil
	}
	if s.failed != nil {
		return fmt.Errorf("%w: %s: %w", ErrRuntime, s.name, s.failed)
	}
	return fmt.Errorf("%w: %s: %v", ErrRuntime, s.name, err)
}

// Close releases the VM. Run fails afterwards.
func (s *Script) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vm != nil {
		s.vm.Close()
		s.vm = nil
	}
}

// raise records err so Run can return it unflattened, then aborts update.
func (s *Script) raise(L *lua.LState, err error) int {
	s.failed = err
	L.RaiseError("%v", err)
	return 0
}

func (s *Script) checkEntity(L *lua.LState, n int) component.Entity {
	return component.Entity(uint32(int64(L.CheckNumber(n))))
}

// storage returns the store of typ through the job's declared access.
func (s *Script) storage(L *lua.LState, typ string, write bool) (component.Storage, bool) {
	if s.jc == nil {
		s.raise(L, ErrOutsideUpdate)
		return nil, false
	}
	var (
		st  component.Storage
		err error
	)
	if write {
		st, err = s.jc.Write(typ)
	} else {
		st, err = s.jc.Read(typ)
	}
	if err == nil && len(st.Type().Fields) == 0 {
		err = fmt.Errorf("%w: %s", ErrNoFields, typ)
	}
	if err != nil {
		s.raise(L, err)
		return nil, false
	}
	return st, true
}

func (s *Script) luaGet(L *lua.LState) int {
	st, ok := s.storage(L, L.CheckString(1), false)
	if !ok {
		return 0
	}
	e := s.checkEntity(L, 2)
	L.Push(s.value(L, st, e))
	return 1
}

// value returns e's value as a table, nil when absent.
func (s *Script) value(L *lua.LState, st component.Storage, e component.Entity) lua.LValue {
	t := st.Type()
	switch st := st.(type) {
	case *component.Store:
		b, err := st.Get(e)
		if err != nil {
			return lua.LNil
		}
		return decode(L, t, b)
	case *component.ListStore:
		if !st.Has(e) {
			return lua.LNil
		}
		n := st.Count(e)
		arr := L.CreateTable(n, 0)
		for i := range n {
			b, err := st.Get(e, i)
			if err != nil {
				break
			}
			arr.RawSetInt(i+1, decode(L, t, b))
		}
		return arr
	}
	return lua.LNil
}

func (s *Script) luaSet(L *lua.LState) int {
	st, ok := s.storage(L, L.CheckString(1), true)
	if !ok {
		return 0
	}
	e := s.checkEntity(L, 2)
	tbl := L.CheckTable(3)
	t := st.Type()

	var err error
	switch st := st.(type) {
	case *component.Store:
		buf := make([]byte, t.Size)
		if cur, gerr := st.Get(e); gerr == nil {
			copy(buf, cur)
		}
		if err = encode(t, tbl, buf); err == nil {
			err = st.Set(e, buf)
		}
	case *component.ListStore:
		n := tbl.Len()
		buf := make([]byte, n*int(t.Size))
		for i := range n {
			elem, isTable := tbl.RawGetInt(i + 1).(*lua.LTable)
			if !isTable {
				err = fmt.Errorf("%s[%d] is not a table", t.Name, i+1)
				break
			}
			if err = encode(t, elem, buf[i*int(t.Size):(i+1)*int(t.Size)]); err != nil {
				break
			}
		}
		if err == nil {
			err = st.Replace(e, buf)
		}
	}
	if err != nil {
		return s.raise(L, err)
	}
	return 0
}

func (s *Script) luaRemove(L *lua.LState) int {
	st, ok := s.storage(L, L.CheckString(1), true)
	if !ok {
		return 0
	}
	L.Push(lua.LBool(st.Remove(s.checkEntity(L, 2))))
	return 1
}

func (s *Script) luaEach(L *lua.LState) int {
	st, ok := s.storage(L, L.CheckString(1), false)
	if !ok {
		return 0
	}
	fn := L.CheckFunction(2)

	var owners []component.Entity
	switch st := st.(type) {
	case *component.Store:
		owners = slices.Clone(st.Entities())
	case *component.ListStore:
		owners = slices.Clone(st.Entities())
	}
	for _, e := range owners {
		v := s.value(L, st, e)
		if v == lua.LNil {
			continue
		}
		L.Push(fn)
		L.Push(lua.LNumber(uint32(e)))
		L.Push(v)
		L.Call(2, 0)
	}
	return 0
}

func (s *Script) luaViewports(L *lua.LState) int {
	if s.jc == nil {
		return s.raise(L, ErrOutsideUpdate)
	}
	arr := L.CreateTable(len(s.jc.Viewports), 0)
	for i, vp := range s.jc.Viewports {
		arr.RawSetInt(i+1, lua.LNumber(uint32(vp)))
	}
	L.Push(arr)
	return 1
}

func (s *Script) luaLog(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	if s.jc != nil && s.jc.Logger != nil {
		s.jc.Logger.Info(strings.Join(parts, " "), "script", s.name)
	}
	return 0
}
