package script

import (
	"encoding/binary"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/gogpu/gecs/component"
)

// decode converts one raw value to a field table.
func decode(L *lua.LState, t *component.Type, b []byte) *lua.LTable {
	tbl := L.CreateTable(0, len(t.Fields))
	for _, f := range t.Fields {
		lanes := max(f.Lanes, 1)
		if lanes == 1 {
			tbl.RawSetString(f.Name, scalar(f.Format, b[f.Offset:]))
			continue
		}
		arr := L.CreateTable(int(lanes), 0)
		for i := range lanes {
			arr.RawSetInt(int(i)+1, scalar(f.Format, b[f.Offset+4*i:]))
		}
		tbl.RawSetString(f.Name, arr)
	}
	return tbl
}

func scalar(format component.Format, b []byte) lua.LNumber {
	bits := binary.LittleEndian.Uint32(b)
	switch format {
	case component.FormatU32:
		return lua.LNumber(bits)
	case component.FormatI32:
		return lua.LNumber(int32(bits))
	default:
		return lua.LNumber(math.Float32frombits(bits))
	}
}

// encode writes the fields present in tbl into dst. Keys that name no
// field are an error.
func encode(t *component.Type, tbl *lua.LTable, dst []byte) error {
	var err error
	tbl.ForEach(func(k, v lua.LValue) {
		if err != nil {
			return
		}
		name, ok := k.(lua.LString)
		if !ok {
			err = fmt.Errorf("%s: non-string key %v", t.Name, k)
			return
		}
		f, ok := t.Field(string(name))
		if !ok {
			err = fmt.Errorf("%s has no field %q", t.Name, string(name))
			return
		}
		err = encodeField(t, f, v, dst)
	})
	return err
}

func encodeField(t *component.Type, f component.Field, v lua.LValue, dst []byte) error {
	lanes := max(f.Lanes, 1)
	if lanes == 1 {
		n, ok := v.(lua.LNumber)
		if !ok {
			return fmt.Errorf("%s.%s wants a number, got %s", t.Name, f.Name, v.Type())
		}
		putScalar(f.Format, dst[f.Offset:], n)
		return nil
	}
	arr, ok := v.(*lua.LTable)
	if !ok || arr.Len() != int(lanes) {
		return fmt.Errorf("%s.%s wants %d numbers", t.Name, f.Name, lanes)
	}
	for i := range lanes {
		n, ok := arr.RawGetInt(int(i) + 1).(lua.LNumber)
		if !ok {
			return fmt.Errorf("%s.%s[%d] is not a number", t.Name, f.Name, i+1)
		}
		putScalar(f.Format, dst[f.Offset+4*i:], n)
	}
	return nil
}

func putScalar(format component.Format, dst []byte, n lua.LNumber) {
	var bits uint32
	switch format {
	case component.FormatU32:
		bits = uint32(int64(n))
	case component.FormatI32:
		bits = uint32(int32(int64(n)))
	default:
		bits = math.Float32bits(float32(n))
	}
	binary.LittleEndian.PutUint32(dst, bits)
}
