package component

import (
	"errors"
	"testing"
)

type vec4 struct{ X, Y, Z, W float32 }

func TestTyped_SetGet(t *testing.T) {
	s := NewStore(0, &Type{Name: "Position", Size: 16})
	e := NewEntity(1, 0)
	if err := Set(s, e, vec4{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	got, err := Get[vec4](s, e)
	if err != nil {
		t.Fatal(err)
	}
	if got != (vec4{1, 2, 3, 4}) {
		t.Errorf("Get = %+v", got)
	}

	var n int
	for _, v := range Each[vec4](s) {
		n++
		if v.Z != 3 {
			t.Errorf("Each value = %+v", v)
		}
	}
	if n != 1 {
		t.Errorf("Each visited %d", n)
	}
}

func TestTyped_SizeMismatch(t *testing.T) {
	s := NewStore(0, &Type{Name: "Small", Size: 8})
	if err := Set(s, NewEntity(0, 0), vec4{}); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("Set err = %v, want ErrSizeMismatch", err)
	}
	if _, err := Get[vec4](s, NewEntity(0, 0)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("Get err = %v, want ErrSizeMismatch", err)
	}
}

func TestTyped_List(t *testing.T) {
	s := NewListStore(0, &Type{Name: "VertexPosition", Size: 16, List: true})
	e := NewEntity(0, 0)
	quad := []vec4{{0, 0, 0, 1}, {1, 0, 0, 1}, {1, 1, 0, 1}, {0, 1, 0, 1}}
	if err := ReplaceList(s, e, quad); err != nil {
		t.Fatal(err)
	}
	if s.Count(e) != 4 {
		t.Fatalf("Count() = %d, want 4", s.Count(e))
	}
	v, err := At[vec4](s, e, 2)
	if err != nil || v != quad[2] {
		t.Errorf("At(2) = %+v, %v", v, err)
	}
	if err := SetAt(s, e, 0, vec4{9, 9, 9, 9}); err != nil {
		t.Fatal(err)
	}
	if err := Append(s, e, vec4{5, 5, 5, 5}); err != nil {
		t.Fatal(err)
	}
	if s.Count(e) != 5 {
		t.Errorf("Count() = %d, want 5", s.Count(e))
	}
}

func TestEncodeDecode(t *testing.T) {
	v := vec4{1, 2, 3, 4}
	if got := Decode[vec4](Encode(v)); got != v {
		t.Errorf("Decode(Encode) = %+v", got)
	}
	defer func() {
		if recover() == nil {
			t.Error("Decode of short buffer did not panic")
		}
	}()
	_ = Decode[vec4](make([]byte, 3))
}
