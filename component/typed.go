package component

import (
	"fmt"
	"iter"
	"unsafe"
)

// Typed accessors view a component value as a Go struct. T must be a plain
// fixed-size value type (no pointers, slices, maps or strings) whose size
// equals the component type's size.

func bytesOf[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

func checkSize[T any](st Storage) error {
	var zero T
	if sz := uint32(unsafe.Sizeof(zero)); sz != st.Stride() {
		return fmt.Errorf("%w: %s is %d bytes, Go type is %d", ErrSizeMismatch, st.Type().Name, st.Stride(), sz)
	}
	return nil
}

func fromBytes[T any](b []byte) T {
	var v T
	copy(bytesOf(&v), b)
	return v
}

// Set stores v as e's value.
func Set[T any](s *Store, e Entity, v T) error {
	if err := checkSize[T](s); err != nil {
		return err
	}
	return s.Set(e, bytesOf(&v))
}

// Get returns a copy of e's value.
func Get[T any](s *Store, e Entity) (T, error) {
	var zero T
	if err := checkSize[T](s); err != nil {
		return zero, err
	}
	b, err := s.Get(e)
	if err != nil {
		return zero, err
	}
	return fromBytes[T](b), nil
}

// Each yields every entity with a copy of its value.
func Each[T any](s *Store) iter.Seq2[Entity, T] {
	return func(yield func(Entity, T) bool) {
		if checkSize[T](s) != nil {
			return
		}
		for e, b := range s.All() {
			if !yield(e, fromBytes[T](b)) {
				return
			}
		}
	}
}

// Append adds v to e's list.
func Append[T any](s *ListStore, e Entity, v T) error {
	if err := checkSize[T](s); err != nil {
		return err
	}
	return s.Append(e, bytesOf(&v))
}

// SetAt overwrites element i of e's list.
func SetAt[T any](s *ListStore, e Entity, i int, v T) error {
	if err := checkSize[T](s); err != nil {
		return err
	}
	return s.SetAt(e, i, bytesOf(&v))
}

// ReplaceList sets e's whole list to vs.
func ReplaceList[T any](s *ListStore, e Entity, vs []T) error {
	if err := checkSize[T](s); err != nil {
		return err
	}
	if len(vs) == 0 {
		return s.Replace(e, nil)
	}
	return s.Replace(e, unsafe.Slice((*byte)(unsafe.Pointer(&vs[0])), len(vs)*int(s.Stride())))
}

// At returns a copy of element i of e's list.
func At[T any](s *ListStore, e Entity, i int) (T, error) {
	var zero T
	if err := checkSize[T](s); err != nil {
		return zero, err
	}
	b, err := s.Get(e, i)
	if err != nil {
		return zero, err
	}
	return fromBytes[T](b), nil
}

// Decode converts a raw value to T. It panics when the sizes differ.
func Decode[T any](b []byte) T {
	var zero T
	if uintptr(len(b)) != unsafe.Sizeof(zero) {
		panic(fmt.Sprintf("component: decode %d bytes into %T", len(b), zero))
	}
	return fromBytes[T](b)
}

// Encode returns the raw bytes of v.
func Encode[T any](v T) []byte {
	return append([]byte(nil), bytesOf(&v)...)
}
