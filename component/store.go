package component

import (
	"fmt"
	"iter"
	"unsafe"
)

// AbsentSlot marks an entity index with no value in the sparse array.
// The top 8 bits of every sparse entry are reserved and kept zero.
const AbsentSlot uint32 = indexMask

// Storage is the behavior shared by Store and ListStore. The registry
// cascades removals through it and the GPU mirror reads it.
type Storage interface {
	ID() TypeID
	Type() *Type
	Stride() uint32

	Has(e Entity) bool
	Remove(e Entity) bool
	Len() int
	Clear()

	// Packed returns the packed byte array. Valid until the next mutation.
	Packed() []byte
	// IndexBytes returns the sparse array as little-endian u32 words.
	IndexBytes() []byte

	Dirty() Range
	IndexDirty() Range
	ClearDirty()
	Generation() uint64
	Epoch() uint64
}

// Store holds at most one value per entity for a single-value type.
//
// Values live back to back in a packed byte array; dense[i] owns slot i and
// sparse[e.Index()] holds the slot of e or AbsentSlot.
type Store struct {
	dirtyState

	id     TypeID
	typ    *Type
	stride uint32

	data   []byte
	dense  []Entity
	sparse []uint32
}

// NewStore creates an empty store for t.
func NewStore(id TypeID, t *Type) *Store {
	return &Store{id: id, typ: t, stride: t.Size}
}

// ID returns the registry id of the store's type.
func (s *Store) ID() TypeID { return s.id }

// Type returns the schema of the stored values.
func (s *Store) Type() *Type { return s.typ }

// Stride returns the byte size of one value.
func (s *Store) Stride() uint32 { return s.stride }

// Len returns the number of occupied slots.
func (s *Store) Len() int { return len(s.dense) }

func (s *Store) slotOf(e Entity) (uint32, bool) {
	idx := e.Index()
	if e.IsNil() || int(idx) >= len(s.sparse) {
		return 0, false
	}
	slot := s.sparse[idx]
	if slot == AbsentSlot {
		return 0, false
	}
	return slot, true
}

// Has reports whether e holds a value.
func (s *Store) Has(e Entity) bool {
	slot, ok := s.slotOf(e)
	return ok && s.dense[slot] == e
}

// Slot returns the packed slot of e.
func (s *Store) Slot(e Entity) (uint32, bool) {
	slot, ok := s.slotOf(e)
	if !ok || s.dense[slot] != e {
		return 0, false
	}
	return slot, true
}

// Set inserts or overwrites the value of e. value must be exactly Stride bytes.
func (s *Store) Set(e Entity, value []byte) error {
	if len(value) != int(s.stride) {
		return fmt.Errorf("%w: %s wants %d bytes, got %d", ErrSizeMismatch, s.typ.Name, s.stride, len(value))
	}
	if e.IsNil() {
		return ErrInvalidEntity
	}
	if slot, ok := s.slotOf(e); ok {
		if s.dense[slot] != e {
			return fmt.Errorf("%w: %v (slot owned by %v)", ErrStale, e, s.dense[slot])
		}
		off := slot * s.stride
		copy(s.data[off:off+s.stride], value)
		s.markData(slot, slot+1)
		s.generation++
		return nil
	}

	slot := uint32(len(s.dense))
	if slot >= AbsentSlot {
		return fmt.Errorf("%w: %s", ErrStoreFull, s.typ.Name)
	}
	idx := e.Index()
	s.growSparse(idx)
	s.dense = append(s.dense, e)
	s.data = append(s.data, value...)
	s.sparse[idx] = slot
	s.markData(slot, slot+1)
	s.markIndex(idx)
	s.generation++
	return nil
}

func (s *Store) growSparse(idx uint32) {
	n := uint32(len(s.sparse))
	if idx < n {
		return
	}
	for range idx + 1 - n {
		s.sparse = append(s.sparse, AbsentSlot)
	}
	s.indexRange = s.indexRange.Union(Range{Start: n, End: idx + 1})
}

// Get returns the value of e, or ErrNotPresent.
// The returned slice aliases the packed array; it is valid until the next mutation.
func (s *Store) Get(e Entity) ([]byte, error) {
	slot, ok := s.Slot(e)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %v", ErrNotPresent, s.typ.Name, e)
	}
	off := slot * s.stride
	return s.data[off : off+s.stride : off+s.stride], nil
}

// Mut returns a writable view of e's value and marks it dirty.
func (s *Store) Mut(e Entity) ([]byte, error) {
	b, err := s.Get(e)
	if err != nil {
		return nil, err
	}
	slot := s.sparse[e.Index()]
	s.markData(slot, slot+1)
	s.generation++
	return b, nil
}

// Remove deletes e's value by swapping the last packed value into its slot.
// It is a no-op returning false when e holds no value.
func (s *Store) Remove(e Entity) bool {
	slot, ok := s.Slot(e)
	if !ok {
		return false
	}
	last := uint32(len(s.dense) - 1)
	if slot != last {
		moved := s.dense[last]
		s.dense[slot] = moved
		copy(s.data[slot*s.stride:(slot+1)*s.stride], s.data[last*s.stride:])
		s.sparse[moved.Index()] = slot
		s.markIndex(moved.Index())
		s.markData(slot, slot+1)
	}
	s.dense = s.dense[:last]
	s.data = s.data[:last*s.stride]
	idx := e.Index()
	s.sparse[idx] = AbsentSlot
	s.markIndex(idx)
	s.dataRange = s.dataRange.Clamp(last)
	s.generation++
	return true
}

// Clear drops every value. The layout epoch advances so mirrors re-upload.
func (s *Store) Clear() {
	s.data = s.data[:0]
	s.dense = s.dense[:0]
	for i := range s.sparse {
		s.sparse[i] = AbsentSlot
	}
	s.dataRange = Range{}
	s.indexRange = Range{Start: 0, End: uint32(len(s.sparse))}
	s.epoch++
	s.generation++
}

// Entities returns the dense owner array. Valid until the next mutation.
func (s *Store) Entities() []Entity { return s.dense }

// Packed returns the packed value array.
func (s *Store) Packed() []byte { return s.data }

// Index returns the sparse array.
func (s *Store) Index() []uint32 { return s.sparse }

// IndexBytes returns the sparse array as bytes. Assumes a little-endian host.
func (s *Store) IndexBytes() []byte { return u32Bytes(s.sparse) }

// All yields every entity and its value in packed order.
// Mutating the store while ranging is not supported.
func (s *Store) All() iter.Seq2[Entity, []byte] {
	return func(yield func(Entity, []byte) bool) {
		for i, e := range s.dense {
			off := uint32(i) * s.stride
			if !yield(e, s.data[off:off+s.stride:off+s.stride]) {
				return
			}
		}
	}
}

func u32Bytes(v []uint32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}
