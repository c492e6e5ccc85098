package component

import (
	"fmt"
	"iter"
	"slices"
)

// minListCap is the capacity given to a new entity range.
const minListCap = 4

// span is one entity's block in a ListStore.
type span struct {
	start uint32
	count uint32
	cap   uint32
	owner Entity
	pos   uint32 // position in ListStore.owners
}

// ListStore holds a list of values per entity for a List type.
//
// Each entity owns a contiguous block of the packed array with spare
// capacity. Removing an element shifts only that entity's block. A block
// that outgrows its capacity moves to a free block or the tail; freed
// blocks coalesce and the array is compacted once more than half of it is
// slack. sparse[e.Index()] holds the block start, which is what shaders
// add the vertex index to.
type ListStore struct {
	dirtyState

	id     TypeID
	typ    *Type
	stride uint32

	data   []byte
	spans  []span
	sparse []uint32
	owners []Entity
	free   []Range
	used   uint32
}

// NewListStore creates an empty list store for t.
func NewListStore(id TypeID, t *Type) *ListStore {
	return &ListStore{id: id, typ: t, stride: t.Size}
}

// ID returns the registry id of the store's type.
func (s *ListStore) ID() TypeID { return s.id }

// Type returns the schema of the stored values.
func (s *ListStore) Type() *Type { return s.typ }

// Stride returns the byte size of one element.
func (s *ListStore) Stride() uint32 { return s.stride }

// Len returns the number of entities holding a list.
func (s *ListStore) Len() int { return len(s.owners) }

// Used returns the total number of elements across all lists.
func (s *ListStore) Used() int { return int(s.used) }

func (s *ListStore) tail() uint32 { return uint32(len(s.data)) / s.stride }

func (s *ListStore) span(e Entity) (*span, bool) {
	idx := e.Index()
	if e.IsNil() || int(idx) >= len(s.sparse) || s.sparse[idx] == AbsentSlot {
		return nil, false
	}
	sp := &s.spans[idx]
	if sp.owner != e {
		return nil, false
	}
	return sp, true
}

// Has reports whether e holds a list, possibly empty.
func (s *ListStore) Has(e Entity) bool {
	_, ok := s.span(e)
	return ok
}

// Count returns the length of e's list, zero when absent.
func (s *ListStore) Count(e Entity) int {
	if sp, ok := s.span(e); ok {
		return int(sp.count)
	}
	return 0
}

// Start returns the packed slot of e's first element.
func (s *ListStore) Start(e Entity) (uint32, bool) {
	sp, ok := s.span(e)
	if !ok {
		return 0, false
	}
	return sp.start, true
}

// Get returns element i of e's list.
// The returned slice aliases the packed array; it is valid until the next mutation.
func (s *ListStore) Get(e Entity, i int) ([]byte, error) {
	sp, ok := s.span(e)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %v", ErrNotPresent, s.typ.Name, e)
	}
	if i < 0 || uint32(i) >= sp.count {
		return nil, fmt.Errorf("%w: %s[%d] on %v has %d", ErrOutOfRange, s.typ.Name, i, e, sp.count)
	}
	off := (sp.start + uint32(i)) * s.stride
	return s.data[off : off+s.stride : off+s.stride], nil
}

// Elements returns e's whole list as one byte slice.
func (s *ListStore) Elements(e Entity) ([]byte, error) {
	sp, ok := s.span(e)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %v", ErrNotPresent, s.typ.Name, e)
	}
	lo, hi := sp.start*s.stride, (sp.start+sp.count)*s.stride
	return s.data[lo:hi:hi], nil
}

// Append adds v to the end of e's list, creating the list if needed.
func (s *ListStore) Append(e Entity, v []byte) error {
	return s.Insert(e, s.Count(e), v)
}

// Insert places v at position i of e's list, shifting later elements of
// that list only.
func (s *ListStore) Insert(e Entity, i int, v []byte) error {
	if err := s.check(e, v, 1); err != nil {
		return err
	}
	n := s.Count(e)
	if i < 0 || i > n {
		return fmt.Errorf("%w: insert %s[%d] on %v has %d", ErrOutOfRange, s.typ.Name, i, e, n)
	}
	sp, err := s.reserve(e, uint32(n+1))
	if err != nil {
		return err
	}
	at := sp.start + uint32(i)
	end := sp.start + sp.count
	copy(s.data[(at+1)*s.stride:(end+1)*s.stride], s.data[at*s.stride:end*s.stride])
	copy(s.data[at*s.stride:(at+1)*s.stride], v)
	sp.count++
	s.used++
	s.markData(at, end+1)
	s.generation++
	return nil
}

// SetAt overwrites element i of e's list. i equal to the list length appends.
func (s *ListStore) SetAt(e Entity, i int, v []byte) error {
	n := s.Count(e)
	if i == n {
		return s.Append(e, v)
	}
	if err := s.check(e, v, 1); err != nil {
		return err
	}
	sp, ok := s.span(e)
	if !ok {
		return fmt.Errorf("%w: %s on %v", ErrNotPresent, s.typ.Name, e)
	}
	if i < 0 || uint32(i) >= sp.count {
		return fmt.Errorf("%w: %s[%d] on %v has %d", ErrOutOfRange, s.typ.Name, i, e, sp.count)
	}
	at := sp.start + uint32(i)
	copy(s.data[at*s.stride:(at+1)*s.stride], v)
	s.markData(at, at+1)
	s.generation++
	return nil
}

// RemoveAt deletes element i of e's list. Only e's own range shifts.
func (s *ListStore) RemoveAt(e Entity, i int) error {
	sp, ok := s.span(e)
	if !ok {
		return fmt.Errorf("%w: %s on %v", ErrNotPresent, s.typ.Name, e)
	}
	if i < 0 || uint32(i) >= sp.count {
		return fmt.Errorf("%w: %s[%d] on %v has %d", ErrOutOfRange, s.typ.Name, i, e, sp.count)
	}
	at := sp.start + uint32(i)
	end := sp.start + sp.count
	copy(s.data[at*s.stride:(end-1)*s.stride], s.data[(at+1)*s.stride:end*s.stride])
	sp.count--
	s.used--
	s.markData(at, end-1)
	s.generation++
	return nil
}

// Replace sets e's whole list to values, a concatenation of whole elements.
func (s *ListStore) Replace(e Entity, values []byte) error {
	if len(values)%int(s.stride) != 0 {
		return fmt.Errorf("%w: %s wants a multiple of %d bytes, got %d", ErrSizeMismatch, s.typ.Name, s.stride, len(values))
	}
	n := uint32(len(values)) / s.stride
	if err := s.check(e, nil, 0); err != nil {
		return err
	}
	sp, err := s.reserve(e, n)
	if err != nil {
		return err
	}
	copy(s.data[sp.start*s.stride:], values)
	s.used = s.used - sp.count + n
	sp.count = n
	s.markData(sp.start, sp.start+max(n, 1))
	s.generation++
	return nil
}

func (s *ListStore) check(e Entity, v []byte, elems int) error {
	if elems > 0 && len(v) != int(s.stride) {
		return fmt.Errorf("%w: %s wants %d bytes, got %d", ErrSizeMismatch, s.typ.Name, s.stride, len(v))
	}
	if e.IsNil() {
		return ErrInvalidEntity
	}
	idx := e.Index()
	if int(idx) < len(s.sparse) && s.sparse[idx] != AbsentSlot && s.spans[idx].owner != e {
		return fmt.Errorf("%w: %v (list owned by %v)", ErrStale, e, s.spans[idx].owner)
	}
	return nil
}

// reserve makes e's block hold at least need elements, creating or moving
// it. On error the store is unchanged.
func (s *ListStore) reserve(e Entity, need uint32) (*span, error) {
	idx := e.Index()
	sp, ok := s.span(e)
	if ok && sp.cap >= need {
		return sp, nil
	}
	newCap := max(need, minListCap)
	if ok {
		newCap = max(newCap, sp.cap*2)
		// A block at the tail grows in place.
		if sp.start+sp.cap == s.tail() {
			if uint64(sp.start)+uint64(newCap) >= uint64(AbsentSlot) {
				return nil, fmt.Errorf("%w: %s", ErrStoreFull, s.typ.Name)
			}
			s.data = append(s.data, make([]byte, (newCap-sp.cap)*s.stride)...)
			sp.cap = newCap
			return sp, nil
		}
	}
	start, err := s.alloc(newCap)
	if err != nil {
		return nil, err
	}
	if !ok {
		for n := uint32(len(s.sparse)); n <= idx; n++ {
			s.sparse = append(s.sparse, AbsentSlot)
			s.spans = append(s.spans, span{owner: Nil})
			s.markIndex(n)
		}
		s.spans[idx] = span{start: start, cap: newCap, owner: e, pos: uint32(len(s.owners))}
		s.owners = append(s.owners, e)
		s.sparse[idx] = start
		s.markIndex(idx)
		return &s.spans[idx], nil
	}
	old := Range{Start: sp.start, End: sp.start + sp.cap}
	copy(s.data[start*s.stride:], s.data[sp.start*s.stride:(sp.start+sp.count)*s.stride])
	sp.start, sp.cap = start, newCap
	s.sparse[idx] = start
	s.markIndex(idx)
	s.markData(start, start+sp.count)
	s.release(old)
	return sp, nil
}

// alloc takes n slots from the first free block that fits, else the tail.
func (s *ListStore) alloc(n uint32) (uint32, error) {
	for i, b := range s.free {
		if b.Len() < n {
			continue
		}
		if b.Len() == n {
			s.free = slices.Delete(s.free, i, i+1)
		} else {
			s.free[i].Start += n
		}
		return b.Start, nil
	}
	start := s.tail()
	if uint64(start)+uint64(n) >= uint64(AbsentSlot) {
		return 0, fmt.Errorf("%w: %s", ErrStoreFull, s.typ.Name)
	}
	s.data = append(s.data, make([]byte, n*s.stride)...)
	return start, nil
}

// release returns a block to the free list, merging neighbours and
// trimming the tail.
func (s *ListStore) release(b Range) {
	if b.IsEmpty() {
		return
	}
	i, _ := slices.BinarySearchFunc(s.free, b.Start, func(r Range, start uint32) int {
		return int(int64(r.Start) - int64(start))
	})
	s.free = slices.Insert(s.free, i, b)
	if i+1 < len(s.free) && s.free[i].End == s.free[i+1].Start {
		s.free[i].End = s.free[i+1].End
		s.free = slices.Delete(s.free, i+1, i+2)
	}
	if i > 0 && s.free[i-1].End == s.free[i].Start {
		s.free[i-1].End = s.free[i].End
		s.free = slices.Delete(s.free, i, i+1)
		i--
	}
	if last := len(s.free) - 1; last >= 0 && s.free[last].End == s.tail() {
		s.data = s.data[:s.free[last].Start*s.stride]
		s.free = s.free[:last]
		s.dataRange = s.dataRange.Clamp(s.tail())
	}
}

// Remove drops e's whole list. It is a no-op returning false when absent.
func (s *ListStore) Remove(e Entity) bool {
	sp, ok := s.span(e)
	if !ok {
		return false
	}
	idx := e.Index()
	block := Range{Start: sp.start, End: sp.start + sp.cap}
	s.used -= sp.count

	last := len(s.owners) - 1
	moved := s.owners[last]
	s.owners[sp.pos] = moved
	s.spans[moved.Index()].pos = sp.pos
	s.owners = s.owners[:last]

	s.spans[idx] = span{owner: Nil}
	s.sparse[idx] = AbsentSlot
	s.markIndex(idx)
	s.release(block)
	s.generation++
	s.maybeCompact()
	return true
}

func (s *ListStore) maybeCompact() {
	t := s.tail()
	if t >= 64 && t-s.used > t/2 {
		s.Compact()
	}
}

// Compact repacks every list back to back with no slack.
// The layout epoch advances so mirrors re-upload in full.
func (s *ListStore) Compact() {
	packed := make([]byte, 0, int(s.used*s.stride))
	for _, e := range s.owners {
		sp := &s.spans[e.Index()]
		start := uint32(len(packed)) / s.stride
		packed = append(packed, s.data[sp.start*s.stride:(sp.start+sp.count)*s.stride]...)
		sp.start, sp.cap = start, sp.count
		s.sparse[e.Index()] = start
	}
	s.data = packed
	s.free = s.free[:0]
	s.dataRange = Range{Start: 0, End: s.tail()}
	s.indexRange = Range{Start: 0, End: uint32(len(s.sparse))}
	s.epoch++
	s.generation++
}

// Clear drops every list.
func (s *ListStore) Clear() {
	s.data = s.data[:0]
	s.owners = s.owners[:0]
	s.free = s.free[:0]
	s.used = 0
	for i := range s.sparse {
		s.sparse[i] = AbsentSlot
		s.spans[i] = span{owner: Nil}
	}
	s.dataRange = Range{}
	s.indexRange = Range{Start: 0, End: uint32(len(s.sparse))}
	s.epoch++
	s.generation++
}

// Packed returns the packed element array, including per-entity slack.
func (s *ListStore) Packed() []byte { return s.data }

// Index returns the sparse array of block starts.
func (s *ListStore) Index() []uint32 { return s.sparse }

// IndexBytes returns the sparse array as bytes. Assumes a little-endian host.
func (s *ListStore) IndexBytes() []byte { return u32Bytes(s.sparse) }

// Entities returns the entities holding a list. Valid until the next mutation.
func (s *ListStore) Entities() []Entity { return s.owners }

// All yields each entity with its list as one byte slice.
func (s *ListStore) All() iter.Seq2[Entity, []byte] {
	return func(yield func(Entity, []byte) bool) {
		for _, e := range s.owners {
			sp := s.spans[e.Index()]
			lo, hi := sp.start*s.stride, (sp.start+sp.count)*s.stride
			if !yield(e, s.data[lo:hi:hi]) {
				return
			}
		}
	}
}
