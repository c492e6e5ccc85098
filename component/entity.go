package component

import "fmt"

// Entity is an opaque handle: a 24-bit index and an 8-bit version.
// The version advances each time the index is recycled, so a handle kept
// past Destroy no longer resolves.
type Entity uint32

const (
	indexBits = 24
	indexMask = 1<<indexBits - 1

	// MaxIndex is the largest entity index an allocator hands out.
	// Index 0xFFFFFF is reserved as the absent marker of the sparse array.
	MaxIndex = indexMask - 1

	// Nil is the zero handle. It never refers to a live entity.
	Nil Entity = 0xFFFFFFFF
)

// NewEntity packs an index and version into a handle.
func NewEntity(index uint32, version uint8) Entity {
	return Entity(uint32(version)<<indexBits | index&indexMask)
}

// Index returns the 24-bit index used to address sparse arrays.
func (e Entity) Index() uint32 { return uint32(e) & indexMask }

// Version returns the recycle counter of the handle.
func (e Entity) Version() uint8 { return uint8(uint32(e) >> indexBits) }

// IsNil reports whether e is the Nil handle.
func (e Entity) IsNil() bool { return e == Nil }

func (e Entity) String() string {
	if e.IsNil() {
		return "entity(nil)"
	}
	return fmt.Sprintf("entity(%d.v%d)", e.Index(), e.Version())
}

// Allocator hands out entity handles with recycled indices.
// Destroyed indices go on a free list and come back with a bumped version.
//
// The zero value is ready to use. Allocator is not safe for concurrent use.
type Allocator struct {
	versions []uint8
	alive    []bool
	free     []uint32
	live     int
}

// NewAllocator creates an allocator with room for capacity entities.
func NewAllocator(capacity int) *Allocator {
	return &Allocator{
		versions: make([]uint8, 0, capacity),
		alive:    make([]bool, 0, capacity),
	}
}

// Create returns a fresh live handle.
// It fails with ErrAllocatorFull once every index up to MaxIndex is live.
func (a *Allocator) Create() (Entity, error) {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.alive[idx] = true
		a.live++
		return NewEntity(idx, a.versions[idx]), nil
	}
	idx := uint32(len(a.versions))
	if idx > MaxIndex {
		return Nil, ErrAllocatorFull
	}
	a.versions = append(a.versions, 0)
	a.alive = append(a.alive, true)
	a.live++
	return NewEntity(idx, 0), nil
}

// Alive reports whether e was created by this allocator and not destroyed.
func (a *Allocator) Alive(e Entity) bool {
	idx := e.Index()
	if e.IsNil() || int(idx) >= len(a.versions) {
		return false
	}
	return a.alive[idx] && a.versions[idx] == e.Version()
}

// Destroy releases e. Stale or unknown handles are ignored.
// It reports whether the handle was live.
func (a *Allocator) Destroy(e Entity) bool {
	if !a.Alive(e) {
		return false
	}
	idx := e.Index()
	a.alive[idx] = false
	a.versions[idx]++ // wraps at 256
	a.free = append(a.free, idx)
	a.live--
	return true
}

// Len returns the number of live entities.
func (a *Allocator) Len() int { return a.live }

// Cap returns one past the highest index ever handed out.
func (a *Allocator) Cap() int { return len(a.versions) }

// Each calls fn for every live entity in index order until fn returns false.
func (a *Allocator) Each(fn func(Entity) bool) {
	for idx, ok := range a.alive {
		if ok && !fn(NewEntity(uint32(idx), a.versions[idx])) {
			return
		}
	}
}
