package mirror

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/gpucore"
)

// Option configures a Set.
type Option func(*Set)

// WithMinSize sets the initial buffer size of every mirror in bytes.
func WithMinSize(bytes uint64) Option {
	return func(s *Set) {
		if bytes > 0 {
			s.minSize = bytes
		}
	}
}

// Set holds the mirrors of a registry, created lazily per type id.
//
// Thread Safety: Set is safe for concurrent use. Sync of one type is
// serialized with every other call on the set.
type Set struct {
	mu      sync.Mutex
	device  gpucore.Device
	reg     *component.Registry
	minSize uint64
	mirrors map[component.TypeID]*Mirror
	closed  bool
}

// NewSet creates an empty mirror set over reg.
func NewSet(device gpucore.Device, reg *component.Registry, opts ...Option) *Set {
	s := &Set{
		device:  device,
		reg:     reg,
		minSize: DefaultMinSize,
		mirrors: make(map[component.TypeID]*Mirror),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mirror must be called with mu held.
func (s *Set) mirror(id component.TypeID) *Mirror {
	m, ok := s.mirrors[id]
	if !ok {
		name := fmt.Sprintf("type%d", id)
		if t := s.reg.Type(id); t != nil {
			name = t.Name
		}
		m = New(s.device, name, s.minSize)
		s.mirrors[id] = m
	}
	return m
}

// Sync mirrors the given types. Every type is attempted; failures are
// joined and each wraps the type it belongs to.
func (s *Set) Sync(ids ...component.TypeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gpucore.ErrDeviceClosed
	}

	var errs []error
	for _, id := range ids {
		st := s.reg.Storage(id)
		if st == nil {
			errs = append(errs, fmt.Errorf("%w: id %d", component.ErrUnknownType, id))
			continue
		}
		if err := s.mirror(id).Sync(st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bindings returns the data and index buffers of id. ok is false until
// the type has been synced at least once. Buffer ids change when a mirror
// grows, so callers resolve them again every frame.
func (s *Set) Bindings(id component.TypeID) (data, index gpucore.BufferID, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, exists := s.mirrors[id]
	if !exists {
		return gpucore.InvalidID, gpucore.InvalidID, false
	}
	data, index = m.Buffers()
	return data, index, data != gpucore.InvalidID && index != gpucore.InvalidID
}

// Stats returns the traffic of one type, or the whole set for no ids.
func (s *Set) Stats(ids ...component.TypeID) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total Stats
	if len(ids) == 0 {
		for _, m := range s.mirrors {
			total.add(m.Stats())
		}
		return total
	}
	for _, id := range ids {
		if m, ok := s.mirrors[id]; ok {
			total.add(m.Stats())
		}
	}
	return total
}

// Release destroys the buffers of id.
func (s *Set) Release(id component.TypeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.mirrors[id]; ok {
		m.Release()
		delete(s.mirrors, id)
	}
}

// Close releases every mirror. The device stays open.
func (s *Set) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.mirrors {
		m.Release()
		delete(s.mirrors, id)
	}
	s.closed = true
}
