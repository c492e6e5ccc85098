package mirror

import (
	"errors"
	"testing"

	"github.com/gogpu/gecs/backend"
	"github.com/gogpu/gecs/component"
)

func TestSetSyncAndBindings(t *testing.T) {
	dev := backend.NewSoftwareDevice()
	reg, id, st := newTransforms(t)
	fill(t, st, 4)

	s := NewSet(dev, reg, WithMinSize(256))
	defer s.Close()

	if _, _, ok := s.Bindings(id); ok {
		t.Error("Bindings ok before first Sync")
	}
	if err := s.Sync(id); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	data, index, ok := s.Bindings(id)
	if !ok {
		t.Fatal("Bindings not ok after Sync")
	}
	if dev.BufferSize(data) != 256 || dev.BufferSize(index) != 256 {
		t.Errorf("buffer sizes = %d, %d, want 256", dev.BufferSize(data), dev.BufferSize(index))
	}
	if got := s.Stats(id); got.Uploads != 2 {
		t.Errorf("Uploads = %d, want 2", got.Uploads)
	}
	if s.Stats() != s.Stats(id) {
		t.Error("set total differs from single mirror")
	}
}

func TestSetSyncUnknownType(t *testing.T) {
	dev := backend.NewSoftwareDevice()
	reg, id, st := newTransforms(t)
	fill(t, st, 1)

	s := NewSet(dev, reg)
	err := s.Sync(id, component.TypeID(42))
	if !errors.Is(err, component.ErrUnknownType) {
		t.Errorf("Sync err = %v, want ErrUnknownType", err)
	}
	if _, _, ok := s.Bindings(id); !ok {
		t.Error("known type not synced alongside the failing one")
	}
}

func TestSetReleaseAndClose(t *testing.T) {
	dev := backend.NewSoftwareDevice()
	reg, id, st := newTransforms(t)
	fill(t, st, 1)

	s := NewSet(dev, reg)
	if err := s.Sync(id); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	s.Release(id)
	if _, _, ok := s.Bindings(id); ok {
		t.Error("Bindings ok after Release")
	}
	if n := dev.Stats().Buffers; n != 0 {
		t.Errorf("device holds %d buffers", n)
	}

	if err := s.Sync(id); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	s.Close()
	if n := dev.Stats().Buffers; n != 0 {
		t.Errorf("device holds %d buffers after Close", n)
	}
	if err := s.Sync(id); err == nil {
		t.Error("Sync after Close succeeded")
	}
}
