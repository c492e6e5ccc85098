package mirror

import (
	"fmt"

	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/gpucore"
)

// DefaultMinSize is the initial size of every mirrored buffer in bytes.
const DefaultMinSize = 1024

// Source is the store surface a mirror reads. component.Storage satisfies it.
type Source interface {
	Type() *component.Type
	Stride() uint32
	Packed() []byte
	IndexBytes() []byte
	Dirty() component.Range
	IndexDirty() component.Range
	ClearDirty()
	Epoch() uint64
}

// Stats counts device traffic caused by a mirror.
type Stats struct {
	// Uploads counts WriteBuffer calls.
	Uploads uint64
	// Reallocations counts buffers created to replace smaller ones.
	Reallocations uint64
	// BytesUploaded sums the payload of all uploads.
	BytesUploaded uint64
}

func (s *Stats) add(o Stats) {
	s.Uploads += o.Uploads
	s.Reallocations += o.Reallocations
	s.BytesUploaded += o.BytesUploaded
}

// buffer is one device buffer and its capacity.
type buffer struct {
	id   gpucore.BufferID
	size uint64
}

// Mirror is the GPU copy of one component store.
type Mirror struct {
	device  gpucore.Device
	label   string
	minSize uint64

	data  buffer
	index buffer

	epoch  uint64
	synced bool
	stats  Stats
}

// New creates a mirror for the named type. No buffer is allocated until
// the first Sync.
func New(device gpucore.Device, label string, minSize uint64) *Mirror {
	if minSize == 0 {
		minSize = DefaultMinSize
	}
	return &Mirror{device: device, label: label, minSize: minSize}
}

// Buffers returns the data and index buffer ids, InvalidID before the
// first successful Sync.
func (m *Mirror) Buffers() (data, index gpucore.BufferID) {
	return m.data.id, m.index.id
}

// Capacity returns the data and index buffer sizes in bytes.
func (m *Mirror) Capacity() (data, index uint64) {
	return m.data.size, m.index.size
}

// Stats returns the traffic counters.
func (m *Mirror) Stats() Stats { return m.stats }

// Sync brings the device buffers up to date with src and clears its dirty
// ranges. With no mutation since the previous Sync it performs no upload.
//
// On failure the dirty ranges are kept and the next Sync does a full copy.
func (m *Mirror) Sync(src Source) error {
	full := !m.synced || src.Epoch() != m.epoch
	if full && m.synced {
		slogger().Debug("mirror: epoch changed, full upload",
			"type", m.label, "from", m.epoch, "to", src.Epoch())
	}
	m.synced = false

	packed := src.Packed()
	dataFull, err := m.ensure(&m.data, uint64(len(packed)), "data")
	if err != nil {
		return err
	}
	if err := m.upload(m.data.id, packed, src.Dirty(), src.Stride(), full || dataFull); err != nil {
		return err
	}

	index := src.IndexBytes()
	indexFull, err := m.ensure(&m.index, uint64(len(index)), "index")
	if err != nil {
		return err
	}
	if err := m.upload(m.index.id, index, src.IndexDirty(), 4, full || indexFull); err != nil {
		return err
	}

	src.ClearDirty()
	m.epoch = src.Epoch()
	m.synced = true
	return nil
}

// ensure grows b to hold need bytes. It reports whether a new buffer was
// created, which requires a full copy.
func (m *Mirror) ensure(b *buffer, need uint64, part string) (bool, error) {
	if b.id != gpucore.InvalidID && need <= b.size {
		return false, nil
	}
	size := max(b.size, m.minSize)
	for size < need {
		size *= 2
	}
	id, err := m.device.CreateBuffer(&gpucore.BufferDesc{
		Label: m.label + "_" + part,
		Size:  size,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst | gpucore.BufferUsageCopySrc,
	})
	if err != nil {
		return false, &BufferAllocationError{Type: m.label, Size: size, Err: err}
	}
	if b.id != gpucore.InvalidID {
		m.device.DestroyBuffer(b.id)
		m.stats.Reallocations++
		slogger().Debug("mirror: buffer grown", "type", m.label, "part", part, "from", b.size, "to", size)
	}
	*b = buffer{id: id, size: size}
	return true, nil
}

// upload writes the dirty part of bytes, or all of it when full is set.
func (m *Mirror) upload(id gpucore.BufferID, bytes []byte, dirty component.Range, stride uint32, full bool) error {
	var offset, size uint64
	if full {
		size = uint64(len(bytes))
	} else {
		offset, size = dirty.Bytes(stride)
		if end := uint64(len(bytes)); offset+size > end {
			size = end - min(offset, end)
		}
	}
	if size == 0 {
		return nil
	}
	if err := m.device.WriteBuffer(id, offset, bytes[offset:offset+size]); err != nil {
		return fmt.Errorf("mirror: upload %s: %w", m.label, err)
	}
	m.stats.Uploads++
	m.stats.BytesUploaded += size
	return nil
}

// Release destroys the device buffers. The next Sync reallocates.
func (m *Mirror) Release() {
	if m.data.id != gpucore.InvalidID {
		m.device.DestroyBuffer(m.data.id)
	}
	if m.index.id != gpucore.InvalidID {
		m.device.DestroyBuffer(m.index.id)
	}
	m.data = buffer{}
	m.index = buffer{}
	m.synced = false
}
