package component

// Range is a half-open interval [Start, End) of slots or indices.
// The zero Range is empty.
type Range struct {
	Start uint32
	End   uint32
}

// IsEmpty reports whether the range covers nothing.
func (r Range) IsEmpty() bool { return r.End <= r.Start }

// Len returns the number of elements covered.
func (r Range) Len() uint32 {
	if r.IsEmpty() {
		return 0
	}
	return r.End - r.Start
}

// Union returns the smallest range covering both r and o.
// Empty operands are ignored, so a dirty range only ever grows until cleared.
func (r Range) Union(o Range) Range {
	switch {
	case o.IsEmpty():
		return r
	case r.IsEmpty():
		return o
	}
	return Range{Start: min(r.Start, o.Start), End: max(r.End, o.End)}
}

// Clamp limits the range to [0, n).
func (r Range) Clamp(n uint32) Range {
	if r.End > n {
		r.End = n
	}
	if r.Start > r.End {
		r.Start = r.End
	}
	return r
}

// Bytes scales the range by stride, returning a byte offset and length.
func (r Range) Bytes(stride uint32) (offset, size uint64) {
	if r.IsEmpty() {
		return 0, 0
	}
	return uint64(r.Start) * uint64(stride), uint64(r.Len()) * uint64(stride)
}

// dirtyState is embedded by both store kinds.
type dirtyState struct {
	dataRange  Range
	indexRange Range
	generation uint64
	epoch      uint64
}

func (d *dirtyState) markData(start, end uint32) {
	d.dataRange = d.dataRange.Union(Range{Start: start, End: end})
}

func (d *dirtyState) markIndex(idx uint32) {
	d.indexRange = d.indexRange.Union(Range{Start: idx, End: idx + 1})
}

// Dirty returns the packed-array slot range not yet mirrored.
func (d *dirtyState) Dirty() Range { return d.dataRange }

// IndexDirty returns the sparse-array index range not yet mirrored.
func (d *dirtyState) IndexDirty() Range { return d.indexRange }

// ClearDirty resets both dirty ranges. The GPU mirror calls it after upload.
func (d *dirtyState) ClearDirty() {
	d.dataRange = Range{}
	d.indexRange = Range{}
}

// Generation returns the mutation counter of the type.
// It advances on every successful mutation.
func (d *dirtyState) Generation() uint64 { return d.generation }

// Epoch returns the layout counter of the store. It advances when the
// packed array is rebuilt, which invalidates any mirrored copy.
func (d *dirtyState) Epoch() uint64 { return d.epoch }
