// Package component stores entity components in packed/sparse arrays.
//
// Each component type owns one store. A [Store] keeps at most one value per
// entity in a packed byte array with no gaps; a [ListStore] keeps a
// contiguous sub-range of values per entity. Both expose a sparse index
// array mapping entity index to packed slot, laid out so it can be uploaded
// to the GPU verbatim: the low 24 bits hold the slot and the value
// [AbsentSlot] marks an entity without the component.
//
// Every mutation extends the store's dirty ranges and advances its
// generation counter. The mirror package consumes the dirty ranges; the
// scheduler compares generations to decide which jobs must re-run.
//
// Stores are not safe for concurrent mutation. The scheduler serializes
// writers of a type against every other access to it.
package component
