// Package mirror keeps GPU copies of component stores.
//
// A Mirror owns two device buffers per component type: the packed value
// array and the sparse index array. Sync uploads only the dirty ranges the
// store accumulated since the last upload, and falls back to a full copy
// when the buffer must grow or the store's epoch changed.
//
// The store never references its mirror. A mirror remembers only buffer
// ids and the epoch it last copied, so stores can be cleared, compacted or
// dropped without coordination.
package mirror
