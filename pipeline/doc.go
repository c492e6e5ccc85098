// Package pipeline turns vertex/fragment job pairs into render pipelines
// and draw calls.
//
// Every pipeline uses one binding layout. Group 0 binding 0 is a uniform
// u32 entity_index. Group 1 holds two read-only storage buffers per bound
// component type k, in the order the stages read them: binding 2k is the
// packed value array and binding 2k+1 the sparse index array. A shader
// finds an entity's value as
//
//	values[index[entity_index] & 0xFFFFFF]
//
// The low 24 bits of an index entry select the packed slot (for list
// types, the first element of the entity's range); the top 8 bits are
// reserved.
//
// Color targets are the render-target types the fragment stage writes.
// Render targets are viewport-scoped components holding a Target and are
// created by a TargetJob.
package pipeline
