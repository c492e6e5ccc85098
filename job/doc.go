// Package job describes the units of work the scheduler runs.
//
// A Descriptor declares which component types a job reads and writes.
// Ordering between jobs is never authored directly: the graph package
// derives it from these declarations, with After as the only explicit
// annotation.
//
// Update jobs run Go (or Lua, see package script) on the CPU. Vertex and
// fragment jobs carry WGSL text; a vertex job and a fragment job with the
// same Name form one render pipeline.
package job
