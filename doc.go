// Package gecs schedules ECS jobs and keeps their components resident on
// the GPU.
//
// # Overview
//
// Components live in dense packed arrays with a sparse index per type.
// The sparse array doubles as the GPU index buffer, so a shader finds the
// value of an entity in two storage reads. Jobs declare which component
// types they read and write; the engine derives their order from those
// declarations alone, mirrors dirty ranges to the device before shader
// stages consume them, and draws every vertex/fragment pair once per tick
// for each live viewport.
//
// # Quick Start
//
//	e, err := gecs.New(gecs.WithBackend("software"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Close()
//
//	e.RegisterType(component.Type{Name: "Transform", Size: 64})
//	e.Register(&job.Descriptor{
//	    Name:   "spin",
//	    Kind:   job.KindUpdate,
//	    Access: []job.Access{job.W("Transform")},
//	    Run:    spin,
//	})
//
//	ent, _ := e.Spawn()
//	gecs.Set(e, ent, "Transform", identity)
//	report, err := e.Tick(ctx)
//
// # Jobs
//
// An Update job runs on the CPU when it never ran or when a type it reads
// changed since its last successful run. Continuous jobs and shader
// stages run every tick while a viewport is live. Independent update
// jobs run in parallel. A failing job is reported in the tick Report and
// only the jobs downstream of it are skipped.
//
// Lua update jobs and WGSL pipelines can be declared in a YAML manifest
// (see package config) and installed with Engine.Apply.
//
// # Viewports
//
// A viewport is a handle holding the built-in ViewportDimensions
// component and any viewport-scoped components such as render targets.
// AddTarget registers a render target type together with the job that
// sizes it to the viewport.
//
// # Architecture
//
//   - component: entities, stores, list stores, registry
//   - mirror: GPU buffers following component stores
//   - job, graph: job declarations and their dependency graph
//   - schedule: per-tick evaluation and dispatch
//   - pipeline: render pipelines, draws and render targets
//   - backend: device registry with software and native devices
//   - script, config: Lua jobs, TOML configuration and YAML manifests
package gecs

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)
