package gecs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/gecs/backend"
	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/gpucore"
	"github.com/gogpu/gecs/graph"
	"github.com/gogpu/gecs/job"
	"github.com/gogpu/gecs/mirror"
	"github.com/gogpu/gecs/pipeline"
	"github.com/gogpu/gecs/schedule"
	"github.com/gogpu/gecs/script"
)

// Entity is a versioned entity or viewport handle.
type Entity = component.Entity

// Report summarizes one tick.
type Report = schedule.Report

// Stats is a snapshot of engine counters.
type Stats struct {
	Entities  int
	Viewports int
	Jobs      int
	Pipelines int
	Ticks     uint64
	Mirror    mirror.Stats
}

// Engine owns the component registry, the job graph and the GPU state
// derived from them.
//
// All methods are safe for concurrent use. Component writes from the host
// are serialized with Tick, so they never race with running jobs.
type Engine struct {
	mu     sync.Mutex
	opts   options
	device gpucore.Device
	owned  bool

	reg       *component.Registry
	entities  *component.Allocator
	viewports *component.Allocator
	live      []Entity
	labels    map[string]Entity

	mirrors *mirror.Set
	builder *pipeline.Builder

	jobs      []*job.Descriptor
	graph     *graph.Graph
	sched     *schedule.Scheduler
	pipelines map[string]*pipeline.Pipeline
	scripts   []ownedScript

	// Tick clock: wall time of the last Tick and the summed steps.
	last    time.Time
	elapsed time.Duration

	closed bool
}

// ownedScript ties a compiled script to the descriptor that runs it.
type ownedScript struct {
	s *script.Script
	d *job.Descriptor
}

// New creates an engine. Without WithDevice it opens the backend named by
// WithBackend, or the best available one, and closes it on Close.
func New(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		opts:      o,
		device:    o.device,
		reg:       component.NewRegistry(),
		entities:  component.NewAllocator(o.entityCapacity),
		viewports: component.NewAllocator(4),
		pipelines: make(map[string]*pipeline.Pipeline),
		labels:    make(map[string]Entity),
	}
	if e.device == nil {
		var err error
		if o.backend != "" {
			e.device, err = backend.Open(o.backend)
		} else {
			e.device, err = backend.Default()
		}
		if err != nil {
			return nil, fmt.Errorf("gecs: open device: %w", err)
		}
		e.owned = true
	}

	if _, err := e.reg.Register(pipeline.ViewportDimensionsComponent()); err != nil {
		e.closeDevice()
		return nil, err
	}
	e.mirrors = mirror.NewSet(e.device, e.reg, mirror.WithMinSize(o.mirrorMinSize))
	e.builder = pipeline.NewBuilder(e.device, e.reg, e.mirrors, pipeline.WithDefaultFormat(o.targetFormat))

	g, err := graph.Build(nil)
	if err != nil {
		e.closeDevice()
		return nil, err
	}
	e.graph = g
	e.sched = schedule.New(g, schedule.WithWorkers(o.workers))

	e.logger().Info("gecs: engine created", "device", e.device.Name(), "owned", e.owned)
	return e, nil
}

func (e *Engine) logger() *slog.Logger {
	if e.opts.logger != nil {
		return e.opts.logger
	}
	return Logger()
}

func (e *Engine) closeDevice() {
	if e.owned {
		e.device.Close()
	}
}

// Device returns the device the engine draws with.
func (e *Engine) Device() gpucore.Device { return e.device }

// Registry returns the component registry. Stores must only be touched
// from jobs or while no tick runs.
func (e *Engine) Registry() *component.Registry { return e.reg }

// Graph returns the current job graph.
func (e *Engine) Graph() *graph.Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph
}

// Pipeline returns the pipeline registered under name.
func (e *Engine) Pipeline(name string) (*pipeline.Pipeline, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pipelines[name]
	return p, ok
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Entities:  e.entities.Len(),
		Viewports: len(e.live),
		Jobs:      e.graph.Len(),
		Pipelines: len(e.pipelines),
		Ticks:     e.sched.Ticks(),
		Mirror:    e.mirrors.Stats(),
	}
}

// RegisterType adds a component type.
func (e *Engine) RegisterType(t component.Type) (component.TypeID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}
	return e.reg.Register(t)
}

// Register adds jobs to the current set and rebuilds the graph. On error
// the previous set stays in effect.
func (e *Engine) Register(jobs ...*job.Descriptor) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.setJobsLocked(append(slices.Clone(e.jobs), jobs...))
}

// Reload replaces the whole job set. Jobs whose declaration is unchanged
// keep their run history; pipelines of removed or changed pairs are
// released. On error the previous set stays in effect.
func (e *Engine) Reload(jobs []*job.Descriptor) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.setJobsLocked(slices.Clone(jobs))
}

// Jobs returns the registered descriptors in registration order.
func (e *Engine) Jobs() []*job.Descriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.jobs)
}

func (e *Engine) setJobsLocked(jobs []*job.Descriptor) error {
	for _, d := range jobs {
		if d == nil {
			return fmt.Errorf("%w: nil descriptor", job.ErrInvalidDescriptor)
		}
		for _, a := range d.Access {
			if _, err := e.reg.Resolve(a.Type); err != nil {
				return fmt.Errorf("job %s: %w", d.Key(), err)
			}
		}
	}
	g, err := graph.Build(jobs)
	if err != nil {
		return err
	}

	next := make(map[string]*pipeline.Pipeline)
	var built []*pipeline.Pipeline
	for _, vs := range g.Jobs() {
		if vs.Kind != job.KindVertexShader {
			continue
		}
		fs, _ := g.Job(vs.Name + "/fragment")
		if old, ok := e.pipelines[vs.Name]; ok && e.unchanged(vs, fs) {
			next[vs.Name] = old
			continue
		}
		p, err := e.builder.Build(vs, fs)
		if err != nil {
			for _, b := range built {
				e.builder.Release(b)
			}
			return err
		}
		built = append(built, p)
		next[vs.Name] = p
	}

	for name, old := range e.pipelines {
		if next[name] != old {
			e.builder.Release(old)
		}
	}
	e.pipelines = next

	prev := e.graph
	e.jobs = jobs
	e.graph = g
	e.sched.SetGraph(g)
	for _, d := range jobs {
		if od, ok := prev.Job(d.Key()); ok && od != d {
			e.sched.Forget(d.Key())
		}
	}

	kept := e.scripts[:0]
	for _, o := range e.scripts {
		if d, ok := g.Job(o.d.Key()); ok && d == o.d {
			kept = append(kept, o)
			continue
		}
		o.s.Close()
	}
	e.scripts = kept

	e.logger().Info("gecs: job graph rebuilt",
		"jobs", g.Len(), "edges", g.EdgeCount(), "waves", len(g.Waves()), "pipelines", len(next))
	return nil
}

// unchanged reports whether both stages are the descriptors already in
// the current graph.
func (e *Engine) unchanged(vs, fs *job.Descriptor) bool {
	ovs, ok := e.graph.Job(vs.Key())
	if !ok || ovs != vs {
		return false
	}
	ofs, ok := e.graph.Job(fs.Key())
	return ok && ofs == fs
}

// AddTarget registers the render target type targetType, if missing, and
// the update job that maintains it. A zero format uses WithTargetFormat.
func (e *Engine) AddTarget(jobName, targetType string, format gpucore.TextureFormat) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	d, err := e.targetLocked(jobName, targetType, format)
	if err != nil {
		return err
	}
	return e.setJobsLocked(append(slices.Clone(e.jobs), d))
}

func (e *Engine) targetLocked(jobName, targetType string, format gpucore.TextureFormat) (*job.Descriptor, error) {
	if id, ok := e.reg.Lookup(targetType); ok {
		if e.reg.Type(id).Kind != component.KindRenderTarget {
			return nil, fmt.Errorf("%w: %s is not a render target", component.ErrInvalidType, targetType)
		}
	} else if _, err := e.reg.Register(pipeline.TargetType(targetType)); err != nil {
		return nil, err
	}
	if format == 0 {
		format = e.opts.targetFormat
	}
	return e.builder.TargetJob(jobName, targetType, format), nil
}

// Spawn creates an entity.
func (e *Engine) Spawn() (Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return component.Nil, ErrClosed
	}
	return e.entities.Create()
}

// Destroy removes ent from every entity-scoped store and frees its handle.
func (e *Engine) Destroy(ent Entity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if !e.entities.Alive(ent) {
		return fmt.Errorf("%w: %v", ErrUnknownEntity, ent)
	}
	n := e.reg.RemoveAll(component.ScopeEntity, ent)
	e.entities.Destroy(ent)
	maps.DeleteFunc(e.labels, func(_ string, l Entity) bool { return l == ent })
	e.logger().Debug("gecs: entity destroyed", "entity", ent, "components", n)
	return nil
}

// Entity returns the live entity spawned under label by a manifest.
func (e *Engine) Entity(label string) (Entity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.labels[label]
	if !ok || !e.entities.Alive(ent) {
		return component.Nil, false
	}
	return ent, true
}

// Alive reports whether ent is a live entity.
func (e *Engine) Alive(ent Entity) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entities.Alive(ent)
}

// CreateViewport creates a live viewport holding ViewportDimensions.
// A zero scale is stored as 1.
func (e *Engine) CreateViewport(width, height uint32, scale float32) (Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return component.Nil, ErrClosed
	}
	vp, err := e.viewports.Create()
	if err != nil {
		return component.Nil, err
	}
	if err := e.setDimensions(vp, width, height, scale); err != nil {
		e.viewports.Destroy(vp)
		return component.Nil, err
	}
	e.live = append(e.live, vp)
	e.logger().Info("gecs: viewport created", "viewport", vp, "width", width, "height", height)
	return vp, nil
}

// ResizeViewport updates the dimensions of vp. Its render targets are
// recreated by their target jobs on the next tick.
func (e *Engine) ResizeViewport(vp Entity, width, height uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if !e.viewports.Alive(vp) {
		return fmt.Errorf("%w: %v", ErrUnknownViewport, vp)
	}
	var scale float32
	if d, err := e.dimensions(vp); err == nil {
		scale = d.Scale
	}
	return e.setDimensions(vp, width, height, scale)
}

func (e *Engine) dimensions(vp Entity) (ViewportDimensions, error) {
	st, err := e.dimsStore()
	if err != nil {
		return ViewportDimensions{}, err
	}
	return component.Get[ViewportDimensions](st, vp)
}

func (e *Engine) dimsStore() (*component.Store, error) {
	id, err := e.reg.Resolve(ViewportDimensionsType)
	if err != nil {
		return nil, err
	}
	return e.reg.Store(id)
}

func (e *Engine) setDimensions(vp Entity, width, height uint32, scale float32) error {
	if scale == 0 {
		scale = 1
	}
	st, err := e.dimsStore()
	if err != nil {
		return err
	}
	return component.Set(st, vp, ViewportDimensions{Width: width, Height: height, Scale: scale})
}

// DestroyViewport releases the render targets of vp and removes it from
// every viewport-scoped store.
func (e *Engine) DestroyViewport(vp Entity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if !e.viewports.Alive(vp) {
		return fmt.Errorf("%w: %v", ErrUnknownViewport, vp)
	}
	e.builder.ReleaseTargets(vp)
	e.reg.RemoveAll(component.ScopeViewport, vp)
	e.viewports.Destroy(vp)
	if i := slices.Index(e.live, vp); i >= 0 {
		e.live = slices.Delete(e.live, i, i+1)
	}
	e.logger().Info("gecs: viewport destroyed", "viewport", vp)
	return nil
}

// Viewports returns the live viewports in creation order.
func (e *Engine) Viewports() []Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.live)
}

// Tick runs every due job once. Job failures are reported in the Report
// and do not fail the tick; the error is non-nil when ctx is cancelled
// or the engine is closed.
//
// The time step handed to jobs is the wall time since the previous Tick,
// zero on the first.
func (e *Engine) Tick(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	var dt time.Duration
	if !e.last.IsZero() {
		dt = now.Sub(e.last)
	}
	e.last = now
	return e.tickLocked(ctx, dt)
}

// Step is Tick with a fixed time step dt.
func (e *Engine) Step(ctx context.Context, dt time.Duration) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dt < 0 {
		dt = 0
	}
	return e.tickLocked(ctx, dt)
}

func (e *Engine) tickLocked(ctx context.Context, dt time.Duration) (*Report, error) {
	if e.closed {
		return nil, ErrClosed
	}

	e.elapsed += dt
	env := &env{
		e:         e,
		tick:      e.sched.Ticks() + 1,
		delta:     dt,
		elapsed:   e.elapsed,
		viewports: slices.Clone(e.live),
		frame:     pipeline.NewFrame(),
	}
	report, err := e.sched.Tick(ctx, env)
	if err != nil {
		if errors.Is(err, schedule.ErrClosed) {
			return nil, ErrClosed
		}
		return report, err
	}
	e.logger().Debug("gecs: tick",
		"tick", report.Tick, "ran", len(report.Ran), "skipped", len(report.Skipped),
		"failed", len(report.Failed), "passes", env.frame.Passes(), "duration", report.Duration)
	return report, nil
}

// Close releases every GPU resource. The device is closed only when the
// engine opened it. Close is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.sched.Close()
	for _, vp := range e.live {
		e.builder.ReleaseTargets(vp)
	}
	e.builder.Close()
	e.mirrors.Close()
	for _, o := range e.scripts {
		o.s.Close()
	}
	e.scripts = nil
	e.closeDevice()
	e.logger().Info("gecs: engine closed")
}

// owner resolves the allocator that must hold ent for a type of scope.
func (e *Engine) owner(ent Entity, scope component.Scope) error {
	switch scope {
	case component.ScopeViewport:
		if !e.viewports.Alive(ent) {
			return fmt.Errorf("%w: %v", ErrUnknownViewport, ent)
		}
	default:
		if !e.entities.Alive(ent) {
			return fmt.Errorf("%w: %v", ErrUnknownEntity, ent)
		}
	}
	return nil
}

// storage returns the store of typ after checking that ent may hold it.
func (e *Engine) storage(ent Entity, typ string) (component.Storage, error) {
	if e.closed {
		return nil, ErrClosed
	}
	id, err := e.reg.Resolve(typ)
	if err != nil {
		return nil, err
	}
	st := e.reg.Storage(id)
	if err := e.owner(ent, st.Type().Scope); err != nil {
		return nil, err
	}
	return st, nil
}

// Remove deletes the typ component of ent. It reports whether one was held.
func (e *Engine) Remove(ent Entity, typ string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.storage(ent, typ)
	if err != nil {
		return false, err
	}
	return st.Remove(ent), nil
}

// Set writes the typ component of ent. T must have the type's byte size.
func Set[T any](e *Engine, ent Entity, typ string, v T) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.storage(ent, typ)
	if err != nil {
		return err
	}
	s, ok := st.(*component.Store)
	if !ok {
		return fmt.Errorf("%w: %s is a list type", component.ErrNotList, typ)
	}
	return component.Set(s, ent, v)
}

// Get returns a copy of the typ component of ent.
func Get[T any](e *Engine, ent Entity, typ string) (T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var zero T
	st, err := e.storage(ent, typ)
	if err != nil {
		return zero, err
	}
	s, ok := st.(*component.Store)
	if !ok {
		return zero, fmt.Errorf("%w: %s is a list type", component.ErrNotList, typ)
	}
	return component.Get[T](s, ent)
}

// SetList replaces the typ list of ent with vs.
func SetList[T any](e *Engine, ent Entity, typ string, vs []T) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ls, err := e.list(ent, typ)
	if err != nil {
		return err
	}
	return component.ReplaceList(ls, ent, vs)
}

// GetList returns a copy of the typ list of ent.
func GetList[T any](e *Engine, ent Entity, typ string) ([]T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ls, err := e.list(ent, typ)
	if err != nil {
		return nil, err
	}
	out := make([]T, ls.Count(ent))
	for i := range out {
		if out[i], err = component.At[T](ls, ent, i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Engine) list(ent Entity, typ string) (*component.ListStore, error) {
	st, err := e.storage(ent, typ)
	if err != nil {
		return nil, err
	}
	ls, ok := st.(*component.ListStore)
	if !ok {
		return nil, fmt.Errorf("%w: %s", component.ErrNotList, typ)
	}
	return ls, nil
}

// env is the schedule.Env of one tick. The engine mutex is held by Tick
// for its whole lifetime.
type env struct {
	e         *Engine
	tick      uint64
	delta     time.Duration
	elapsed   time.Duration
	viewports []Entity
	frame     *pipeline.Frame
}

func (v *env) Generation(typ string) uint64 {
	id, ok := v.e.reg.Lookup(typ)
	if !ok {
		return 0
	}
	return v.e.reg.Generation(id)
}

func (v *env) RunUpdate(ctx context.Context, d *job.Descriptor) error {
	return d.Run(ctx, &job.Context{
		Job:       d,
		Registry:  v.e.reg,
		Viewports: v.viewports,
		Tick:      v.tick,
		Delta:     v.delta,
		Time:      v.elapsed,
		Logger:    v.e.logger().With("job", d.Name),
	})
}

func (v *env) Sync(types []string) error {
	ids := make([]component.TypeID, 0, len(types))
	for _, name := range types {
		id, err := v.e.reg.Resolve(name)
		if err != nil {
			return err
		}
		if v.e.reg.Type(id).Kind == component.KindRenderTarget {
			continue
		}
		ids = append(ids, id)
	}
	return v.e.mirrors.Sync(ids...)
}

func (v *env) Draw(ctx context.Context, name string) error {
	p, ok := v.e.pipelines[name]
	if !ok {
		return fmt.Errorf("%w: %s", pipeline.ErrInvalidPipeline, name)
	}
	var errs []error
	for _, vp := range v.viewports {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := v.e.builder.Execute(p, vp, v.frame); err != nil {
			errs = append(errs, fmt.Errorf("viewport %v: %w", vp, err))
		}
	}
	return errors.Join(errs...)
}

func (v *env) Live() bool { return len(v.viewports) > 0 }
