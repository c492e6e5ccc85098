// Package schedule runs a job graph once per tick.
//
// Every tick moves through Idle, Evaluating and Running back to Idle.
// A job runs when it never ran or when a type it reads changed since its
// last successful run; shader stages and continuous jobs run every tick
// while a viewport is live. Waves of the graph run in order. The update
// jobs of a wave run in parallel on a worker pool, then its shader stages
// run serially on the calling goroutine.
//
// A failing job is reported and isolated: its outputs count as unchanged
// and every job downstream of it is skipped for the tick.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gecs/graph"
	"github.com/gogpu/gecs/internal/parallel"
	"github.com/gogpu/gecs/job"
)

// State is the phase of the scheduler.
type State int32

const (
	// StateIdle means no tick is in progress.
	StateIdle State = iota
	// StateEvaluating means the scheduler is deciding which jobs are due.
	StateEvaluating
	// StateRunning means jobs are executing.
	StateRunning
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateEvaluating:
		return "Evaluating"
	case StateRunning:
		return "Running"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Env is what the scheduler drives. The engine implements it.
type Env interface {
	// Generation returns the mutation counter of a component type.
	Generation(typ string) uint64

	// RunUpdate executes an update job. It may be called from several
	// goroutines for jobs with disjoint writes.
	RunUpdate(ctx context.Context, d *job.Descriptor) error

	// Sync mirrors types to the GPU.
	Sync(types []string) error

	// Draw encodes and submits the pipeline of the named shader pair for
	// every live viewport.
	Draw(ctx context.Context, pipeline string) error

	// Live reports whether at least one viewport is live.
	Live() bool
}

// Report summarizes one tick.
type Report struct {
	Tick     uint64
	Ran      []string
	Skipped  []string
	Failed   []string
	Errors   []error
	Duration time.Duration
}

// Err joins the job errors of the tick, nil when every job succeeded.
func (r *Report) Err() error { return errors.Join(r.Errors...) }

// record is what the scheduler remembers of a job between ticks.
type record struct {
	ran  bool
	gens map[string]uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the worker count of the update pool. Zero or less
// uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *Scheduler) { s.workers = n }
}

// Scheduler runs a graph tick by tick.
//
// Tick calls are serialized. State may be read from any goroutine.
type Scheduler struct {
	mu      sync.Mutex
	graph   *graph.Graph
	waves   [][]*job.Descriptor
	records map[string]*record
	tick    uint64
	workers int
	pool    *parallel.WorkerPool
	closed  bool

	state atomic.Int32
}

// New creates a scheduler for g.
func New(g *graph.Graph, opts ...Option) *Scheduler {
	s := &Scheduler{records: make(map[string]*record)}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = parallel.NewWorkerPool(s.workers)
	s.setGraph(g)
	return s
}

// State returns the current phase.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Ticks returns the number of completed ticks.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// SetGraph swaps the job graph after a reload. Jobs that kept their key
// and declaration keep their history; every other job counts as never run.
func (s *Scheduler) SetGraph(g *graph.Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.graph
	s.setGraph(g)
	for key := range s.records {
		nd, ok := g.Job(key)
		if !ok {
			delete(s.records, key)
			continue
		}
		if od, ok := old.Job(key); !ok || !sameDeclaration(od, nd) {
			delete(s.records, key)
		}
	}
}

func (s *Scheduler) setGraph(g *graph.Graph) {
	s.graph = g
	s.waves = g.Waves()
}

func sameDeclaration(a, b *job.Descriptor) bool {
	return a == b || (a.Kind == b.Kind &&
		slices.Equal(a.Access, b.Access) &&
		slices.Equal(a.After, b.After) &&
		a.Continuous == b.Continuous &&
		a.Shader == b.Shader &&
		a.Draw == b.Draw)
}

// Forget clears the history of a job so it runs on the next tick.
func (s *Scheduler) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
}

// due must be called with mu held.
func (s *Scheduler) due(d *job.Descriptor, env Env, live bool) (bool, string) {
	if d.Kind.IsShader() {
		if live {
			return true, "render"
		}
		return false, "no viewport"
	}
	if d.Continuous && live {
		return true, "continuous"
	}
	rec, ok := s.records[d.Key()]
	if !ok || !rec.ran {
		return true, "first run"
	}
	for _, in := range d.Inputs() {
		if env.Generation(in) != rec.gens[in] {
			return true, "input " + in + " changed"
		}
	}
	return false, "inputs unchanged"
}

// Tick runs one scheduling pass. Job failures are collected in the report
// and never abort the pass; the returned error is non-nil only when ctx
// is cancelled between waves or the scheduler is closed.
func (s *Scheduler) Tick(ctx context.Context, env Env) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	start := time.Now()
	s.tick++
	report := &Report{Tick: s.tick}
	defer func() {
		report.Duration = time.Since(start)
		s.state.Store(int32(StateIdle))
	}()

	// Evaluating fixes the jobs due from the state at tick start. Jobs not
	// due yet are evaluated again in their wave, after earlier waves of
	// this tick may have advanced their inputs. Generations only grow
	// within a tick, so a job due here stays due.
	s.state.Store(int32(StateEvaluating))
	live := env.Live()
	blocked := make(map[string]bool)
	pending := make(map[string]string)
	for _, wave := range s.waves {
		for _, d := range wave {
			if due, why := s.due(d, env, live); due {
				pending[d.Key()] = why
			}
		}
	}
	slogger().Debug("schedule: evaluated", "tick", s.tick, "due", len(pending))

	s.state.Store(int32(StateRunning))
	for wi, wave := range s.waves {
		if err := ctx.Err(); err != nil {
			for _, rest := range s.waves[wi:] {
				for _, d := range rest {
					report.Skipped = append(report.Skipped, d.Key())
				}
			}
			return report, err
		}

		var updates, shaders []*job.Descriptor
		for _, d := range wave {
			if blocked[d.Key()] {
				report.Skipped = append(report.Skipped, d.Key())
				continue
			}
			why, due := pending[d.Key()]
			if !due {
				if due, why = s.due(d, env, live); !due {
					slogger().Debug("schedule: job not due", "job", d.Key(), "reason", why)
					report.Skipped = append(report.Skipped, d.Key())
					continue
				}
			}
			slogger().Debug("schedule: running job", "job", d.Key(), "reason", why, "tick", s.tick)
			if d.Kind == job.KindUpdate {
				updates = append(updates, d)
			} else {
				shaders = append(shaders, d)
			}
		}

		for _, batch := range batches(updates) {
			s.runUpdates(ctx, env, batch, report, blocked)
		}
		for _, d := range shaders {
			s.runShader(ctx, env, d, report, blocked)
		}
	}
	return report, nil
}

// runUpdates runs one batch of access-disjoint update jobs in parallel.
func (s *Scheduler) runUpdates(ctx context.Context, env Env, batch []*job.Descriptor, report *Report, blocked map[string]bool) {
	before := make([]map[string]uint64, len(batch))
	tasks := make([]parallel.Task, len(batch))
	for i, d := range batch {
		before[i] = s.snapshot(d, env)
		tasks[i] = func() error { return env.RunUpdate(ctx, d) }
	}
	errs := s.pool.ExecuteAll(tasks)

	for i, d := range batch {
		if errs[i] != nil {
			s.fail(d, errs[i], report, blocked)
			continue
		}
		gens := before[i]
		// A job reading its own output must not retrigger itself.
		for _, in := range d.Inputs() {
			if d.Writes(in) {
				gens[in] = env.Generation(in)
			}
		}
		s.records[d.Key()] = &record{ran: true, gens: gens}
		report.Ran = append(report.Ran, d.Key())
	}
}

// runShader mirrors the inputs of a stage and, for the fragment stage,
// draws the pipeline.
func (s *Scheduler) runShader(ctx context.Context, env Env, d *job.Descriptor, report *Report, blocked map[string]bool) {
	gens := s.snapshot(d, env)
	err := env.Sync(d.Inputs())
	if err == nil && d.Kind == job.KindFragmentShader {
		err = env.Draw(ctx, d.Name)
	}
	if err != nil {
		s.fail(d, err, report, blocked)
		return
	}
	s.records[d.Key()] = &record{ran: true, gens: gens}
	report.Ran = append(report.Ran, d.Key())
}

func (s *Scheduler) snapshot(d *job.Descriptor, env Env) map[string]uint64 {
	gens := make(map[string]uint64, len(d.Access))
	for _, in := range d.Inputs() {
		gens[in] = env.Generation(in)
	}
	return gens
}

// fail records a job error and blocks everything downstream of the job.
func (s *Scheduler) fail(d *job.Descriptor, err error, report *Report, blocked map[string]bool) {
	jerr := &JobError{Job: d.Key(), Err: err}
	report.Failed = append(report.Failed, d.Key())
	report.Errors = append(report.Errors, jerr)
	down := s.graph.Downstream(d.Key())
	for _, k := range down {
		blocked[k] = true
	}
	slogger().Warn("schedule: job failed", "job", d.Key(), "err", err, "skipped_downstream", len(down))
}

// batches splits jobs into groups with no write overlapping another
// access of the same type. Jobs keep their relative order.
func batches(jobs []*job.Descriptor) [][]*job.Descriptor {
	var out [][]*job.Descriptor
	var claimed []map[string]job.Mode
next:
	for _, d := range jobs {
		for bi, c := range claimed {
			if !conflicts(d, c) {
				out[bi] = append(out[bi], d)
				claim(c, d)
				continue next
			}
		}
		c := make(map[string]job.Mode)
		claim(c, d)
		claimed = append(claimed, c)
		out = append(out, []*job.Descriptor{d})
	}
	return out
}

func conflicts(d *job.Descriptor, claimed map[string]job.Mode) bool {
	for _, a := range d.Access {
		m, ok := claimed[a.Type]
		if ok && (m == job.Write || a.Mode == job.Write) {
			return true
		}
	}
	return false
}

func claim(claimed map[string]job.Mode, d *job.Descriptor) {
	for _, a := range d.Access {
		claimed[a.Type] = max(claimed[a.Type], a.Mode)
	}
}

// Close stops the worker pool. Further ticks return ErrClosed.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.pool.Close()
}
