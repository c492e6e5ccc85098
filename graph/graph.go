// Package graph derives execution order from job declarations.
//
// An edge A -> B exists when A writes a type B reads, when B lists A in
// After, or when A is the vertex stage and B the fragment stage of one
// pipeline. Parallel edges collapse and a job reading its own output adds
// no edge. The graph is immutable once built; the order and the waves are
// computed once.
package graph

import (
	"fmt"
	"slices"

	"github.com/gogpu/gecs/job"
)

// Graph is the dependency DAG of a job set.
type Graph struct {
	jobs  []*job.Descriptor // registration order
	index map[string]int    // key -> node
	succ  [][]int
	pred  [][]int

	order []int   // topological, ties by registration order
	waves [][]int // nodes grouped by longest path from a root
	reach []bitset
}

// Build validates jobs and computes their ordering.
func Build(jobs []*job.Descriptor) (*Graph, error) {
	g := &Graph{
		jobs:  jobs,
		index: make(map[string]int, len(jobs)),
		succ:  make([][]int, len(jobs)),
		pred:  make([][]int, len(jobs)),
	}
	for i, d := range jobs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := g.index[d.Key()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, d.Key())
		}
		g.index[d.Key()] = i
	}
	if err := g.checkPairs(); err != nil {
		return nil, err
	}
	if err := g.addEdges(); err != nil {
		return nil, err
	}
	if err := g.sort(); err != nil {
		return nil, err
	}
	g.computeReach()
	if err := g.checkWrites(); err != nil {
		return nil, err
	}
	g.computeWaves()
	return g, nil
}

func (g *Graph) checkPairs() error {
	for _, d := range g.jobs {
		var other job.Descriptor
		switch d.Kind {
		case job.KindVertexShader:
			other = job.Descriptor{Name: d.Name, Kind: job.KindFragmentShader}
		case job.KindFragmentShader:
			other = job.Descriptor{Name: d.Name, Kind: job.KindVertexShader}
		default:
			continue
		}
		if _, ok := g.index[other.Key()]; !ok {
			return fmt.Errorf("%w: %s has no %s stage", ErrUnpairedShader, d.Key(), other.Kind)
		}
	}
	return nil
}

// named returns every node whose job Name is name.
func (g *Graph) named(name string) []int {
	var out []int
	for _, key := range []string{
		name,
		(&job.Descriptor{Name: name, Kind: job.KindVertexShader}).Key(),
		(&job.Descriptor{Name: name, Kind: job.KindFragmentShader}).Key(),
	} {
		if i, ok := g.index[key]; ok {
			out = append(out, i)
		}
	}
	return out
}

func (g *Graph) addEdges() error {
	edges := make([]map[int]struct{}, len(g.jobs))
	add := func(from, to int) {
		if from == to {
			return
		}
		if edges[from] == nil {
			edges[from] = make(map[int]struct{})
		}
		edges[from][to] = struct{}{}
	}

	for a, da := range g.jobs {
		for _, out := range da.Outputs() {
			for b, db := range g.jobs {
				if db.Reads(out) {
					add(a, b)
				}
				// The update job that writes a type owns it; shader stages
				// drawing into it come after.
				if da.Kind == job.KindUpdate && db.Kind.IsShader() && db.Writes(out) {
					add(a, b)
				}
			}
		}
		for _, name := range da.After {
			nodes := g.named(name)
			if len(nodes) == 0 {
				return fmt.Errorf("%w: %s runs after %q", ErrUnknownJob, da.Key(), name)
			}
			for _, n := range nodes {
				add(n, a)
			}
		}
		if da.Kind == job.KindVertexShader {
			add(a, g.index[(&job.Descriptor{Name: da.Name, Kind: job.KindFragmentShader}).Key()])
		}
	}

	for from, set := range edges {
		for to := range set {
			g.succ[from] = append(g.succ[from], to)
			g.pred[to] = append(g.pred[to], from)
		}
	}
	for i := range g.jobs {
		slices.Sort(g.succ[i])
		slices.Sort(g.pred[i])
	}
	return nil
}

// sort runs Kahn's algorithm, always taking the ready node registered first.
func (g *Graph) sort() error {
	indeg := make([]int, len(g.jobs))
	for i := range g.jobs {
		indeg[i] = len(g.pred[i])
	}
	var ready []int
	for i, d := range indeg {
		if d == 0 {
			ready = append(ready, i)
		}
	}
	g.order = make([]int, 0, len(g.jobs))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		g.order = append(g.order, n)
		for _, s := range g.succ[n] {
			indeg[s]--
			if indeg[s] == 0 {
				pos, _ := slices.BinarySearch(ready, s)
				ready = slices.Insert(ready, pos, s)
			}
		}
	}
	if len(g.order) == len(g.jobs) {
		return nil
	}
	return &CycleError{Jobs: g.findCycle(indeg)}
}

// findCycle walks predecessors among unsorted nodes until one repeats.
// Every unsorted node has an unsorted predecessor, so the walk closes.
func (g *Graph) findCycle(indeg []int) []string {
	start := -1
	for i, d := range indeg {
		if d > 0 {
			start = i
			break
		}
	}
	seen := make(map[int]int)
	var path []int
	n := start
	for {
		if at, ok := seen[n]; ok {
			path = path[at:]
			break
		}
		seen[n] = len(path)
		path = append(path, n)
		for _, p := range g.pred[n] {
			if indeg[p] > 0 {
				n = p
				break
			}
		}
	}
	// path follows predecessors; report it in edge direction.
	slices.Reverse(path)
	keys := make([]string, 0, len(path)+1)
	for _, i := range path {
		keys = append(keys, g.jobs[i].Key())
	}
	return append(keys, keys[0])
}

// computeReach fills the transitive successor sets in reverse order.
func (g *Graph) computeReach() {
	g.reach = make([]bitset, len(g.jobs))
	for i := len(g.order) - 1; i >= 0; i-- {
		n := g.order[i]
		r := newBitset(len(g.jobs))
		for _, s := range g.succ[n] {
			r.set(s)
			r.or(g.reach[s])
		}
		g.reach[n] = r
	}
}

func (g *Graph) checkWrites() error {
	writers := make(map[string][]int)
	var types []string
	for i, d := range g.jobs {
		if d.Kind != job.KindUpdate {
			continue
		}
		for _, out := range d.Outputs() {
			if _, ok := writers[out]; !ok {
				types = append(types, out)
			}
			writers[out] = append(writers[out], i)
		}
	}
	for _, typ := range types {
		w := writers[typ]
		for x := 0; x < len(w); x++ {
			for y := x + 1; y < len(w); y++ {
				a, b := w[x], w[y]
				if !g.reach[a].has(b) && !g.reach[b].has(a) {
					return &ConflictError{Type: typ, A: g.jobs[a].Key(), B: g.jobs[b].Key()}
				}
			}
		}
	}
	return nil
}

func (g *Graph) computeWaves() {
	level := make([]int, len(g.jobs))
	depth := 0
	for _, n := range g.order {
		for _, p := range g.pred[n] {
			level[n] = max(level[n], level[p]+1)
		}
		depth = max(depth, level[n]+1)
	}
	g.waves = make([][]int, depth)
	for _, n := range g.order {
		g.waves[level[n]] = append(g.waves[level[n]], n)
	}
}

func (g *Graph) descriptors(nodes []int) []*job.Descriptor {
	out := make([]*job.Descriptor, len(nodes))
	for i, n := range nodes {
		out[i] = g.jobs[n]
	}
	return out
}

func (g *Graph) keys(nodes []int) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = g.jobs[n].Key()
	}
	return out
}

// Len returns the number of jobs.
func (g *Graph) Len() int { return len(g.jobs) }

// Job returns the descriptor registered under key.
func (g *Graph) Job(key string) (*job.Descriptor, bool) {
	i, ok := g.index[key]
	if !ok {
		return nil, false
	}
	return g.jobs[i], true
}

// Jobs returns the descriptors in registration order.
func (g *Graph) Jobs() []*job.Descriptor { return slices.Clone(g.jobs) }

// Order returns the jobs in topological order. Among jobs with no
// ordering between them, the one registered first comes first.
func (g *Graph) Order() []*job.Descriptor { return g.descriptors(g.order) }

// Waves groups the order into levels: every job of a wave depends only on
// jobs of earlier waves, so the jobs of one wave are mutually unordered.
func (g *Graph) Waves() [][]*job.Descriptor {
	out := make([][]*job.Descriptor, len(g.waves))
	for i, w := range g.waves {
		out[i] = g.descriptors(w)
	}
	return out
}

// Dependencies returns the keys of the direct predecessors of key.
func (g *Graph) Dependencies(key string) []string {
	i, ok := g.index[key]
	if !ok {
		return nil
	}
	return g.keys(g.pred[i])
}

// Dependents returns the keys of the direct successors of key.
func (g *Graph) Dependents(key string) []string {
	i, ok := g.index[key]
	if !ok {
		return nil
	}
	return g.keys(g.succ[i])
}

// Downstream returns every job reachable from key, in topological order.
func (g *Graph) Downstream(key string) []string {
	i, ok := g.index[key]
	if !ok {
		return nil
	}
	var out []string
	for _, n := range g.order {
		if g.reach[i].has(n) {
			out = append(out, g.jobs[n].Key())
		}
	}
	return out
}

// Reachable reports whether a path leads from job a to job b.
func (g *Graph) Reachable(a, b string) bool {
	i, okA := g.index[a]
	j, okB := g.index[b]
	return okA && okB && g.reach[i].has(j)
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, s := range g.succ {
		n += len(s)
	}
	return n
}

// bitset is a fixed-size set of node indices.
type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (b bitset) set(i int)      { b[i/64] |= 1 << (uint(i) % 64) }
func (b bitset) has(i int) bool { return b[i/64]&(1<<(uint(i)%64)) != 0 }

func (b bitset) or(o bitset) {
	for i := range b {
		b[i] |= o[i]
	}
}
