package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/gpucore"
)

// Descriptor errors.
var (
	// ErrInvalidDescriptor is returned for malformed job declarations.
	ErrInvalidDescriptor = errors.New("job: invalid descriptor")

	// ErrUndeclaredAccess is returned when a job touches a type it did not declare.
	ErrUndeclaredAccess = errors.New("job: undeclared component access")
)

// Kind tags what a job executes.
type Kind uint8

const (
	// KindUpdate runs a Go function on the CPU.
	KindUpdate Kind = iota
	// KindVertexShader is the vertex stage of a render pipeline.
	KindVertexShader
	// KindFragmentShader is the fragment stage of a render pipeline.
	KindFragmentShader
)

// String returns the manifest spelling of k.
func (k Kind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	case KindVertexShader:
		return "vertex"
	case KindFragmentShader:
		return "fragment"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses "update", "vertex" or "fragment".
func ParseKind(s string) (Kind, error) {
	for k := KindUpdate; k <= KindFragmentShader; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidDescriptor, s)
}

// IsShader reports whether k is a vertex or fragment stage.
func (k Kind) IsShader() bool {
	return k == KindVertexShader || k == KindFragmentShader
}

// Mode is the access a job declares on a component type.
type Mode uint8

const (
	// Read declares an input.
	Read Mode = iota
	// Write declares an output.
	Write
)

// String returns "read" or "write".
func (m Mode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

// Access is one declared input or output. A job that updates a type in
// place declares both a Read and a Write of it.
type Access struct {
	Type string
	Mode Mode
}

// R declares a read of typ.
func R(typ string) Access { return Access{Type: typ, Mode: Read} }

// W declares a write of typ.
func W(typ string) Access { return Access{Type: typ, Mode: Write} }

// Shader is the WGSL text of a stage and its entry point.
type Shader struct {
	Source     string
	EntryPoint string
}

// Draw holds the draw parameters of a vertex stage.
type Draw struct {
	// Topology defaults to gpucore.TopologyTriangleList.
	Topology gpucore.Topology

	// Vertices names the type whose length gives the vertex count. Empty
	// selects the first non-target read of the vertex stage.
	Vertices string

	// Count overrides the derived vertex count.
	Count uint32

	// Instances names the type whose store length gives the instance
	// count of a single draw.
	Instances string

	// InstanceCount overrides the instance count, default 1.
	InstanceCount uint32

	// Blend is read from the fragment stage.
	Blend gpucore.BlendMode

	// Clear is the color a target is cleared to by its first draw in a frame.
	Clear gpucore.Color
}

// Func is the body of an Update job.
type Func func(ctx context.Context, c *Context) error

// Descriptor declares a job.
type Descriptor struct {
	Name   string
	Kind   Kind
	Access []Access

	// After lists jobs that must run before this one even without a data
	// dependency. A name naming a pipeline orders after both stages.
	After []string

	// Continuous jobs run every tick while a viewport is live. Shader
	// stages are always continuous.
	Continuous bool

	Run    Func
	Shader Shader
	Draw   Draw
}

// Key identifies the job in a graph. The two stages of a pipeline share
// a Name and differ in Key.
func (d *Descriptor) Key() string {
	switch d.Kind {
	case KindVertexShader:
		return d.Name + "/vertex"
	case KindFragmentShader:
		return d.Name + "/fragment"
	default:
		return d.Name
	}
}

// String returns the key.
func (d *Descriptor) String() string { return d.Key() }

// Validate checks the declaration in isolation.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	}
	seen := make(map[Access]struct{}, len(d.Access))
	for _, a := range d.Access {
		if a.Type == "" {
			return fmt.Errorf("%w: %s declares an empty type", ErrInvalidDescriptor, d.Key())
		}
		if _, dup := seen[a]; dup {
			return fmt.Errorf("%w: %s declares %s %s twice", ErrInvalidDescriptor, d.Key(), a.Mode, a.Type)
		}
		seen[a] = struct{}{}
	}
	switch d.Kind {
	case KindUpdate:
		if d.Run == nil {
			return fmt.Errorf("%w: update job %s has no Run", ErrInvalidDescriptor, d.Name)
		}
	case KindVertexShader, KindFragmentShader:
		if d.Shader.Source == "" {
			return fmt.Errorf("%w: %s has no shader source", ErrInvalidDescriptor, d.Key())
		}
	default:
		return fmt.Errorf("%w: %s has kind %v", ErrInvalidDescriptor, d.Name, d.Kind)
	}
	return nil
}

// Inputs returns the types the job reads, in declaration order.
func (d *Descriptor) Inputs() []string { return d.types(Read) }

// Outputs returns the types the job writes, in declaration order.
func (d *Descriptor) Outputs() []string { return d.types(Write) }

func (d *Descriptor) types(m Mode) []string {
	var out []string
	for _, a := range d.Access {
		if a.Mode == m {
			out = append(out, a.Type)
		}
	}
	return out
}

// Reads reports whether the job declares a read of typ.
func (d *Descriptor) Reads(typ string) bool {
	return slices.Contains(d.Access, Access{Type: typ, Mode: Read})
}

// Writes reports whether the job declares a write of typ.
func (d *Descriptor) Writes(typ string) bool {
	return slices.Contains(d.Access, Access{Type: typ, Mode: Write})
}

// Clone returns a copy whose slices are not shared with d.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Access = slices.Clone(d.Access)
	c.After = slices.Clone(d.After)
	return &c
}

// Context is passed to Update jobs.
type Context struct {
	// Job is the running descriptor.
	Job *Descriptor

	// Registry holds every component store.
	Registry *component.Registry

	// Viewports lists the live viewports in creation order.
	Viewports []component.Entity

	// Tick is the scheduler tick counter, starting at 1.
	Tick uint64

	// Delta is the time step of this tick and Time the sum of all steps
	// so far, including Delta.
	Delta time.Duration
	Time  time.Duration

	// Logger is the engine logger with a "job" attribute.
	Logger *slog.Logger
}

// Read returns the store of a declared input or output.
func (c *Context) Read(typ string) (component.Storage, error) {
	if !c.Job.Reads(typ) && !c.Job.Writes(typ) {
		return nil, fmt.Errorf("%w: %s reads %s", ErrUndeclaredAccess, c.Job.Key(), typ)
	}
	return c.storage(typ)
}

// Write returns the store of a declared output.
func (c *Context) Write(typ string) (component.Storage, error) {
	if !c.Job.Writes(typ) {
		return nil, fmt.Errorf("%w: %s writes %s", ErrUndeclaredAccess, c.Job.Key(), typ)
	}
	return c.storage(typ)
}

func (c *Context) storage(typ string) (component.Storage, error) {
	id, err := c.Registry.Resolve(typ)
	if err != nil {
		return nil, err
	}
	return c.Registry.Storage(id), nil
}

// ReadStore is Read narrowed to a single-value store.
func (c *Context) ReadStore(typ string) (*component.Store, error) {
	st, err := c.Read(typ)
	if err != nil {
		return nil, err
	}
	return asStore(st)
}

// WriteStore is Write narrowed to a single-value store.
func (c *Context) WriteStore(typ string) (*component.Store, error) {
	st, err := c.Write(typ)
	if err != nil {
		return nil, err
	}
	return asStore(st)
}

// WriteList is Write narrowed to a list store.
func (c *Context) WriteList(typ string) (*component.ListStore, error) {
	st, err := c.Write(typ)
	if err != nil {
		return nil, err
	}
	ls, ok := st.(*component.ListStore)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a list type", component.ErrNotList, typ)
	}
	return ls, nil
}

func asStore(st component.Storage) (*component.Store, error) {
	s, ok := st.(*component.Store)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a list type", component.ErrNotList, st.Type().Name)
	}
	return s, nil
}
