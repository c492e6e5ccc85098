package config

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/gpucore"
	"github.com/gogpu/gecs/job"
	"github.com/gogpu/gecs/pipeline"
	"github.com/gogpu/gecs/script"
)

// ErrManifest is wrapped by every manifest validation error.
var ErrManifest = errors.New("config: invalid manifest")

// Manifest declares component types and the jobs over them.
type Manifest struct {
	Types     []TypeSpec     `yaml:"types"`
	Targets   []TargetSpec   `yaml:"targets"`
	Jobs      []JobSpec      `yaml:"jobs"`
	Pipelines []PipelineSpec `yaml:"pipelines"`
	Entities  []EntitySpec   `yaml:"entities"`

	fsys fs.FS
	dir  string
}

// FieldSpec is one field of a type, e.g. {name: position, format: f32x3}.
type FieldSpec struct {
	Name   string `yaml:"name"`
	Format string `yaml:"format"`
}

// TypeSpec declares a component type. Size defaults to the laid-out size
// of Fields.
type TypeSpec struct {
	Name   string      `yaml:"name"`
	Size   uint32      `yaml:"size"`
	List   bool        `yaml:"list"`
	Scope  string      `yaml:"scope"` // entity (default) or viewport
	Fields []FieldSpec `yaml:"fields"`
}

// TargetSpec declares a render target type and the job that maintains it.
type TargetSpec struct {
	Job    string `yaml:"job"`
	Type   string `yaml:"type"`
	Format string `yaml:"format"` // empty uses the engine default
}

// JobSpec declares a Lua Update job. Script is a path relative to the
// manifest; Source is inline text and wins when both are set.
type JobSpec struct {
	Name       string   `yaml:"name"`
	Script     string   `yaml:"script"`
	Source     string   `yaml:"source"`
	Reads      []string `yaml:"reads"`
	Writes     []string `yaml:"writes"`
	After      []string `yaml:"after"`
	Continuous bool     `yaml:"continuous"`
}

// StageSpec is the access and entry point of one shader stage.
type StageSpec struct {
	Entry  string   `yaml:"entry"`
	Reads  []string `yaml:"reads"`
	Writes []string `yaml:"writes"`
}

// DrawSpec holds the draw parameters of a pipeline.
type DrawSpec struct {
	Topology      string     `yaml:"topology"`
	Vertices      string     `yaml:"vertices"`
	Count         uint32     `yaml:"count"`
	Instances     string     `yaml:"instances"`
	InstanceCount uint32     `yaml:"instance_count"`
	Blend         string     `yaml:"blend"`
	Clear         [4]float64 `yaml:"clear"`
}

// PipelineSpec declares a vertex/fragment pair sharing one WGSL file.
type PipelineSpec struct {
	Name     string    `yaml:"name"`
	Shader   string    `yaml:"shader"`
	Source   string    `yaml:"source"`
	Vertex   StageSpec `yaml:"vertex"`
	Fragment StageSpec `yaml:"fragment"`
	Draw     DrawSpec  `yaml:"draw"`
	After    []string  `yaml:"after"`
}

// EntitySpec is an entity spawned with initial component values. Each
// value maps field names to numbers or lane arrays; a list type takes a
// sequence of such values. Fields left out are zero.
//
//	entities:
//	  - label: quad0
//	    components:
//	      Transform: {position: [0.6, 0, 0], scale: 1}
//	      VertexPosition:
//	        - {pos: [-0.1, -0.1, 0, 1]}
//	        - {pos: [0.1, -0.1, 0, 1]}
type EntitySpec struct {
	Label      string               `yaml:"label"`
	Components map[string]yaml.Node `yaml:"components"`
}

// Value is the encoded value of one component. Data holds the elements
// back to back for a list type.
type Value struct {
	Type string
	Data []byte
}

// LoadManifest reads a manifest file. Relative script and shader paths
// resolve against its directory.
func LoadManifest(p string) (*Manifest, error) {
	return LoadManifestFS(os.DirFS(filepath.Dir(p)), filepath.Base(p))
}

// LoadManifestFS reads a manifest from fsys.
func LoadManifestFS(fsys fs.FS, name string) (*Manifest, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", name, err)
	}
	m, err := ParseManifest(raw)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", name, err)
	}
	m.fsys, m.dir = fsys, path.Dir(name)
	return m, nil
}

// ParseManifest decodes YAML. File references cannot be resolved on a
// parsed manifest; use inline sources or LoadManifestFS.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &m, nil
}

func (m *Manifest) source(inline, file string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if file == "" {
		return "", fmt.Errorf("%w: no source", ErrManifest)
	}
	if m.fsys == nil {
		return "", fmt.Errorf("%w: %s referenced from a parsed manifest", ErrManifest, file)
	}
	b, err := fs.ReadFile(m.fsys, path.Join(m.dir, file))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Type converts the spec to a component type.
func (t TypeSpec) Type() (component.Type, error) {
	scope, err := component.ParseScope(t.Scope)
	if err != nil {
		return component.Type{}, fmt.Errorf("type %s: %w", t.Name, err)
	}
	fields := make([]component.Field, len(t.Fields))
	for i, f := range t.Fields {
		format, lanes, err := component.ParseFormat(f.Format)
		if err != nil {
			return component.Type{}, fmt.Errorf("type %s field %s: %w", t.Name, f.Name, err)
		}
		fields[i] = component.Field{Name: f.Name, Format: format, Lanes: lanes}
	}
	size := component.LayoutFields(fields)
	switch {
	case t.Size == 0:
	case t.Size < size:
		return component.Type{}, fmt.Errorf("%w: type %s size %d is smaller than its fields (%d)", ErrManifest, t.Name, t.Size, size)
	default:
		size = t.Size
	}
	typ := component.Type{Name: t.Name, Size: size, List: t.List, Scope: scope, Fields: fields}
	if err := typ.Validate(); err != nil {
		return component.Type{}, err
	}
	return typ, nil
}

// TextureFormat parses Format; ok is false when it is empty.
func (t TargetSpec) TextureFormat() (f gpucore.TextureFormat, ok bool, err error) {
	if t.Format == "" {
		return 0, false, nil
	}
	f, ok = gpucore.ParseTextureFormat(t.Format)
	if !ok {
		return 0, false, fmt.Errorf("%w: target %s format %q", ErrManifest, t.Type, t.Format)
	}
	return f, true, nil
}

// Compile compiles the Lua job j. The caller closes the script.
func (m *Manifest) Compile(j JobSpec) (*script.Script, *job.Descriptor, error) {
	src, err := m.source(j.Source, j.Script)
	if err != nil {
		return nil, nil, fmt.Errorf("job %s: %w", j.Name, err)
	}
	s, err := script.Compile(j.Name, src)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Descriptor(access(j.Reads, j.Writes), j.After, j.Continuous), nil
}

// Stages builds the vertex and fragment descriptors of p.
func (m *Manifest) Stages(p PipelineSpec) (vert, frag *job.Descriptor, err error) {
	src, err := m.source(p.Source, p.Shader)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline %s: %w", p.Name, err)
	}
	topology, ok := gpucore.ParseTopology(p.Draw.Topology)
	if !ok {
		return nil, nil, fmt.Errorf("%w: pipeline %s topology %q", ErrManifest, p.Name, p.Draw.Topology)
	}
	blend, ok := gpucore.ParseBlendMode(p.Draw.Blend)
	if !ok {
		return nil, nil, fmt.Errorf("%w: pipeline %s blend %q", ErrManifest, p.Name, p.Draw.Blend)
	}
	if len(p.Vertex.Writes) > 0 {
		return nil, nil, fmt.Errorf("%w: pipeline %s vertex stage writes", ErrManifest, p.Name)
	}

	vert = &job.Descriptor{
		Name:   p.Name,
		Kind:   job.KindVertexShader,
		Access: access(p.Vertex.Reads, nil),
		After:  p.After,
		Shader: job.Shader{Source: src, EntryPoint: p.Vertex.Entry},
		Draw: job.Draw{
			Topology:      topology,
			Vertices:      p.Draw.Vertices,
			Count:         p.Draw.Count,
			Instances:     p.Draw.Instances,
			InstanceCount: p.Draw.InstanceCount,
		},
	}
	c := p.Draw.Clear
	frag = &job.Descriptor{
		Name:   p.Name,
		Kind:   job.KindFragmentShader,
		Access: access(p.Fragment.Reads, p.Fragment.Writes),
		After:  p.After,
		Shader: job.Shader{Source: src, EntryPoint: p.Fragment.Entry},
		Draw: job.Draw{
			Blend: blend,
			Clear: gpucore.Color{R: c[0], G: c[1], B: c[2], A: c[3]},
		},
	}
	return vert, frag, nil
}

// TargetType returns the render target type declared by t.
func (t TargetSpec) TargetType() component.Type { return pipeline.TargetType(t.Type) }

func access(reads, writes []string) []job.Access {
	out := make([]job.Access, 0, len(reads)+len(writes))
	for _, r := range reads {
		out = append(out, job.R(r))
	}
	for _, w := range writes {
		out = append(out, job.W(w))
	}
	return out
}

// Encode converts the components of e to raw values through the field
// layouts registered in reg, in type name order.
func (e EntitySpec) Encode(reg *component.Registry) ([]Value, error) {
	names := make([]string, 0, len(e.Components))
	for name := range e.Components {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]Value, 0, len(names))
	for _, name := range names {
		id, err := reg.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.Label, err)
		}
		t := reg.Type(id)
		if t.Scope != component.ScopeEntity || t.Kind != component.KindData {
			return nil, fmt.Errorf("%w: entity %s: %s is not an entity data type", ErrManifest, e.Label, name)
		}
		if len(t.Fields) == 0 {
			return nil, fmt.Errorf("%w: entity %s: %s has no field layout", ErrManifest, e.Label, name)
		}
		node := e.Components[name]
		data, err := encodeComponent(t, &node)
		if err != nil {
			return nil, fmt.Errorf("%w: entity %s: %w", ErrManifest, e.Label, err)
		}
		out = append(out, Value{Type: name, Data: data})
	}
	return out, nil
}

func encodeComponent(t *component.Type, n *yaml.Node) ([]byte, error) {
	if !t.List {
		buf := make([]byte, t.Size)
		return buf, encodeValue(t, n, buf)
	}
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%s wants a sequence of values", t.Name)
	}
	size := int(t.Size)
	buf := make([]byte, len(n.Content)*size)
	for i, elem := range n.Content {
		if err := encodeValue(t, elem, buf[i*size:(i+1)*size]); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", t.Name, i, err)
		}
	}
	return buf, nil
}

func encodeValue(t *component.Type, n *yaml.Node, dst []byte) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("%s wants a field mapping at line %d", t.Name, n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		f, ok := t.Field(name)
		if !ok {
			return fmt.Errorf("%s has no field %q", t.Name, name)
		}
		if err := encodeField(t, f, n.Content[i+1], dst); err != nil {
			return err
		}
	}
	return nil
}

func encodeField(t *component.Type, f component.Field, n *yaml.Node, dst []byte) error {
	lanes := max(f.Lanes, 1)
	var scalars []*yaml.Node
	switch {
	case lanes == 1 && n.Kind == yaml.ScalarNode:
		scalars = []*yaml.Node{n}
	case lanes > 1 && n.Kind == yaml.SequenceNode && len(n.Content) == int(lanes):
		scalars = n.Content
	default:
		return fmt.Errorf("%s.%s wants %d numbers at line %d", t.Name, f.Name, lanes, n.Line)
	}
	for i, sn := range scalars {
		bits, err := scalarBits(f.Format, sn)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name, f.Name, err)
		}
		binary.LittleEndian.PutUint32(dst[f.Offset+4*uint32(i):], bits)
	}
	return nil
}

func scalarBits(format component.Format, n *yaml.Node) (uint32, error) {
	switch format {
	case component.FormatU32:
		var v uint32
		err := n.Decode(&v)
		return v, err
	case component.FormatI32:
		var v int32
		err := n.Decode(&v)
		return uint32(v), err
	default:
		var v float32
		err := n.Decode(&v)
		return math.Float32bits(v), err
	}
}
