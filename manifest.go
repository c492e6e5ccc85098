package gecs

import (
	"fmt"
	"slices"

	"github.com/gogpu/gecs/component"
	"github.com/gogpu/gecs/config"
	"github.com/gogpu/gecs/job"
)

// Apply registers the types, render targets, Lua jobs and pipelines of m
// on top of the current job set and spawns its entities. Types already registered under the same
// name must match the manifest declaration.
func (e *Engine) Apply(m *config.Manifest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.applyLocked(m, slices.Clone(e.jobs))
}

// ReloadManifest replaces the whole job set with the jobs of m. Scripts
// are recompiled; jobs whose declaration is unchanged keep their history
// but rerun once because their body is new. Labelled entities still alive
// are kept as they are; the others are spawned.
func (e *Engine) ReloadManifest(m *config.Manifest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.applyLocked(m, nil)
}

func (e *Engine) applyLocked(m *config.Manifest, jobs []*job.Descriptor) (err error) {
	for _, ts := range m.Types {
		t, err := ts.Type()
		if err != nil {
			return err
		}
		if id, ok := e.reg.Lookup(t.Name); ok {
			if !sameType(e.reg.Type(id), &t) {
				return fmt.Errorf("%w: type %s redeclared with a different layout", config.ErrManifest, t.Name)
			}
			continue
		}
		if _, err := e.reg.Register(t); err != nil {
			return err
		}
	}

	for _, ts := range m.Targets {
		format, _, err := ts.TextureFormat()
		if err != nil {
			return err
		}
		d, err := e.targetLocked(ts.Job, ts.Type, format)
		if err != nil {
			return err
		}
		jobs = append(jobs, d)
	}

	var compiled []ownedScript
	defer func() {
		if err != nil {
			for _, o := range compiled {
				o.s.Close()
			}
		}
	}()
	for _, js := range m.Jobs {
		s, d, err := m.Compile(js)
		if err != nil {
			return err
		}
		compiled = append(compiled, ownedScript{s: s, d: d})
		jobs = append(jobs, d)
	}

	for _, ps := range m.Pipelines {
		vert, frag, err := m.Stages(ps)
		if err != nil {
			return err
		}
		jobs = append(jobs, vert, frag)
	}

	spawns, err := e.encodeEntities(m.Entities)
	if err != nil {
		return err
	}
	if err := e.setJobsLocked(jobs); err != nil {
		return err
	}
	e.scripts = append(e.scripts, compiled...)
	compiled = nil
	spawned, err := e.spawnLocked(spawns)
	if err != nil {
		return err
	}
	e.logger().Info("gecs: manifest applied",
		"types", len(m.Types), "targets", len(m.Targets), "jobs", len(m.Jobs),
		"pipelines", len(m.Pipelines), "entities", spawned)
	return nil
}

// entitySpawn is a manifest entity with its encoded components.
type entitySpawn struct {
	label  string
	values []config.Value
}

// encodeEntities encodes every entity of specs. Labels already bound to a
// live entity are left out, so reapplying a manifest keeps its scene.
func (e *Engine) encodeEntities(specs []config.EntitySpec) ([]entitySpawn, error) {
	seen := make(map[string]bool)
	out := make([]entitySpawn, 0, len(specs))
	for _, es := range specs {
		if es.Label != "" {
			if seen[es.Label] {
				return nil, fmt.Errorf("%w: entity label %s declared twice", config.ErrManifest, es.Label)
			}
			seen[es.Label] = true
			if ent, ok := e.labels[es.Label]; ok && e.entities.Alive(ent) {
				continue
			}
		}
		values, err := es.Encode(e.reg)
		if err != nil {
			return nil, err
		}
		out = append(out, entitySpawn{label: es.Label, values: values})
	}
	return out, nil
}

// spawnLocked creates the encoded entities. An entity whose components
// cannot be stored is destroyed again.
func (e *Engine) spawnLocked(spawns []entitySpawn) (int, error) {
	for i, sp := range spawns {
		ent, err := e.entities.Create()
		if err != nil {
			return i, err
		}
		if err := e.storeValues(ent, sp.values); err != nil {
			e.reg.RemoveAll(component.ScopeEntity, ent)
			e.entities.Destroy(ent)
			return i, fmt.Errorf("entity %s: %w", sp.label, err)
		}
		if sp.label != "" {
			e.labels[sp.label] = ent
		}
	}
	return len(spawns), nil
}

func (e *Engine) storeValues(ent Entity, values []config.Value) error {
	for _, v := range values {
		id, err := e.reg.Resolve(v.Type)
		if err != nil {
			return err
		}
		switch st := e.reg.Storage(id).(type) {
		case *component.Store:
			err = st.Set(ent, v.Data)
		case *component.ListStore:
			err = st.Replace(ent, v.Data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func sameType(a, b *component.Type) bool {
	return a.Name == b.Name && a.Size == b.Size && a.List == b.List &&
		a.Scope == b.Scope && a.Kind == b.Kind && slices.Equal(a.Fields, b.Fields)
}
