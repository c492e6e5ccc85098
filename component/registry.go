package component

import "fmt"

// Registry owns one store per registered component type and cascades
// entity removal across all stores of a scope.
//
// Registry is not safe for concurrent registration; stores are mutated
// under the scheduler's access rules.
type Registry struct {
	types  []*Type
	stores []Storage
	byName map[string]TypeID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:  make([]*Type, 0, 16),
		stores: make([]Storage, 0, 16),
		byName: make(map[string]TypeID, 16),
	}
}

// Register validates t and creates its store.
func (r *Registry) Register(t Type) (TypeID, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if _, ok := r.byName[t.Name]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateType, t.Name)
	}
	id := TypeID(len(r.types))
	tp := &t
	tp.Fields = append([]Field(nil), t.Fields...)
	r.types = append(r.types, tp)
	if t.List {
		r.stores = append(r.stores, NewListStore(id, tp))
	} else {
		r.stores = append(r.stores, NewStore(id, tp))
	}
	r.byName[t.Name] = id
	return id, nil
}

// Lookup resolves a type name.
func (r *Registry) Lookup(name string) (TypeID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Resolve is Lookup returning ErrUnknownType.
func (r *Registry) Resolve(name string) (TypeID, error) {
	id, ok := r.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return id, nil
}

// Len returns the number of registered types.
func (r *Registry) Len() int { return len(r.types) }

// Type returns the schema registered under id, or nil.
func (r *Registry) Type(id TypeID) *Type {
	if int(id) >= len(r.types) {
		return nil
	}
	return r.types[id]
}

// Storage returns the store of id, or nil.
func (r *Registry) Storage(id TypeID) Storage {
	if int(id) >= len(r.stores) {
		return nil
	}
	return r.stores[id]
}

// Store returns the single-value store of id.
func (r *Registry) Store(id TypeID) (*Store, error) {
	st := r.Storage(id)
	if st == nil {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownType, id)
	}
	s, ok := st.(*Store)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a list type", ErrNotList, st.Type().Name)
	}
	return s, nil
}

// List returns the list store of id.
func (r *Registry) List(id TypeID) (*ListStore, error) {
	st := r.Storage(id)
	if st == nil {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownType, id)
	}
	s, ok := st.(*ListStore)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a list type", ErrNotList, st.Type().Name)
	}
	return s, nil
}

// Generation returns the mutation counter of id, zero for unknown ids.
func (r *Registry) Generation(id TypeID) uint64 {
	if st := r.Storage(id); st != nil {
		return st.Generation()
	}
	return 0
}

// Each calls fn for every store in registration order.
func (r *Registry) Each(fn func(Storage)) {
	for _, st := range r.stores {
		fn(st)
	}
}

// Stores returns the stores of the given scope in registration order.
func (r *Registry) Stores(scope Scope) []Storage {
	var out []Storage
	for _, st := range r.stores {
		if st.Type().Scope == scope {
			out = append(out, st)
		}
	}
	return out
}

// RemoveAll removes e from every store of the given scope and returns
// how many stores held it.
func (r *Registry) RemoveAll(scope Scope, e Entity) int {
	n := 0
	for _, st := range r.stores {
		if st.Type().Scope == scope && st.Remove(e) {
			n++
		}
	}
	return n
}
