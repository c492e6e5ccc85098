package component

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeID identifies a registered component type within a Registry.
type TypeID uint16

// Scope selects the id space a component type is keyed by.
type Scope uint8

const (
	// ScopeEntity types are keyed by entity handles.
	ScopeEntity Scope = iota
	// ScopeViewport types are keyed by viewport handles.
	ScopeViewport
)

func (s Scope) String() string {
	switch s {
	case ScopeEntity:
		return "entity"
	case ScopeViewport:
		return "viewport"
	default:
		return "Scope(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseScope converts a manifest scope name.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(s) {
	case "", "entity":
		return ScopeEntity, nil
	case "viewport":
		return ScopeViewport, nil
	}
	return 0, fmt.Errorf("%w: scope %q", ErrInvalidType, s)
}

// Kind tells the engine how a type is consumed.
type Kind uint8

const (
	// KindData values are mirrored to GPU storage buffers.
	KindData Kind = iota
	// KindRenderTarget values describe textures that fragment jobs draw into.
	// They are never mirrored.
	KindRenderTarget
)

// Format is the scalar format of a component field.
type Format uint8

// Field formats. Each scalar is four bytes.
const (
	FormatF32 Format = iota
	FormatU32
	FormatI32
)

func (f Format) String() string {
	switch f {
	case FormatF32:
		return "f32"
	case FormatU32:
		return "u32"
	case FormatI32:
		return "i32"
	default:
		return "Format(" + strconv.Itoa(int(f)) + ")"
	}
}

// ParseFormat parses "f32", "u32", "i32" optionally followed by a lane count
// such as "f32x4".
func ParseFormat(s string) (Format, uint32, error) {
	base, lanes, found := strings.Cut(s, "x")
	n := uint32(1)
	if found {
		v, err := strconv.ParseUint(lanes, 10, 8)
		if err != nil || v == 0 || v > 4 {
			return 0, 0, fmt.Errorf("%w: field format %q", ErrInvalidType, s)
		}
		n = uint32(v)
	}
	switch base {
	case "f32":
		return FormatF32, n, nil
	case "u32":
		return FormatU32, n, nil
	case "i32":
		return FormatI32, n, nil
	}
	return 0, 0, fmt.Errorf("%w: field format %q", ErrInvalidType, s)
}

// Field names a slice of a component's byte layout.
type Field struct {
	Name   string
	Format Format
	Lanes  uint32 // 1 to 4
	Offset uint32
}

// Size returns the byte width of the field.
func (f Field) Size() uint32 { return 4 * max(f.Lanes, 1) }

// Type is the schema of a component: its byte layout and storage shape.
type Type struct {
	Name  string
	Size  uint32
	List  bool
	Scope Scope
	Kind  Kind

	// Fields is optional. Script jobs and manifests address values through it.
	Fields []Field
}

// Validate checks that the layout is usable.
func (t *Type) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidType)
	}
	if t.Size == 0 {
		return fmt.Errorf("%w: %s has zero size", ErrInvalidType, t.Name)
	}
	if t.Kind == KindRenderTarget && t.Scope != ScopeViewport {
		return fmt.Errorf("%w: render target %s must be viewport scoped", ErrInvalidType, t.Name)
	}
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if seen[f.Name] {
			return fmt.Errorf("%w: %s.%s declared twice", ErrInvalidType, t.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Offset+f.Size() > t.Size {
			return fmt.Errorf("%w: %s.%s overruns %d bytes", ErrInvalidType, t.Name, f.Name, t.Size)
		}
	}
	return nil
}

// Field looks up a field by name.
func (t *Type) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// LayoutFields assigns offsets to fields in order using WGSL storage
// alignment (4, 8 or 16 bytes by lane count) and returns the struct size
// rounded up to 16 bytes.
func LayoutFields(fields []Field) uint32 {
	var off uint32
	for i := range fields {
		align := uint32(4)
		switch fields[i].Lanes {
		case 2:
			align = 8
		case 3, 4:
			align = 16
		}
		off = (off + align - 1) &^ (align - 1)
		fields[i].Offset = off
		off += fields[i].Size()
	}
	return (off + 15) &^ 15
}
