package component

import "errors"

// Component store errors.
var (
	// ErrNotPresent is returned when an entity has no value of the requested type.
	ErrNotPresent = errors.New("component: not present")

	// ErrSizeMismatch is returned when a value's byte length differs from the type size.
	ErrSizeMismatch = errors.New("component: value size does not match type")

	// ErrStoreFull is returned when a store would exceed the 24-bit slot space.
	ErrStoreFull = errors.New("component: store full")

	// ErrAllocatorFull is returned when every entity index is live.
	ErrAllocatorFull = errors.New("component: entity allocator exhausted")

	// ErrOutOfRange is returned for a list sub-index past the entity's list length.
	ErrOutOfRange = errors.New("component: list index out of range")

	// ErrInvalidEntity is returned for the Nil handle or an index past MaxIndex.
	ErrInvalidEntity = errors.New("component: invalid entity")

	// ErrDuplicateType is returned when a type name is registered twice.
	ErrDuplicateType = errors.New("component: duplicate type")

	// ErrUnknownType is returned when a type name or id is not registered.
	ErrUnknownType = errors.New("component: unknown type")

	// ErrInvalidType is returned when a type definition is malformed.
	ErrInvalidType = errors.New("component: invalid type")

	// ErrNotList is returned when a list operation targets a single-value type or vice versa.
	ErrNotList = errors.New("component: type kind mismatch")
)

// ErrStale is returned when a handle's version differs from the one that
// owns its slot.
var ErrStale = errors.New("component: stale entity handle")
