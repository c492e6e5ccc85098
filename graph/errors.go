package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Registration errors.
var (
	// ErrCyclicDependency is returned when the declared accesses form a loop.
	ErrCyclicDependency = errors.New("graph: cyclic dependency")

	// ErrUnorderedWrites is returned when two update jobs write the same
	// type and neither is ordered before the other.
	ErrUnorderedWrites = errors.New("graph: unordered writes")

	// ErrDuplicateJob is returned when two jobs share a key.
	ErrDuplicateJob = errors.New("graph: duplicate job")

	// ErrUnknownJob is returned for an After annotation naming no job.
	ErrUnknownJob = errors.New("graph: unknown job")

	// ErrUnpairedShader is returned for a vertex stage without a fragment
	// stage of the same name, or the reverse.
	ErrUnpairedShader = errors.New("graph: unpaired shader stage")
)

// CycleError lists the jobs of one dependency loop in edge order.
// The first job is repeated at the end.
type CycleError struct {
	Jobs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph: cyclic dependency: %s", strings.Join(e.Jobs, " -> "))
}

// Is reports whether target is ErrCyclicDependency.
func (e *CycleError) Is(target error) bool { return target == ErrCyclicDependency }

// ConflictError names two update jobs writing Type with no path between them.
type ConflictError struct {
	Type string
	A, B string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("graph: %s and %s both write %s without an ordering; add After to one of them",
		e.A, e.B, e.Type)
}

// Is reports whether target is ErrUnorderedWrites.
func (e *ConflictError) Is(target error) bool { return target == ErrUnorderedWrites }
