package mirror

import (
	"errors"
	"fmt"
)

// ErrBufferAllocation is matched by every *BufferAllocationError.
var ErrBufferAllocation = errors.New("mirror: buffer allocation failed")

// BufferAllocationError reports a device buffer that could not be reserved.
// The mirror keeps its previous buffer and retries on the next Sync.
type BufferAllocationError struct {
	Type string
	Size uint64
	Err  error
}

func (e *BufferAllocationError) Error() string {
	return fmt.Sprintf("mirror: allocate %d bytes for %s: %v", e.Size, e.Type, e.Err)
}

func (e *BufferAllocationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrBufferAllocation.
func (e *BufferAllocationError) Is(target error) bool {
	return target == ErrBufferAllocation
}
