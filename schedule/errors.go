package schedule

import (
	"errors"
	"fmt"
)

// ErrJobExecution is matched by every *JobError.
var ErrJobExecution = errors.New("schedule: job failed")

// ErrClosed is returned by Tick after Close.
var ErrClosed = errors.New("schedule: scheduler closed")

// JobError attributes a failure to the job that produced it.
type JobError struct {
	Job string
	Err error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("schedule: job %s: %v", e.Job, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Is reports whether target is ErrJobExecution.
func (e *JobError) Is(target error) bool { return target == ErrJobExecution }
