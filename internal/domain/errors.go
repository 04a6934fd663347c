package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")
var ErrDestroyed = errors.New("destroyed")

// SegmentErrorType distinguishes backend load failures. The adapter swallows
// aborted errors that it caused itself and surfaces everything else.
type SegmentErrorType string

const (
	SegmentErrorAborted SegmentErrorType = "aborted"
	SegmentErrorFailed  SegmentErrorType = "failed"
)

// SegmentLoadError is raised by a segment backend when an asynchronous load
// terminates abnormally.
type SegmentLoadError struct {
	Type  SegmentErrorType
	Cause error
}

func (e *SegmentLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("segment load %s: %v", e.Type, e.Cause)
	}
	return "segment load " + string(e.Type)
}

func (e *SegmentLoadError) Unwrap() error { return e.Cause }

// NewSegmentAborted reports a load cancelled before completion.
func NewSegmentAborted() *SegmentLoadError {
	return &SegmentLoadError{Type: SegmentErrorAborted}
}

// NewSegmentFailed reports a load that failed for cause.
func NewSegmentFailed(cause error) *SegmentLoadError {
	return &SegmentLoadError{Type: SegmentErrorFailed, Cause: cause}
}

// IsSegmentAborted reports whether err is an aborted-type segment load error.
func IsSegmentAborted(err error) bool {
	var se *SegmentLoadError
	return errors.As(err, &se) && se.Type == SegmentErrorAborted
}
