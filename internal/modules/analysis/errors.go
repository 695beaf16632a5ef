package analysis

import "errors"

// ErrNotFound is returned when an analysis id is unknown or was deleted.
// It is surfaced to callers and never retried.
var ErrNotFound = errors.New("analysis not found")

// ErrStageFailure is returned when the pipeline could not produce a result
// because every research stage failed, or a fatal stage error occurred under
// the strict stage policy.
var ErrStageFailure = errors.New("stage failure")
