package singleflight

import "errors"

// ErrCancelled is raised by Submit when the calling submission's entry was
// replaced before completion, or when the worker itself gave up because its
// CancelToken was set. It is never cached on an entry: a cancelled entry
// leaves no residue in the Cache.
var ErrCancelled = errors.New("singleflight: cancelled")

// WorkerError wraps an error returned by a worker. It is cached on the
// entry until the entry is replaced, and re-raised to every submission
// that is (or becomes) joined to that entry.
type WorkerError struct {
	Err error
}

func (e *WorkerError) Error() string {
	return "singleflight: worker error: " + e.Err.Error()
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}
