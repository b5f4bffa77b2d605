// Package taskrun spawns goroutines for background work with panic
// isolation.
//
// It is a simplified, context-explicit descendant of the teacher's
// pkg/trace.Go: dropped is the goroutine-local context bucket
// (pkg/trace/context, keyed by goroutine ID via timandy/routine) because
// every call site of Go in this module passes its context.Context
// directly as an argument — none of them needs ambient context recovery.
package taskrun

import (
	"context"
	"runtime/debug"

	"github.com/go-arcade/cadflight/pkg/log"
)

// Go runs fn in a new goroutine. A panic inside fn is recovered and logged
// rather than crashing the process, matching pkg/safe.Go's isolation
// guarantee but threading ctx through explicitly.
func Go(ctx context.Context, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("panic in background task: %v\n%s", r, debug.Stack())
			}
		}()
		fn(ctx)
	}()
}
