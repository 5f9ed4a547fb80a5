// Package groutine starts named goroutines. The name is attached as a pprof label so
// goroutine dumps and profiles show which component owns each one.
package groutine

import (
	"context"
	"runtime/pprof"
)

// NameLabel is the pprof label carrying the goroutine name.
const NameLabel = "goroutine_name"

// Go starts fn on a new goroutine labelled name and returns a channel that is closed
// once fn returns.
//
//	done := groutine.Go(ctx, "session-actor", func(ctx context.Context) {
//	    // work
//	})
//	<-done
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	done := make(chan struct{})
	labels := pprof.Labels(NameLabel, name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	})

	return done
}
