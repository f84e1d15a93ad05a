// Package groutine starts named goroutines. Names are attached as pprof labels
// and stored in the goroutine's context so logs and profiles can tell the
// sensor loop apart from the consumer loop.
package groutine

import (
	"context"
	"runtime"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn on a new goroutine labelled with name.
// If parentCtx is nil, context.Background() is used.
//
//	groutine.Go(ctx, "consumer", func(ctx context.Context) {
//	    // work
//	})
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	start(parentCtx, name, false, fn)
}

// GoLocked is like Go but pins the goroutine to its own OS thread for its whole
// lifetime. Use it for loops that make blocking hardware calls.
func GoLocked(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	start(parentCtx, name, true, fn)
}

func start(parentCtx context.Context, name string, locked bool, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		if locked {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		fn(context.WithValue(ctx, goroutineNameKey, name))
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(goroutineNameKey).(string); ok {
		return s
	}
	return ""
}
