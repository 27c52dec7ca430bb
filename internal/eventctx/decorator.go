package eventctx

import "context"

// captured is the diagnostic snapshot moved across a task boundary.
type captured struct {
	actor       any
	trace       any
	correlation any
	tags        any
}

// Capture snapshots the diagnostic values of ctx so they can be restored on
// another context. Used by task decorators that submit work to executors:
// capture on submit, restore on execute.
func Capture(ctx context.Context) func(context.Context) context.Context {
	snap := captured{
		actor:       ctx.Value(actorKey),
		trace:       ctx.Value(traceKey),
		correlation: ctx.Value(correlationKey),
		tags:        ctx.Value(tagsKey),
	}
	return func(target context.Context) context.Context {
		if snap.actor != nil {
			target = context.WithValue(target, actorKey, snap.actor)
		}
		if snap.trace != nil {
			target = context.WithValue(target, traceKey, snap.trace)
		}
		if snap.correlation != nil {
			target = context.WithValue(target, correlationKey, snap.correlation)
		}
		if snap.tags != nil {
			target = context.WithValue(target, tagsKey, snap.tags)
		}
		return target
	}
}

// Decorate wraps a task so it runs with the submitting context's diagnostic
// values restored onto the executing context. The restored values are scoped
// to the wrapped call, so nothing leaks once the task returns.
func Decorate(submitCtx context.Context, task func(context.Context)) func(context.Context) {
	restore := Capture(submitCtx)
	return func(execCtx context.Context) {
		task(restore(execCtx))
	}
}
