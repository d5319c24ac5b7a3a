package wasmy

import "context"

// CallerKey identifies the logical caller an Instance is leased to. Go has
// no public analogue of a native OS thread id, so the instance cache is
// keyed on this caller-supplied value instead of a thread id (see
// SPEC_FULL.md's per-thread-instance-cache decision): a host that wants
// thread-like isolation between concurrent workers assigns each worker a
// distinct, stable CallerKey.
type CallerKey any

type callerKeyCtxKey struct{}

// defaultCallerKey is used when the call's context carries no explicit
// CallerKey, giving single-caller programs thread-like behavior for free.
var defaultCallerKey CallerKey = struct{ name string }{"default"}

// WithCallerKey returns a context carrying key as the CallerKey for any
// wasmy call made with it.
func WithCallerKey(ctx context.Context, key CallerKey) context.Context {
	return context.WithValue(ctx, callerKeyCtxKey{}, key)
}

// callerKeyFromContext extracts the CallerKey set by WithCallerKey, or
// defaultCallerKey if none was set.
func callerKeyFromContext(ctx context.Context) CallerKey {
	if v := ctx.Value(callerKeyCtxKey{}); v != nil {
		return v.(CallerKey)
	}
	return defaultCallerKey
}
