package wasmy

import (
	"context"

	"github.com/andeya/wasmy/abi"
)

// Caller is the public handle a host uses to drive calls into a registered
// module, returned by Load/CustomLoad. It carries no mutable state itself:
// all per-call state lives in the Instance resolved for the calling
// context's CallerKey.
type Caller struct {
	uri abi.WasmUri
}

// Call invokes method on the guest with no context value.
func Call[Req, Resp any](ctx context.Context, c Caller, method abi.Method, req Req) (Resp, error) {
	var zero Resp
	inst, err := getInstance(ctx, c.uri)
	if err != nil {
		return zero, err
	}
	argsBytes, err := encodeInArgs(method, req)
	if err != nil {
		return zero, err
	}
	out, err := inst.handle(ctx, method, 0, nil, argsBytes)
	if err != nil {
		return zero, err
	}
	return abi.IntoResult[Resp](out)
}

// CtxCall invokes method on the guest with a context value: ctxValue is
// serialized and made available to the guest via vm_recall(is_ctx=true, ...)
// and, as a typed borrow, to any host callback handler the guest triggers.
func CtxCall[Ctx, Req, Resp any](ctx context.Context, c Caller, ctxValue *Ctx, method abi.Method, req Req) (Resp, error) {
	var zero Resp
	inst, err := getInstance(ctx, c.uri)
	if err != nil {
		return zero, err
	}
	var ptr uintptr
	var ctxBytes []byte
	if ctxValue != nil {
		ptr = unsafePointerOf(ctxValue)
		ctxBytes, err = abi.Encode(ctxValue)
		if err != nil {
			return zero, err
		}
	}
	argsBytes, err := encodeInArgs(method, req)
	if err != nil {
		return zero, err
	}
	out, err := inst.handle(ctx, method, ptr, ctxBytes, argsBytes)
	if err != nil {
		return zero, err
	}
	return abi.IntoResult[Resp](out)
}

func encodeInArgs[Req any](method abi.Method, req Req) ([]byte, error) {
	in, err := abi.NewInArgs(method, req)
	if err != nil {
		return nil, err
	}
	return abi.Encode(in)
}

// RawCall invokes the named guest export directly, bypassing the
// handle_<n> envelope convention — spec.md §4.6's raw_call. It resolves
// name against the instance's exports and drives it through
// Instance.RawCall, under the same per-CallerKey exclusivity With provides.
func (c Caller) RawCall(ctx context.Context, name string, prepare func(*Context) []uint64, finish func(*Context, []uint64) error) error {
	return c.With(ctx, func(inst *Instance) error {
		fn := inst.ExportedFunction(name)
		if fn == nil {
			return abi.Errorf(abi.CodeExports, "export %q is not defined by module %s", name, inst.uri)
		}
		return inst.RawCall(ctx, fn, prepare, finish)
	})
}

// With exposes the underlying Instance, held under its own lock for the
// duration of fn, for engine-specific operations (reading/writing linear
// memory directly, enumerating exports, issuing a RawCall) that don't fit
// the typed Call/CtxCall surface.
func (c Caller) With(ctx context.Context, fn func(*Instance) error) error {
	inst, err := getInstance(ctx, c.uri)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return fn(inst)
}

// URI returns the WasmUri this Caller dispatches against.
func (c Caller) URI() abi.WasmUri {
	return c.uri
}
