package wasmy

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/andeya/wasmy/abi"
)

// wasmPageSize is the fixed linear-memory page size defined by the WASM
// specification.
const wasmPageSize = 65536

// Instance is a single instantiation of a registered module, owned
// exclusively by the CallerKey under which it was created (see
// caller_key.go). It is never shared across keys and is never explicitly
// destroyed: it lives for the lifetime of the process.
type Instance struct {
	uri       abi.WasmUri
	mod       api.Module
	mem       api.Memory
	handleFns map[abi.Method]api.Function
	onloadFn  api.Function

	mu     sync.Mutex
	ctx    Context
	loaded bool
}

type instanceKey struct {
	uri    abi.WasmUri
	caller CallerKey
}

var (
	instanceMu sync.RWMutex
	instances  = map[instanceKey]*Instance{}

	wasiOnce sync.Once
	wasiErr  error
)

// ensureWASI instantiates the shared wasi_snapshot_preview1 host module
// against the process-wide runtime exactly once.
func ensureWASI(ctx context.Context) error {
	wasiOnce.Do(func() {
		_, wasiErr = wasi_snapshot_preview1.Instantiate(ctx, runtime())
	})
	return wasiErr
}

// getInstance resolves the Instance owned by the CallerKey found on ctx for
// uri, creating it on first access as described in spec.md §4.5.
func getInstance(ctx context.Context, uri abi.WasmUri) (*Instance, error) {
	key := instanceKey{uri: uri, caller: callerKeyFromContext(ctx)}

	instanceMu.RLock()
	inst, ok := instances[key]
	instanceMu.RUnlock()
	if ok {
		return inst, nil
	}

	instanceMu.Lock()
	defer instanceMu.Unlock()
	if inst, ok := instances[key]; ok {
		return inst, nil
	}

	inst, err := createInstance(ctx, uri)
	if err != nil {
		return nil, err
	}
	instances[key] = inst
	log().Debug("wasmy: instance created", zap.String("uri", uri.String()))
	return inst, nil
}

func createInstance(ctx context.Context, uri abi.WasmUri) (*Instance, error) {
	rec, ok := moduleRecord(uri)
	if !ok {
		log().Error("wasmy: instance requested for unregistered module", zap.String("uri", uri.String()))
		return nil, abi.Errorf(abi.CodeUnknown, "module %q is not registered", uri)
	}

	if err := ensureWASI(ctx); err != nil {
		log().Error("wasmy: wasi instantiation failed", zap.Error(err))
		return nil, abi.Errorf(abi.CodeWASI, "instantiate wasi_snapshot_preview1: %s", err)
	}

	inst := &Instance{uri: uri}

	envBuilder := runtime().NewHostModuleBuilder("env")
	if rec.BuildImports != nil {
		if err := rec.BuildImports(ctx, envBuilder); err != nil {
			log().Error("wasmy: custom import build failed", zap.String("uri", uri.String()), zap.Error(err))
			return nil, abi.Errorf(abi.CodeInstantiation, "build custom imports for %s: %s", uri, err)
		}
	}
	// Exported after the custom builder so a user import cannot replace them.
	envBuilder.NewFunctionBuilder().WithFunc(inst.hostRecall).WithParameterNames("is_ctx", "offset").Export("vm_recall")
	envBuilder.NewFunctionBuilder().WithFunc(inst.hostRestore).WithParameterNames("offset", "size").Export("vm_restore")
	envBuilder.NewFunctionBuilder().WithFunc(inst.hostInvoke).WithParameterNames("offset", "size").Export("vm_invoke")
	if _, err := envBuilder.Instantiate(ctx); err != nil {
		log().Error("wasmy: env import instantiation failed", zap.String("uri", uri.String()), zap.Error(err))
		return nil, abi.Errorf(abi.CodeInstantiation, "instantiate env imports for %s: %s", uri, err)
	}

	modCfg := wazero.NewModuleConfig().WithName(uri.String())
	if currentConfig().WASIEnvPassthrough {
		for _, kv := range os.Environ() {
			if k, v, found := strings.Cut(kv, "="); found {
				modCfg = modCfg.WithEnv(k, v)
			}
		}
	}

	guestMod, err := runtime().InstantiateModule(ctx, rec.Compiled, modCfg)
	if err != nil {
		log().Error("wasmy: module instantiation failed", zap.String("uri", uri.String()), zap.Error(err))
		return nil, abi.Errorf(abi.CodeInstantiation, "instantiate %s: %s", uri, err)
	}
	inst.mod = guestMod
	inst.mem = guestMod.Memory()
	if inst.mem == nil {
		log().Error("wasmy: module exports no linear memory", zap.String("uri", uri.String()))
		return nil, abi.Errorf(abi.CodeInstantiation, "module %q exports no linear memory", uri)
	}
	if pages := currentConfig().InitialMemoryPages; pages > 0 {
		if cur := inst.mem.Size() / wasmPageSize; cur < pages {
			if _, ok := inst.mem.Grow(pages - cur); !ok {
				log().Warn("wasmy: failed to grow to initial memory size", zap.String("uri", uri.String()), zap.Uint32("pages", pages))
				return nil, abi.Errorf(abi.CodeMem, "grow %s to initial memory size: %d pages", uri, pages)
			}
		}
	}

	inst.handleFns = map[abi.Method]api.Function{}
	for name := range rec.Compiled.ExportedFunctions() {
		if method, ok := parseSymbol(name); ok {
			inst.handleFns[method] = guestMod.ExportedFunction(name)
		}
	}
	inst.onloadFn = guestMod.ExportedFunction(onloadSymbol)

	if inst.onloadFn != nil {
		if _, err := inst.callWithOOMRetry(ctx, inst.onloadFn); err != nil {
			return nil, err
		}
		log().Debug("wasmy: onload ran", zap.String("uri", uri.String()))
	}
	inst.loaded = true
	return inst, nil
}

// callWithOOMRetry calls fn, growing linear memory by one page and retrying
// whenever the engine traps with a message containing "OOM". Growth is
// bounded by Config.MaxMemoryPages when set (0 means unbounded, matching the
// original "grow until the host itself runs out" behavior per spec.md §4.4);
// exceeding the cap fails with CodeMem instead of growing further.
func (i *Instance) callWithOOMRetry(ctx context.Context, fn api.Function, args ...uint64) ([]uint64, error) {
	for {
		results, err := fn.Call(ctx, args...)
		if err == nil {
			return results, nil
		}
		if strings.Contains(err.Error(), "OOM") {
			if max := currentConfig().MaxMemoryPages; max > 0 && i.mem.Size()/wasmPageSize >= max {
				log().Warn("wasmy: memory cap reached after OOM trap", zap.String("uri", i.uri.String()), zap.Uint32("maxPages", max))
				return nil, abi.Errorf(abi.CodeMem, "%s exceeded configured memory cap of %d pages after OOM trap: %s", i.uri, max, err)
			}
			if _, ok := i.mem.Grow(1); !ok {
				log().Warn("wasmy: failed to grow memory after OOM trap", zap.String("uri", i.uri.String()))
				return nil, abi.Errorf(abi.CodeMem, "grow memory for %s after OOM trap: %s", i.uri, err)
			}
			log().Debug("wasmy: grew memory after OOM trap", zap.String("uri", i.uri.String()))
			continue
		}
		log().Error("wasmy: engine call failed", zap.String("uri", i.uri.String()), zap.Error(err))
		return nil, abi.Errorf(abi.CodeWASI, "call into %s: %s", i.uri, err)
	}
}

// hostRecall implements the vm_recall import: copy value_bytes (isCtx != 0)
// or swap (otherwise) into the guest's linear memory at offset. For
// isCtx == 0 this also truncates swap to length 0 after the copy.
func (i *Instance) hostRecall(_ context.Context, mod api.Module, isCtx, offset uint32) {
	var n int
	if isCtx != 0 {
		n = len(i.ctx.ValueBytes)
	} else {
		n = len(i.ctx.Swap)
	}
	if n == 0 {
		if isCtx == 0 {
			i.ctx.Swap = i.ctx.Swap[:0]
		}
		return
	}
	buf := make([]byte, n)
	i.ctx.recall(isCtx != 0, buf)
	if !mod.Memory().Write(offset, buf) {
		log().Error("wasmy: vm_recall write out of bounds", zap.String("uri", i.uri.String()), zap.Uint32("offset", offset))
	}
}

// hostRestore implements the vm_restore import: read size bytes from guest
// memory at offset into swap.
func (i *Instance) hostRestore(_ context.Context, mod api.Module, offset, size uint32) {
	data, ok := mod.Memory().Read(offset, size)
	if !ok {
		log().Error("wasmy: vm_restore read out of bounds", zap.String("uri", i.uri.String()), zap.Uint32("offset", offset), zap.Uint32("size", size))
		return
	}
	i.ctx.restore(data)
}

// hostInvoke implements the vm_invoke import: dispatch a nested host
// callback through the handler registry and deliver its encoded OutRets
// through swap, returning swap's new length.
func (i *Instance) hostInvoke(_ context.Context, mod api.Module, offset, size uint32) uint32 {
	data, ok := mod.Memory().Read(offset, size)
	if !ok {
		log().Error("wasmy: vm_invoke read out of bounds", zap.String("uri", i.uri.String()), zap.Uint32("offset", offset), zap.Uint32("size", size))
		return 0
	}
	out := vmInvoke(i.ctx.ValuePtr, data)
	encoded, err := abi.Encode(out)
	if err != nil {
		log().Error("wasmy: failed to encode OutRets", zap.Error(err))
		encoded = nil
	}
	i.ctx.restore(encoded)
	return uint32(len(i.ctx.Swap))
}

// handle runs the guest export for method with the given context value and
// request bytes, returning the decoded OutRets.
func (i *Instance) handle(ctx context.Context, method abi.Method, valuePtr uintptr, valueBytes, argsBytes []byte) (abi.OutRets, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.loaded {
		return abi.OutRets{}, abi.Errorf(abi.CodeNone, "instance has not completed initialization")
	}
	fn, ok := i.handleFns[method]
	if !ok {
		return abi.OutRets{}, abi.Errorf(abi.CodeNone, "undefined method %d", method)
	}

	i.ctx.revert()
	i.ctx.prepare(valuePtr, valueBytes, argsBytes)
	defer i.ctx.revert()

	if _, err := i.callWithOOMRetry(ctx, fn, uint64(len(valueBytes)), uint64(len(argsBytes))); err != nil {
		return abi.OutRets{}, err
	}
	if len(i.ctx.Swap) == 0 {
		return abi.OutRets{}, nil
	}
	return abi.Decode[abi.OutRets](i.ctx.Swap)
}

// ExportedFunction returns the named guest export, or nil if the module
// doesn't define it, mirroring wazero's own api.Module.ExportedFunction.
// Part of the escape hatch spec.md §4.6 calls "with"/raw export access.
func (i *Instance) ExportedFunction(name string) api.Function {
	return i.mod.ExportedFunction(name)
}

// Memory returns the instance's linear memory, for callers that need to
// read or write it directly around a RawCall.
func (i *Instance) Memory() api.Memory {
	return i.mem
}

// RawCall is the lower-level surface for guest exports that don't follow
// the handle_<n>(i32, i32) shape — spec.md §4.6's raw_call. prepare may set
// ValuePtr/ValueBytes/Swap before the call; finish receives the raw results
// and the Context is reverted after it runs, regardless of outcome.
//
// RawCall does not lock the instance itself: it is meant to be driven from
// within Caller.With's callback, which already holds the instance's lock
// for the duration of fn, or through Caller.RawCall, which acquires that
// lock on the caller's behalf via With.
func (i *Instance) RawCall(ctx context.Context, fn api.Function, prepare func(*Context) []uint64, finish func(*Context, []uint64) error) error {
	i.ctx.revert()
	args := prepare(&i.ctx)
	defer i.ctx.revert()

	results, err := i.callWithOOMRetry(ctx, fn, args...)
	if err != nil {
		return err
	}
	return finish(&i.ctx, results)
}
