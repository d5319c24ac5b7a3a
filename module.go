package wasmy

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/andeya/wasmy/abi"
)

// ImportsBuilder adds the host functions a particular module needs to its
// "env" import module. It runs each time an instance of the module is
// created, before the three vm_* functions are exported on the same
// builder, so it cannot replace them.
type ImportsBuilder func(ctx context.Context, builder wazero.HostModuleBuilder) error

// ModuleRecord is the process-wide record of a compiled module image: its
// compiled form plus whatever custom imports it was loaded with. Created by
// loadModule on first load; afterwards only BuildImports changes, set by
// CustomLoad/CustomLoadBytes when they are given a builder.
type ModuleRecord struct {
	URI          abi.WasmUri
	Compiled     wazero.CompiledModule
	BuildImports ImportsBuilder
}

var (
	moduleMu sync.RWMutex
	modules  = map[abi.WasmUri]*ModuleRecord{}

	runtimeOnce sync.Once
	sharedRT    wazero.Runtime
)

// runtime returns the single process-wide wazero.Runtime all modules compile
// and instantiate against.
func runtime() wazero.Runtime {
	runtimeOnce.Do(func() {
		sharedRT = wazero.NewRuntime(context.Background())
	})
	return sharedRT
}

// moduleRecord returns the ModuleRecord for uri, if it has been loaded.
func moduleRecord(uri abi.WasmUri) (*ModuleRecord, bool) {
	moduleMu.RLock()
	defer moduleMu.RUnlock()
	rec, ok := modules[uri]
	return rec, ok
}

// loadModule compiles b under uri and validates its exports, storing the
// result keyed by uri. A second load of an already-registered uri is a
// no-op: the existing record is kept and the new bytes/builder are ignored,
// matching the original implementation's idempotent load semantics.
func loadModule(uri abi.WasmUri, b []byte, buildImports ImportsBuilder) error {
	if _, ok := moduleRecord(uri); ok {
		return nil
	}

	moduleMu.Lock()
	defer moduleMu.Unlock()
	if _, ok := modules[uri]; ok {
		return nil
	}

	ctx := context.Background()
	compiled, err := runtime().CompileModule(ctx, b)
	if err != nil {
		log().Warn("wasmy: compile failed", zap.String("uri", uri.String()), zap.Error(err))
		return abi.Errorf(abi.CodeCompile, "compile %s: %s", uri, err)
	}
	if err := validateExports(compiled); err != nil {
		log().Warn("wasmy: export validation failed", zap.String("uri", uri.String()), zap.Error(err))
		compiled.Close(ctx)
		return err
	}

	modules[uri] = &ModuleRecord{URI: uri, Compiled: compiled, BuildImports: buildImports}
	log().Debug("wasmy: module registered", zap.String("uri", uri.String()))
	return nil
}

// validateExports enforces the ABI's export-signature rules: onload, if
// present, must be a nullary void function; any handle_<n> export must be
// (i32, i32) -> (). Exports matching neither pattern are logged and
// otherwise ignored.
func validateExports(compiled wazero.CompiledModule) error {
	for name, fn := range compiled.ExportedFunctions() {
		switch {
		case name == onloadSymbol:
			if len(fn.ParamTypes()) != 0 || len(fn.ResultTypes()) != 0 {
				return abi.Errorf(abi.CodeExports, "export %q must take no parameters and return no results", name)
			}
		default:
			if _, ok := parseSymbol(name); ok {
				if !isHandleSignature(fn) {
					return abi.Errorf(abi.CodeExports, "export %q must have signature (i32, i32) -> ()", name)
				}
			} else {
				log().Debug("wasmy: ignoring unrecognized export", zap.String("name", name))
			}
		}
	}
	return nil
}

func isHandleSignature(fn api.FunctionDefinition) bool {
	params := fn.ParamTypes()
	results := fn.ResultTypes()
	return len(params) == 2 && params[0] == api.ValueTypeI32 && params[1] == api.ValueTypeI32 && len(results) == 0
}
