package wasmy

import "github.com/andeya/wasmy/abi"

// CheckModule inspects a freshly compiled module and may reject it with a
// domain-specific requirement beyond the baseline export-signature checks
// (e.g. "must export handle_0").
type CheckModule func(wazeroCompiled ModuleExports) error

// ModuleExports is the read-only view of a compiled module's exports given
// to a CheckModule hook.
type ModuleExports interface {
	// Methods lists the method numbers exported as handle_<n>.
	Methods() []abi.Method
	// HasOnload reports whether the module exports onload.
	HasOnload() bool
}

type moduleExports struct {
	methods   []abi.Method
	hasOnload bool
}

func (m moduleExports) Methods() []abi.Method { return m.methods }
func (m moduleExports) HasOnload() bool       { return m.hasOnload }

// Load registers the module image at path with the default imports (WASI
// plus the three vm_* functions) and returns a Caller bound to it. It is the common-case
// entry point: register file -> compile -> (instance created lazily on
// first call) -> run onload -> install in cache.
func Load(path string) (Caller, error) {
	return CustomLoad(path, nil, nil)
}

// CustomLoad is Load with optional hooks: check inspects the freshly
// compiled module's exports and may reject it; buildImports adds
// domain-specific host functions to the module's "env" imports, alongside
// the default WASI and vm_* wiring.
func CustomLoad(path string, check CheckModule, buildImports ImportsBuilder) (Caller, error) {
	uri, err := RegisterFile(path)
	if err != nil {
		return Caller{}, err
	}
	return finishLoad(uri, check, buildImports)
}

// LoadBytes is Load for an already-in-memory module image, tagged explicitly
// since there is no filesystem path to derive a URI from.
func LoadBytes(tag string, b []byte) (Caller, error) {
	return CustomLoadBytes(tag, b, nil, nil)
}

// CustomLoadBytes is CustomLoad for an already-in-memory module image.
func CustomLoadBytes(tag string, b []byte, check CheckModule, buildImports ImportsBuilder) (Caller, error) {
	uri, err := RegisterBytes(tag, b)
	if err != nil {
		return Caller{}, err
	}
	return finishLoad(uri, check, buildImports)
}

func finishLoad(uri abi.WasmUri, check CheckModule, buildImports ImportsBuilder) (Caller, error) {
	rec, ok := moduleRecord(uri)
	if !ok {
		return Caller{}, abi.Errorf(abi.CodeUnknown, "module %q is not registered", uri)
	}
	if check != nil {
		view := moduleExports{}
		for name, fn := range rec.Compiled.ExportedFunctions() {
			if name == onloadSymbol {
				view.hasOnload = true
				continue
			}
			if method, ok := parseSymbol(name); ok {
				view.methods = append(view.methods, method)
			}
			_ = fn
		}
		if err := check(view); err != nil {
			return Caller{}, err
		}
	}
	if buildImports != nil {
		moduleMu.Lock()
		rec.BuildImports = buildImports
		moduleMu.Unlock()
	}
	return Caller{uri: uri}, nil
}
