package wasmy

import (
	"os"
	"path/filepath"

	"github.com/andeya/wasmy/abi"
)

// wasmBinaryMagic is the 4-byte header every binary-format WASM module
// starts with ("\0asm").
var wasmBinaryMagic = [4]byte{0x00, 0x61, 0x73, 0x6d}

// isWasmBinary reports whether b begins with the WASM binary magic number.
func isWasmBinary(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	return b[0] == wasmBinaryMagic[0] && b[1] == wasmBinaryMagic[1] &&
		b[2] == wasmBinaryMagic[2] && b[3] == wasmBinaryMagic[3]
}

// RegisterFile reads the module image at path and registers it under a URI
// derived from the path's canonical form, falling back to the raw path
// string when canonicalization fails (e.g. the file doesn't exist yet
// relative to the current directory but will be resolvable by the OS).
// Textual WebAssembly (WAT) source is not supported: bytes that don't carry
// the binary magic number fail registration with CodeCompile.
func RegisterFile(path string) (abi.WasmUri, error) {
	uri := path
	if abs, err := filepath.Abs(path); err == nil {
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			uri = resolved
		} else {
			uri = abs
		}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", abi.Errorf(abi.CodeCompile, "read %s: %s", path, err)
	}
	return registerBytes(abi.WasmUri(uri), b)
}

// RegisterBytes registers an already-in-memory module image under an
// explicit tag, used when the caller has no filesystem path (e.g. an
// embedded asset or a module fetched over the network).
func RegisterBytes(tag string, b []byte) (abi.WasmUri, error) {
	return registerBytes(abi.WasmUri(tag), b)
}

func registerBytes(uri abi.WasmUri, b []byte) (abi.WasmUri, error) {
	if !isWasmBinary(b) {
		return "", abi.Errorf(abi.CodeCompile, "module %q is not in the WASM binary format (textual WAT source is not supported)", uri)
	}
	if err := loadModule(uri, b, nil); err != nil {
		return "", err
	}
	return uri, nil
}
