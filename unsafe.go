package wasmy

import "unsafe"

// unsafePointerOf returns the address of v as a uintptr, for storage in
// Context.ValuePtr. The caller is responsible for keeping v alive and for
// never retaining the returned value past the call boundary (spec.md §5).
func unsafePointerOf[T any](v *T) uintptr {
	return uintptr(unsafe.Pointer(v))
}
