package wasmy

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"github.com/andeya/wasmy/abi"
)

// Handler is a native implementation of a host method: given the current
// call's context pointer and the guest-supplied argument envelope, it
// produces a result envelope or fails with a *abi.CodeMsg.
type Handler func(ctxPtr uintptr, args abi.Envelope) (abi.Envelope, error)

var (
	muxMu sync.RWMutex
	mux   = map[abi.Method]Handler{}
)

// RegisterHandler declaratively installs h as the native implementation of
// method. Calling it twice for the same method with distinct handler
// identities is a static configuration error and panics; calling it twice
// with the same handler (e.g. package init running more than once) is a
// harmless no-op.
func RegisterHandler(method abi.Method, h Handler) {
	if method < 0 {
		panic(fmt.Sprintf("wasmy: method must be non-negative, got %d", method))
	}
	muxMu.Lock()
	defer muxMu.Unlock()
	if existing, ok := mux[method]; ok {
		if reflect.ValueOf(existing).Pointer() != reflect.ValueOf(h).Pointer() {
			panic(fmt.Sprintf("wasmy: method %d already registered with a different handler", method))
		}
		return
	}
	mux[method] = h
}

// lookupHandler returns the handler registered for method, if any.
func lookupHandler(method abi.Method) (Handler, bool) {
	muxMu.RLock()
	defer muxMu.RUnlock()
	h, ok := mux[method]
	return h, ok
}

// TryAs recovers a typed borrow of the value behind a context pointer. It
// returns ok == false when ptr is 0 (no context value was supplied for this
// call); the correctness of T is the caller's responsibility, matching the
// original ABI's untyped value_ptr contract.
func TryAs[T any](ptr uintptr) (v *T, ok bool) {
	if ptr == 0 {
		return nil, false
	}
	return (*T)(unsafe.Pointer(ptr)), true
}

// Dispatch runs the C4 handler registry directly against an InArgs payload,
// with no guest module involved. This is the "trivial host-only" call shape
// spec.md §8 describes: a host that wants to exercise its own method
// handlers (or test them) without compiling a module can call this instead
// of going through Load/Call.
func Dispatch(ctxPtr uintptr, payload []byte) abi.OutRets {
	return vmInvoke(ctxPtr, payload)
}

// vmInvoke is the C4 dispatch entry point: decode an InArgs, look up its
// handler by method number, run it, and encode the OutRets. It never
// returns an error itself — every failure is folded into the OutRets code.
func vmInvoke(ctxPtr uintptr, payload []byte) abi.OutRets {
	in, err := abi.Decode[abi.InArgs](payload)
	if err != nil {
		cm := abi.AsCodeMsg(err)
		return abi.OutRets{Code: cm.Code, Msg: cm.Msg}
	}
	h, ok := lookupHandler(in.Method)
	if !ok {
		return abi.OutRets{Code: abi.CodeNone, Msg: fmt.Sprintf("undefined method %d", in.Method)}
	}
	env, err := h(ctxPtr, in.Data)
	if err != nil {
		cm := abi.AsCodeMsg(err)
		return abi.OutRets{Code: cm.Code, Msg: cm.Msg}
	}
	return abi.OutRets{Code: 0, Data: env}
}
