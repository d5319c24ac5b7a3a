package wasmy

import (
	"testing"

	"github.com/andeya/wasmy/abi"
)

type sumArgs struct {
	A int32 `json:"a"`
	B int32 `json:"b"`
}

type sumRets struct {
	C int32 `json:"c"`
}

func sumHandler(_ uintptr, args abi.Envelope) (abi.Envelope, error) {
	in, err := abi.Unwrap[sumArgs](args)
	if err != nil {
		return abi.Envelope{}, err
	}
	return abi.Wrap(sumRets{C: in.A + in.B})
}

func resetMux(t *testing.T) {
	t.Helper()
	muxMu.Lock()
	mux = map[abi.Method]Handler{}
	muxMu.Unlock()
}

func TestRegisterAndInvokeTrivialHostOnly(t *testing.T) {
	resetMux(t)
	RegisterHandler(0, sumHandler)

	inArgs, err := abi.NewInArgs(0, sumArgs{A: 2, B: 5})
	if err != nil {
		t.Fatalf("NewInArgs: %v", err)
	}
	payload, err := abi.Encode(inArgs)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out := vmInvoke(0, payload)
	got, err := abi.IntoResult[sumRets](out)
	if err != nil {
		t.Fatalf("IntoResult: %v", err)
	}
	if got.C != 7 {
		t.Errorf("got C=%d, want 7", got.C)
	}
}

func TestInvokeUndefinedMethod(t *testing.T) {
	resetMux(t)
	RegisterHandler(0, sumHandler)

	inArgs, _ := abi.NewInArgs(99, sumArgs{})
	payload, _ := abi.Encode(inArgs)
	out := vmInvoke(0, payload)
	if out.Code != abi.CodeNone {
		t.Fatalf("expected CodeNone, got %d", out.Code)
	}
}

func TestDuplicateRegistrationSameHandlerIsNoop(t *testing.T) {
	resetMux(t)
	RegisterHandler(1, sumHandler)
	RegisterHandler(1, sumHandler) // must not panic
}

func TestDuplicateRegistrationDistinctHandlerPanics(t *testing.T) {
	resetMux(t)
	RegisterHandler(2, sumHandler)

	other := func(_ uintptr, args abi.Envelope) (abi.Envelope, error) {
		return abi.Envelope{}, nil
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration with distinct handler")
		}
	}()
	RegisterHandler(2, other)
}

func TestTryAsContextValue(t *testing.T) {
	v := 42
	ptr := uintptr(0)
	if _, ok := TryAs[int](ptr); ok {
		t.Error("expected TryAs to fail for a zero pointer")
	}
	got, ok := TryAs[int](unsafePointerOf(&v))
	if !ok || *got != 42 {
		t.Errorf("TryAs on a live context value = (%v, %v), want 42", got, ok)
	}
}
