package wasmy

import (
	"context"
	"errors"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/andeya/wasmy/abi"
)

// alwaysOOMFunc is a fake api.Function standing in for a guest export that
// always traps with an out-of-memory error, used to drive callWithOOMRetry's
// retry/cap logic without a real guest that can exhaust its own memory. It
// embeds api.Function (left nil) only to satisfy the interface; just
// Definition and Call are implemented.
type alwaysOOMFunc struct{ api.Function }

func (alwaysOOMFunc) Definition() api.FunctionDefinition { return nil }

func (alwaysOOMFunc) Call(_ context.Context, _ ...uint64) ([]uint64, error) {
	return nil, errors.New("wasm error: OOM")
}

func TestGetInstanceIsStablePerCallerKey(t *testing.T) {
	uri, err := RegisterBytes("instance-stability-module", mustHex(t, validModuleHex))
	if err != nil {
		t.Fatalf("RegisterBytes: %v", err)
	}

	ctx := context.Background()
	first, err := getInstance(ctx, uri)
	if err != nil {
		t.Fatalf("getInstance: %v", err)
	}
	second, err := getInstance(ctx, uri)
	if err != nil {
		t.Fatalf("getInstance: %v", err)
	}
	if first != second {
		t.Error("expected the same CallerKey to resolve to the same Instance")
	}
}

func TestGetInstanceIsolatesDistinctCallerKeys(t *testing.T) {
	uri, err := RegisterBytes("instance-isolation-module", mustHex(t, validModuleHex))
	if err != nil {
		t.Fatalf("RegisterBytes: %v", err)
	}

	ctxA := WithCallerKey(context.Background(), "worker-a")
	ctxB := WithCallerKey(context.Background(), "worker-b")

	a, err := getInstance(ctxA, uri)
	if err != nil {
		t.Fatalf("getInstance A: %v", err)
	}
	b, err := getInstance(ctxB, uri)
	if err != nil {
		t.Fatalf("getInstance B: %v", err)
	}
	if a == b {
		t.Error("expected distinct CallerKeys to resolve to distinct Instances")
	}
}

func TestInstanceContextIsCleanBetweenCalls(t *testing.T) {
	uri, err := RegisterBytes("instance-clean-context-module", mustHex(t, validModuleHex))
	if err != nil {
		t.Fatalf("RegisterBytes: %v", err)
	}
	ctx := context.Background()
	inst, err := getInstance(ctx, uri)
	if err != nil {
		t.Fatalf("getInstance: %v", err)
	}
	if !inst.ctx.clean() {
		t.Fatal("context should be clean immediately after instance creation (onload runs without preparing it)")
	}

	if _, err := inst.handle(ctx, 0, 0, nil, []byte("{}")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !inst.ctx.clean() {
		t.Error("context must be clean again after the call returns")
	}
}

func TestCallWithOOMRetryRespectsMaxMemoryPagesCap(t *testing.T) {
	uri, err := RegisterBytes("instance-oom-cap-module", mustHex(t, validModuleHex))
	if err != nil {
		t.Fatalf("RegisterBytes: %v", err)
	}
	ctx := context.Background()
	inst, err := getInstance(ctx, uri)
	if err != nil {
		t.Fatalf("getInstance: %v", err)
	}

	capPages := inst.mem.Size() / wasmPageSize
	defer SetConfig(Config{})
	SetConfig(Config{MaxMemoryPages: capPages})

	_, err = inst.callWithOOMRetry(ctx, alwaysOOMFunc{})
	if err == nil {
		t.Fatal("expected an error once the configured memory cap is reached")
	}
	if abi.AsCodeMsg(err).Code != abi.CodeMem {
		t.Errorf("expected CodeMem, got %+v", abi.AsCodeMsg(err))
	}
	if got := inst.mem.Size() / wasmPageSize; got != capPages {
		t.Errorf("memory should not grow past the configured cap: got %d pages, want %d", got, capPages)
	}
}

func TestCallWithOOMRetryGrowsWhenUnderCap(t *testing.T) {
	uri, err := RegisterBytes("instance-oom-grow-module", mustHex(t, validModuleHex))
	if err != nil {
		t.Fatalf("RegisterBytes: %v", err)
	}
	ctx := context.Background()
	inst, err := getInstance(ctx, uri)
	if err != nil {
		t.Fatalf("getInstance: %v", err)
	}

	start := inst.mem.Size() / wasmPageSize
	defer SetConfig(Config{})
	SetConfig(Config{MaxMemoryPages: start + 2})

	calls := 0
	succeedOOM := oomUntil{trapCount: 1, calls: &calls}
	if _, err := inst.callWithOOMRetry(ctx, succeedOOM); err != nil {
		t.Fatalf("callWithOOMRetry: %v", err)
	}
	if got := inst.mem.Size() / wasmPageSize; got != start+1 {
		t.Errorf("expected memory to grow by one page, got %d pages (started at %d)", got, start)
	}
}

// oomUntil traps with OOM trapCount times, then succeeds.
type oomUntil struct {
	api.Function
	trapCount int
	calls     *int
}

func (oomUntil) Definition() api.FunctionDefinition { return nil }

func (o oomUntil) Call(_ context.Context, _ ...uint64) ([]uint64, error) {
	*o.calls++
	if *o.calls <= o.trapCount {
		return nil, errors.New("wasm error: OOM")
	}
	return nil, nil
}
