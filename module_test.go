package wasmy

import (
	"encoding/hex"
	"testing"

	"github.com/andeya/wasmy/abi"
)

// mustHex decodes a hex string into bytes, panicking on malformed input; used
// to spell out hand-assembled WASM binaries inline without a binary blob.
func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("mustHex: %v", err)
	}
	return b
}

// validModuleHex is a hand-assembled WASM binary exporting one page of
// linear memory, a nullary onload, and a conforming handle_0(i32,i32)->() —
// both function bodies are empty.
const validModuleHex = "0061736d0100000001090260000060027f7f0003030200010503010001071e03066f6e6c6f616400000868616e646c655f300001066d656d6f727902000a070202000b02000b"

// badExportsModuleHex exports handle_0 with signature ()->i32 instead of the
// required (i32,i32)->().
const badExportsModuleHex = "0061736d010000000108026000006000017f03030200010503010001071e03066f6e6c6f616400000868616e646c655f300001066d656d6f727902000a090202000b040041000b"

func TestRegisterBytesRejectsNonBinaryFormat(t *testing.T) {
	_, err := RegisterBytes("wat-source", []byte("(module)"))
	if err == nil {
		t.Fatal("expected an error for non-binary-format input")
	}
	if abi.AsCodeMsg(err).Code != abi.CodeCompile {
		t.Errorf("expected CodeCompile, got %+v", abi.AsCodeMsg(err))
	}
}

func TestRegisterBytesCompilesAndValidatesExports(t *testing.T) {
	uri, err := RegisterBytes("valid-module", mustHex(t, validModuleHex))
	if err != nil {
		t.Fatalf("RegisterBytes: %v", err)
	}
	if _, ok := moduleRecord(uri); !ok {
		t.Fatal("expected module record to be installed")
	}
}

func TestRegisterBytesIsIdempotent(t *testing.T) {
	b := mustHex(t, validModuleHex)
	uri1, err := RegisterBytes("idempotent-module", b)
	if err != nil {
		t.Fatalf("first RegisterBytes: %v", err)
	}
	uri2, err := RegisterBytes("idempotent-module", b)
	if err != nil {
		t.Fatalf("second RegisterBytes: %v", err)
	}
	if uri1 != uri2 {
		t.Errorf("expected stable URI across re-registration, got %q then %q", uri1, uri2)
	}
}

func TestRegisterBytesRejectsBadHandleSignature(t *testing.T) {
	_, err := RegisterBytes("bad-exports-module", mustHex(t, badExportsModuleHex))
	if err == nil {
		t.Fatal("expected an export-validation error")
	}
	if abi.AsCodeMsg(err).Code != abi.CodeExports {
		t.Errorf("expected CodeExports, got %+v", abi.AsCodeMsg(err))
	}
}
