package abi

import (
	"encoding/json"
	"fmt"
)

// Envelope is a type-tagged byte container, the Go realization of the
// original Rust implementation's protobuf Any. TypeName plays the role of
// protobuf's type_url: Unwrap fails with CodeProto when it doesn't match the
// type the caller asked for.
//
// The original (wasmy-abi/src/types.rs) builds this on protobuf::Any, whose
// wire format requires protoc-generated bindings for every payload type. No
// protoc toolchain is available in this environment (see DESIGN.md), so the
// envelope is carried over encoding/json instead, matching the wire format
// several pack repos (okra-platform-okra, reglet-dev-reglet-hostlib) already
// use for host/guest messages.
type Envelope struct {
	TypeName string          `json:"type,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// IsEmpty reports whether the envelope carries no payload at all.
func (e Envelope) IsEmpty() bool {
	return e.TypeName == "" && len(e.Value) == 0
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

// Wrap packs a typed value into an Envelope.
func Wrap(v any) (Envelope, error) {
	if v == nil {
		return Envelope{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, Errorf(CodeProto, "wrap: %s", err)
	}
	return Envelope{TypeName: typeName(v), Value: b}, nil
}

// Unwrap unpacks an Envelope into T, failing with CodeProto when the
// envelope's recorded type does not match T.
func Unwrap[T any](e Envelope) (T, error) {
	var zero T
	if e.IsEmpty() {
		return zero, nil
	}
	if want := typeName(zero); e.TypeName != "" && e.TypeName != want {
		return zero, Errorf(CodeProto, "the message type does not match: envelope carries %q, want %q", e.TypeName, want)
	}
	if len(e.Value) == 0 {
		return zero, nil
	}
	if err := json.Unmarshal(e.Value, &zero); err != nil {
		return zero, Errorf(CodeProto, "unwrap: %s", err)
	}
	return zero, nil
}
