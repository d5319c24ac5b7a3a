// Package abi defines the wire-level data model shared by host and guest:
// the method-numbered envelope, the fixed error-code taxonomy, and the
// encode/decode/wrap/unwrap operations that turn typed Go values into bytes
// and back.
package abi

import "fmt"

// Stable error codes. These are wire-visible: a consumer that reads an
// OutRets.Code must treat any non-zero value as failure and use the code to
// categorize it, not the message text.
const (
	CodeUnknown       int32 = -1
	CodeExports       int32 = -2
	CodeWASI          int32 = -3
	CodeCompile       int32 = -4
	CodeInstantiation int32 = -5
	CodeProto         int32 = -6
	CodeNone          int32 = -7
	CodeMem           int32 = -8
)

// CodeMsg is the single error type used across the ABI: a stable integer
// code paired with a human-readable message.
type CodeMsg struct {
	Code int32
	Msg  string
}

func (e *CodeMsg) Error() string {
	return fmt.Sprintf("code=%d, msg=%s", e.Code, e.Msg)
}

// NewCodeMsg builds a CodeMsg from a code and a message.
func NewCodeMsg(code int32, msg string) *CodeMsg {
	return &CodeMsg{Code: code, Msg: msg}
}

// Errorf builds a CodeMsg with a formatted message.
func Errorf(code int32, format string, args ...any) *CodeMsg {
	return &CodeMsg{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// AsCodeMsg recovers the stable code/message pair from any error, falling
// back to CodeUnknown for errors the ABI didn't originate.
func AsCodeMsg(err error) *CodeMsg {
	if err == nil {
		return nil
	}
	if cm, ok := err.(*CodeMsg); ok {
		return cm
	}
	return &CodeMsg{Code: CodeUnknown, Msg: err.Error()}
}
