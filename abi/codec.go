package abi

import "encoding/json"

// Encode serializes an InArgs or OutRets (or any schema-known message) to
// its wire bytes. This is the format written into, and read back out of,
// the per-instance swap buffer (spec.md §3, "swap").
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, Errorf(CodeProto, "encode: %s", err)
	}
	return b, nil
}

// Decode deserializes wire bytes into an InArgs or OutRets (or any
// schema-known message). An empty input decodes to the zero value, matching
// the guest ABI's convention that an empty swap buffer means "no response
// was produced."
func Decode[T any](b []byte) (T, error) {
	var v T
	if len(b) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, Errorf(CodeProto, "decode: %s", err)
	}
	return v, nil
}
