package abi

// Method is a non-negative int32 naming a request kind. Host-implemented and
// guest-implemented methods are separate namespaces: the same number may
// mean different things depending on which side is dispatching.
type Method = int32

// WasmUri is the opaque identifier of a registered module image. Equality is
// string equality; a WasmUri is never evicted once registered.
type WasmUri string

func (u WasmUri) String() string { return string(u) }

// InArgs is a host->guest or guest->host call request: a method number plus
// its argument envelope.
type InArgs struct {
	Method Method   `json:"method"`
	Data   Envelope `json:"data,omitempty"`
}

// NewInArgs builds an InArgs from a typed argument value.
func NewInArgs[T any](method Method, v T) (InArgs, error) {
	env, err := Wrap(v)
	if err != nil {
		return InArgs{}, err
	}
	return InArgs{Method: method, Data: env}, nil
}

// Args unpacks the InArgs payload as T.
func Args[T any](a InArgs) (T, error) {
	return Unwrap[T](a.Data)
}

// OutRets is a call response: a result code (0 == success), an optional
// message (populated on failure), and the result envelope (populated on
// success).
type OutRets struct {
	Code int32    `json:"code,omitempty"`
	Msg  string   `json:"msg,omitempty"`
	Data Envelope `json:"data,omitempty"`
}

// IntoResult maps an OutRets to a typed Go result, turning a non-zero code
// into a *CodeMsg error.
func IntoResult[T any](o OutRets) (T, error) {
	var zero T
	if o.Code != 0 {
		return zero, NewCodeMsg(o.Code, o.Msg)
	}
	return Unwrap[T](o.Data)
}

// FromResult packs a (value, error) pair into an OutRets, the inverse of
// IntoResult. A nil error produces a success OutRets whose Data wraps v; Data
// is empty only when v is a nil interface value (a zero struct is still
// wrapped with its type name).
func FromResult[T any](v T, err error) OutRets {
	if err != nil {
		cm := AsCodeMsg(err)
		return OutRets{Code: cm.Code, Msg: cm.Msg}
	}
	env, err := Wrap(v)
	if err != nil {
		cm := AsCodeMsg(err)
		return OutRets{Code: cm.Code, Msg: cm.Msg}
	}
	return OutRets{Data: env}
}

// Empty is the zero-value payload type, used where a call carries no
// meaningful argument or result (the wasmy-abi Empty protobuf message).
type Empty struct{}
