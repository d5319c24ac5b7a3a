package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	wasmy "github.com/andeya/wasmy"
	"github.com/andeya/wasmy/abi"
)

type settings struct {
	modulePath string
	method     int32
	a, b       int32
}

func cli() settings {
	var s settings
	flag.StringVar(&s.modulePath, "m", "", "path to a WASM module to load; if empty, dispatches straight to the host handler")
	method := flag.Int("method", 0, "method number to invoke")
	a := flag.Int("a", 2, "first addend")
	b := flag.Int("b", 5, "second addend")
	flag.Parse()
	s.method = int32(*method)
	s.a, s.b = int32(*a), int32(*b)
	return s
}

// addArgs/addRets realize spec.md's demo schema: TestArgs{a,b} -> TestRets{c}.
type addArgs struct {
	A int32 `json:"a"`
	B int32 `json:"b"`
}

type addRets struct {
	C int32 `json:"c"`
}

func addHandler(_ uintptr, args abi.Envelope) (abi.Envelope, error) {
	in, err := abi.Unwrap[addArgs](args)
	if err != nil {
		return abi.Envelope{}, err
	}
	return abi.Wrap(addRets{C: in.A + in.B})
}

func main() {
	s := cli()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	wasmy.SetLogger(logger)

	wasmy.RegisterHandler(0, addHandler)

	ctx := context.Background()
	req := addArgs{A: s.a, B: s.b}

	if s.modulePath == "" {
		// Trivial host-only dispatch: no module is loaded at all.
		in, err := abi.NewInArgs(s.method, req)
		if err != nil {
			panic(err)
		}
		payload, err := abi.Encode(in)
		if err != nil {
			panic(err)
		}
		fmt.Println("dispatching directly to the host handler registry (no module loaded)")
		out := wasmy.Dispatch(0, payload)
		rets, err := abi.IntoResult[addRets](out)
		if err != nil {
			panic(err)
		}
		fmt.Printf("%d + %d = %d\n", s.a, s.b, rets.C)
		return
	}

	c, err := wasmy.Load(s.modulePath)
	if err != nil {
		panic(err)
	}
	rets, err := wasmy.Call[addArgs, addRets](ctx, c, s.method, req)
	if err != nil {
		os.Exit(1)
	}
	fmt.Printf("%d + %d = %d (via guest method %d)\n", s.a, s.b, rets.C, s.method)
}
