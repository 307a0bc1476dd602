// Command libmlsffi is the c-shared build entry:
//
//	go build -buildmode=c-shared -o libmlsffi.so ./cmd/libmlsffi
//
// The exported surface lives in internal/capi; main is never called in a
// shared-library build.
package main

import (
	_ "github.com/groupwire/mls-ffi-go/internal/capi"
)

func main() {}
