// Package capi exports the C ABI of the boundary. It is a thin veneer over
// internal/bridge: every exported function borrows its inbound buffers (the
// bridge copies before returning), allocates outbound buffers with C.malloc,
// and returns a status code from the stable taxonomy.
//
// This package is the only one allowed to import "C" or "unsafe"; the policy
// check in internal/check enforces that.
package capi
