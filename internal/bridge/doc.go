// Package bridge is the call-surface core: one method per boundary
// operation, working entirely in handles, byte slices, and status codes.
// The cgo layer in internal/capi is a thin veneer over this package, which
// keeps every contract testable without a C toolchain.
//
// Every operation follows the same discipline: validate handles and buffers
// first, invoke the engine, register any new long-lived object, translate the
// error. On failure no new handle is registered and no partial state is
// reachable by the caller. Failures never propagate as panics across the
// boundary; a panic inside an operation is recovered and reported as
// StatusInternalError.
package bridge
