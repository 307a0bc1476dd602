// Package mlsffi defines the stable boundary contract of the MLS FFI bridge:
// the status code table, the boundary result shape, and the runtime client
// configuration. The bridge exposes a stateful MLS engine to foreign callers
// through opaque handles and flat buffers; this package holds the pieces of
// that contract that are visible on both sides of the boundary.
//
// The engine itself is an external collaborator described by the interfaces in
// the engine subpackage. Which concrete crypto, identity, and storage backends
// are linked in is decided at build time; see internal/backend.
package mlsffi
