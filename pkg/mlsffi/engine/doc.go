// Package engine declares the interfaces of the MLS protocol engine wrapped
// by the bridge, together with the pluggable provider interfaces (group-state
// storage, identity validation) a backend composes into it.
//
// The bridge never implements protocol semantics itself: everything here is
// the contract of an external collaborator. The reference in-memory engine
// used by the test suite lives in internal/memengine.
package engine
