// Package memengine is the in-memory reference engine behind the default
// stdcrypto provider family. It implements the engine interfaces with real
// signatures (ed25519, and secp256k1 for the private-use test suite) and real
// AES-GCM message protection over a per-epoch secret, but simplified group
// mechanics: no ratchet tree, welcome messages carry the epoch secret
// directly.
//
// It exists so the bridge, its test suite, and embedders without a native
// engine have an honest implementation of the observable contract: epochs
// advance per applied commit, a second staged commit is rejected while one is
// pending, stale commits fail, and group state round-trips through the
// storage provider.
package memengine
