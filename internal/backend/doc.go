// Package backend resolves, at build time, which concrete crypto provider
// family, identity validator, and storage engine back every handle the bridge
// creates.
//
// Selection is driven by build tags:
//
//	(default)         pure-Go "stdcrypto" provider family
//	mlsffi_openssl    OpenSSL-linked provider family (cgo build required)
//	mlsffi_x509       compile in X.509 identity validation
//	mlsffi_sqlite     compile in sqlite group-state persistence
//	mlsffi_sqlcipher  encrypted-at-rest storage variant; requires mlsffi_sqlite
//
// Exactly one crypto family and at most one storage variant are active per
// build: each valid combination defines the selector symbols exactly once, so
// an invalid combination (for example mlsffi_sqlcipher without mlsffi_sqlite)
// fails to compile instead of surfacing at runtime. There is no per-call
// branching on backend identity anywhere above this package.
package backend
