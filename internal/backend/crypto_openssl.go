//go:build mlsffi_openssl

package backend

import "github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"

// OpenSSL provider family. The native engine integration is linked out of
// tree; until it is present this file keeps the family selectable while
// reporting ErrNotBuilt at client creation.

const cryptoFamily = "openssl"

func newEngine() (engine.Engine, error) {
	return nil, ErrNotBuilt
}
