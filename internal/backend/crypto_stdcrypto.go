//go:build !mlsffi_openssl

package backend

import (
	"github.com/groupwire/mls-ffi-go/internal/memengine"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

// Default provider family: the pure-Go engine with standard-library
// primitives (ed25519 signatures, AES-GCM protection) plus the secp256k1
// private-use suite.

const cryptoFamily = "stdcrypto"

func newEngine() (engine.Engine, error) {
	return memengine.New(), nil
}
