//go:build mlsffi_sqlite && !mlsffi_sqlcipher

package backend

import (
	"github.com/groupwire/mls-ffi-go/internal/storage"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

const storageVariant = "sqlite"

func openGroupStorage(path string) (engine.GroupStateStorage, error) {
	return storage.Open(path)
}
