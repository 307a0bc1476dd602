//go:build !mlsffi_sqlite && !mlsffi_sqlcipher

package backend

import "github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"

const storageVariant = "none"

func openGroupStorage(string) (engine.GroupStateStorage, error) {
	return nil, ErrFeatureDisabled
}
