//go:build !mlsffi_x509

package backend

import "github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"

const identityEnabled = false

func newIdentityValidator() (engine.IdentityValidator, error) {
	return nil, ErrFeatureDisabled
}
