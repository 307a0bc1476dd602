package backend

import (
	"errors"

	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

var (
	// ErrFeatureDisabled reports an operation that needs a feature the
	// build did not compile in.
	ErrFeatureDisabled = errors.New("backend: feature not compiled in")

	// ErrNotBuilt reports a provider family whose native code was not
	// linked into the current binary.
	ErrNotBuilt = errors.New("backend: native backend not built")
)

// Selection is the engine configuration composed at build time. It is
// immutable for the process lifetime.
type Selection struct {
	CryptoFamily    string
	IdentityEnabled bool
	StorageEnabled  bool
	StorageVariant  string
}

// Active returns the configuration selected by the build tags.
func Active() Selection {
	return Selection{
		CryptoFamily:    cryptoFamily,
		IdentityEnabled: identityEnabled,
		StorageEnabled:  storageVariant != "none",
		StorageVariant:  storageVariant,
	}
}

// NewEngine constructs the engine backed by the selected crypto family.
func NewEngine() (engine.Engine, error) {
	return newEngine()
}

// NewIdentityValidator constructs the compiled-in identity validator, or
// fails with ErrFeatureDisabled when identity validation is not built.
func NewIdentityValidator() (engine.IdentityValidator, error) {
	return newIdentityValidator()
}

// OpenGroupStorage opens the compiled-in group-state store at path, or fails
// with ErrFeatureDisabled when persistence is not built.
func OpenGroupStorage(path string) (engine.GroupStateStorage, error) {
	return openGroupStorage(path)
}
