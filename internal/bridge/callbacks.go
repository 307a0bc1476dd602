package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/groupwire/mls-ffi-go/internal/registry"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

// RegisterStorageProvider registers a caller-supplied group state store and
// returns a handle usable as the storageProvider argument of ClientNew. The
// caller keeps ownership: releasing the handle stops future invocations but
// does not close the provider.
func (s *Surface) RegisterStorageProvider(p engine.GroupStateStorage) (h registry.Handle, res mlsffi.Result) {
	defer s.guard("register_storage_provider", &res)()

	if p == nil {
		return 0, s.failf("register_storage_provider", mlsffi.StatusInvalidArgument, "nil storage provider")
	}
	h, err := s.reg.Register(registry.KindStorageProvider, p, 0, nil)
	if err != nil {
		return 0, s.fail("register_storage_provider", err)
	}
	return h, ok()
}

// RegisterIdentityProvider registers a caller-supplied identity validator and
// returns a handle usable as the identityProvider argument of ClientNew.
func (s *Surface) RegisterIdentityProvider(v engine.IdentityValidator) (h registry.Handle, res mlsffi.Result) {
	defer s.guard("register_identity_provider", &res)()

	if v == nil {
		return 0, s.failf("register_identity_provider", mlsffi.StatusInvalidArgument, "nil identity provider")
	}
	h, err := s.reg.Register(registry.KindIdentityProvider, v, 0, nil)
	if err != nil {
		return 0, s.fail("register_identity_provider", err)
	}
	return h, ok()
}

// registeredStorage routes engine storage calls through the registry on every
// invocation, so a released registration fails instead of reaching a provider
// the caller no longer expects calls on.
type registeredStorage struct {
	reg *registry.Registry
	h   registry.Handle
}

func (r *registeredStorage) resolve() (engine.GroupStateStorage, error) {
	obj, err := r.reg.Resolve(r.h, registry.KindStorageProvider)
	if err != nil {
		return nil, fmt.Errorf("%w: storage provider registration: %v", engine.ErrStorage, err)
	}
	p, castOK := obj.(engine.GroupStateStorage)
	if !castOK {
		return nil, fmt.Errorf("%w: storage provider slot holds %T", errInternal, obj)
	}
	return p, nil
}

func (r *registeredStorage) State(ctx context.Context, groupID []byte) ([]byte, error) {
	p, err := r.resolve()
	if err != nil {
		return nil, err
	}
	return p.State(ctx, groupID)
}

func (r *registeredStorage) EpochData(ctx context.Context, groupID []byte, epochID uint64) ([]byte, error) {
	p, err := r.resolve()
	if err != nil {
		return nil, err
	}
	return p.EpochData(ctx, groupID, epochID)
}

func (r *registeredStorage) MaxEpochID(ctx context.Context, groupID []byte) (uint64, bool, error) {
	p, err := r.resolve()
	if err != nil {
		return 0, false, err
	}
	return p.MaxEpochID(ctx, groupID)
}

func (r *registeredStorage) WriteState(ctx context.Context, groupID, snapshot []byte, inserts, updates []engine.EpochRecord) error {
	p, err := r.resolve()
	if err != nil {
		return err
	}
	return p.WriteState(ctx, groupID, snapshot, inserts, updates)
}

// Close is a no-op; the registration owner closes the provider.
func (r *registeredStorage) Close() error { return nil }

// registeredIdentity is the identity counterpart of registeredStorage.
type registeredIdentity struct {
	reg *registry.Registry
	h   registry.Handle
}

func (r *registeredIdentity) resolve() (engine.IdentityValidator, error) {
	obj, err := r.reg.Resolve(r.h, registry.KindIdentityProvider)
	if err != nil {
		return nil, fmt.Errorf("%w: identity provider registration: %v", engine.ErrIdentity, err)
	}
	v, castOK := obj.(engine.IdentityValidator)
	if !castOK {
		return nil, fmt.Errorf("%w: identity provider slot holds %T", errInternal, obj)
	}
	return v, nil
}

func (r *registeredIdentity) ValidateMember(ctx context.Context, signingIdentity []byte, at time.Time) error {
	v, err := r.resolve()
	if err != nil {
		return err
	}
	return v.ValidateMember(ctx, signingIdentity, at)
}

func (r *registeredIdentity) ValidateExternalSender(ctx context.Context, signingIdentity []byte, at time.Time) error {
	v, err := r.resolve()
	if err != nil {
		return err
	}
	return v.ValidateExternalSender(ctx, signingIdentity, at)
}
