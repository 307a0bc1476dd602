package bridge

import (
	"context"
	"fmt"

	"github.com/groupwire/mls-ffi-go/internal/backend"
	"github.com/groupwire/mls-ffi-go/internal/marshal"
	"github.com/groupwire/mls-ffi-go/internal/registry"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

// ClientNew creates a client backed by the build-selected engine. A non-zero
// storageProvider or identityProvider handle plugs in a caller-supplied
// provider registration in place of the compiled-in one; a non-empty
// storagePath opens the compiled-in store and fails with
// StatusUnsupportedValue when persistence is not built.
func (s *Surface) ClientNew(name []byte, suiteWire uint16, storagePath []byte, storageProvider, identityProvider registry.Handle) (h registry.Handle, res mlsffi.Result) {
	defer s.guard("client_new", &res)()

	nameStr, err := marshal.String(name, s.maxBuf)
	if err != nil {
		return 0, s.fail("client_new", err)
	}
	if nameStr == "" {
		return 0, s.failf("client_new", mlsffi.StatusInvalidArgument, "empty client name")
	}
	suite, err := marshal.CipherSuiteFromWire(suiteWire)
	if err != nil {
		return 0, s.fail("client_new", err)
	}
	pathStr, err := marshal.String(storagePath, s.maxBuf)
	if err != nil {
		return 0, s.fail("client_new", err)
	}

	var (
		store      engine.GroupStateStorage
		ownStorage bool
	)
	switch {
	case storageProvider != 0:
		// Validate the registration now; per-call resolution keeps
		// rejecting invocations after it is released.
		if _, err := s.reg.Resolve(storageProvider, registry.KindStorageProvider); err != nil {
			return 0, s.fail("client_new", err)
		}
		store = &registeredStorage{reg: s.reg, h: storageProvider}
	case pathStr != "":
		if !s.sel.StorageEnabled {
			return 0, s.fail("client_new", fmt.Errorf("%w: persistence", backend.ErrFeatureDisabled))
		}
		store, err = backend.OpenGroupStorage(pathStr)
		if err != nil {
			return 0, s.fail("client_new", fmt.Errorf("%w: open group storage: %v", engine.ErrStorage, err))
		}
		ownStorage = true
	}

	var validator engine.IdentityValidator
	switch {
	case identityProvider != 0:
		if _, err := s.reg.Resolve(identityProvider, registry.KindIdentityProvider); err != nil {
			if ownStorage {
				_ = store.Close()
			}
			return 0, s.fail("client_new", err)
		}
		validator = &registeredIdentity{reg: s.reg, h: identityProvider}
	case s.sel.IdentityEnabled:
		validator, err = backend.NewIdentityValidator()
		if err != nil {
			if ownStorage {
				_ = store.Close()
			}
			return 0, s.fail("client_new", err)
		}
	}

	client, err := s.eng.NewClient(context.Background(), engine.ClientConfig{
		Name:        nameStr,
		CipherSuite: suite,
		Storage:     store,
		Identity:    validator,
	})
	if err != nil {
		if ownStorage {
			_ = store.Close()
		}
		return 0, s.fail("client_new", err)
	}

	cs := &clientState{client: client, storage: store, ownStorage: ownStorage}
	h, err = s.reg.Register(registry.KindClient, cs, 0, func() {
		_ = client.Close()
		if ownStorage {
			_ = store.Close()
		}
	})
	if err != nil {
		_ = client.Close()
		if ownStorage {
			_ = store.Close()
		}
		return 0, s.fail("client_new", err)
	}
	return h, ok()
}

// ClientNewFromConfig is the Go-embedder convenience over ClientNew. Provider
// handles are zero; the compiled-in providers apply.
func (s *Surface) ClientNewFromConfig(cfg mlsffi.Config) (registry.Handle, mlsffi.Result) {
	return s.ClientNew([]byte(cfg.Name), cfg.CipherSuite, []byte(cfg.StoragePath), 0, 0)
}

// ClientGenerateKeyPackage returns a serialized key package and registers it
// under a handle tied to the client.
func (s *Surface) ClientGenerateKeyPackage(ch registry.Handle) (kp []byte, kph registry.Handle, res mlsffi.Result) {
	defer s.guard("client_generate_key_package", &res)()

	cs, err := s.client(ch)
	if err != nil {
		return nil, 0, s.fail("client_generate_key_package", err)
	}
	raw, err := cs.client.GenerateKeyPackage(context.Background())
	if err != nil {
		return nil, 0, s.fail("client_generate_key_package", err)
	}
	kph, err = s.reg.Register(registry.KindKeyPackage, raw, ch, nil)
	if err != nil {
		return nil, 0, s.fail("client_generate_key_package", err)
	}
	return append([]byte(nil), raw...), kph, ok()
}

// KeyPackageBytes returns the serialized form behind a key package handle.
func (s *Surface) KeyPackageBytes(kph registry.Handle) (kp []byte, res mlsffi.Result) {
	defer s.guard("key_package_bytes", &res)()

	obj, err := s.reg.Resolve(kph, registry.KindKeyPackage)
	if err != nil {
		return nil, s.fail("key_package_bytes", err)
	}
	raw, castOK := obj.([]byte)
	if !castOK {
		return nil, s.fail("key_package_bytes", fmt.Errorf("%w: key package slot holds %T", errInternal, obj))
	}
	return append([]byte(nil), raw...), ok()
}

// ClientSigningIdentity returns the client's serialized signing identity.
func (s *Surface) ClientSigningIdentity(ch registry.Handle) (identity []byte, res mlsffi.Result) {
	defer s.guard("client_signing_identity", &res)()

	cs, err := s.client(ch)
	if err != nil {
		return nil, s.fail("client_signing_identity", err)
	}
	id, err := cs.client.SigningIdentity()
	if err != nil {
		return nil, s.fail("client_signing_identity", err)
	}
	return id, ok()
}

// ClientCreateGroup starts a new group session owned by the client handle.
func (s *Surface) ClientCreateGroup(ch registry.Handle, groupID []byte) (gh registry.Handle, res mlsffi.Result) {
	defer s.guard("client_create_group", &res)()

	cs, err := s.client(ch)
	if err != nil {
		return 0, s.fail("client_create_group", err)
	}
	id, err := marshal.CopyBounded(groupID, s.maxBuf)
	if err != nil {
		return 0, s.fail("client_create_group", err)
	}
	g, err := cs.client.CreateGroup(context.Background(), id)
	if err != nil {
		return 0, s.fail("client_create_group", err)
	}
	return s.registerGroup(ch, cs, g, "client_create_group")
}

// ClientJoinGroup joins a group from a welcome message. ratchetTree is
// optional and may be empty.
func (s *Surface) ClientJoinGroup(ch registry.Handle, welcome, ratchetTree []byte) (gh registry.Handle, res mlsffi.Result) {
	defer s.guard("client_join_group", &res)()

	cs, err := s.client(ch)
	if err != nil {
		return 0, s.fail("client_join_group", err)
	}
	if len(welcome) == 0 {
		return 0, s.failf("client_join_group", mlsffi.StatusInvalidArgument, "empty welcome message")
	}
	w, err := marshal.CopyBounded(welcome, s.maxBuf)
	if err != nil {
		return 0, s.fail("client_join_group", err)
	}
	tree, err := marshal.CopyBounded(ratchetTree, s.maxBuf)
	if err != nil {
		return 0, s.fail("client_join_group", err)
	}
	if len(tree) == 0 {
		tree = nil
	}
	g, err := cs.client.JoinGroup(context.Background(), w, tree)
	if err != nil {
		return 0, s.fail("client_join_group", err)
	}
	return s.registerGroup(ch, cs, g, "client_join_group")
}

// ClientLoadGroup restores a persisted group session. Without the persistence
// feature (or a caller-supplied storage provider) it fails with
// StatusUnsupportedValue.
func (s *Surface) ClientLoadGroup(ch registry.Handle, groupID []byte) (gh registry.Handle, res mlsffi.Result) {
	defer s.guard("client_load_group", &res)()

	cs, err := s.client(ch)
	if err != nil {
		return 0, s.fail("client_load_group", err)
	}
	if cs.storage == nil {
		return 0, s.fail("client_load_group", fmt.Errorf("%w: persistence", backend.ErrFeatureDisabled))
	}
	id, err := marshal.CopyBounded(groupID, s.maxBuf)
	if err != nil {
		return 0, s.fail("client_load_group", err)
	}
	if len(id) == 0 {
		return 0, s.failf("client_load_group", mlsffi.StatusInvalidArgument, "empty group id")
	}
	g, err := cs.client.LoadGroup(context.Background(), id)
	if err != nil {
		return 0, s.fail("client_load_group", err)
	}
	return s.registerGroup(ch, cs, g, "client_load_group")
}

func (s *Surface) registerGroup(ch registry.Handle, cs *clientState, g engine.Group, op string) (registry.Handle, mlsffi.Result) {
	gs := &groupState{group: g, hasStorage: cs.storage != nil}
	gh, err := s.reg.Register(registry.KindGroup, gs, ch, func() { _ = g.Close() })
	if err != nil {
		_ = g.Close()
		return 0, s.fail(op, err)
	}
	return gh, ok()
}
