package bridge

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/groupwire/mls-ffi-go/internal/backend"
	"github.com/groupwire/mls-ffi-go/internal/marshal"
	"github.com/groupwire/mls-ffi-go/internal/memengine"
	"github.com/groupwire/mls-ffi-go/internal/registry"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

func newSurface() *Surface {
	return NewWithEngine(memengine.New(), backend.Selection{CryptoFamily: "stdcrypto"})
}

func requireOK(t *testing.T, res mlsffi.Result) {
	t.Helper()
	require.Equal(t, mlsffi.StatusOK, res.Code, "detail: %s", res.Detail)
}

func newClient(t *testing.T, s *Surface, name string) registry.Handle {
	t.Helper()
	h, res := s.ClientNew([]byte(name), 0, nil, 0, 0)
	requireOK(t, res)
	return h
}

// twoMemberGroup builds a two member session and returns alice's and bob's
// group handles.
func twoMemberGroup(t *testing.T, s *Surface) (ag, bg registry.Handle) {
	t.Helper()
	alice := newClient(t, s, "alice")
	bob := newClient(t, s, "bob")

	kp, _, res := s.ClientGenerateKeyPackage(bob)
	requireOK(t, res)

	ag, res = s.ClientCreateGroup(alice, nil)
	requireOK(t, res)

	_, welcome, ph, res := s.GroupAddMembers(ag, marshal.JoinRecords([][]byte{kp}))
	requireOK(t, res)
	require.NotEmpty(t, welcome)

	requireOK(t, s.GroupApplyPendingCommit(ag, ph))

	bg, res = s.ClientJoinGroup(bob, welcome, nil)
	requireOK(t, res)
	return ag, bg
}

func TestApplicationMessageAcrossSurface(t *testing.T) {
	s := newSurface()
	ag, bg := twoMemberGroup(t, s)

	plaintext := []byte("boundary round trip")
	ct, res := s.GroupEncryptApplicationMessage(ag, plaintext)
	requireOK(t, res)

	kind, sender, data, res := s.GroupProcessIncomingMessage(bg, ct)
	requireOK(t, res)
	require.Equal(t, uint8(engine.ReceivedApplication), kind)
	require.Equal(t, uint32(0), sender)
	require.Equal(t, plaintext, data)
}

func TestTamperedCiphertextIsCryptoError(t *testing.T) {
	s := newSurface()
	ag, bg := twoMemberGroup(t, s)

	ct, res := s.GroupEncryptApplicationMessage(ag, []byte("payload"))
	requireOK(t, res)
	ct[len(ct)-1] ^= 0x01

	_, _, _, res = s.GroupProcessIncomingMessage(bg, ct)
	require.Equal(t, mlsffi.StatusCryptoError, res.Code)
}

func TestInvalidHandleStatuses(t *testing.T) {
	s := newSurface()
	alice := newClient(t, s, "alice")

	// Never-issued handle.
	_, res := s.GroupEpoch(registry.Handle(0xdeadbeef))
	require.Equal(t, mlsffi.StatusInvalidHandle, res.Code)

	// Wrong kind: a client handle where a group handle is expected.
	_, res = s.GroupEncryptApplicationMessage(alice, []byte("x"))
	require.Equal(t, mlsffi.StatusInvalidHandle, res.Code)

	// Released handle.
	gh, res := s.ClientCreateGroup(alice, []byte("g1"))
	requireOK(t, res)
	requireOK(t, s.ReleaseHandle(gh))
	_, res = s.GroupEpoch(gh)
	require.Equal(t, mlsffi.StatusInvalidHandle, res.Code)
}

func TestTruncatedKeyPackageRejectedBeforeEngine(t *testing.T) {
	s := newSurface()
	alice := newClient(t, s, "alice")
	bob := newClient(t, s, "bob")

	kp, _, res := s.ClientGenerateKeyPackage(bob)
	requireOK(t, res)

	gh, res := s.ClientCreateGroup(alice, nil)
	requireOK(t, res)

	before := s.HandleCount()
	truncated := kp[:len(kp)-3]
	_, _, _, res = s.GroupAddMembers(gh, marshal.JoinRecords([][]byte{truncated}))
	require.Equal(t, mlsffi.StatusInvalidArgument, res.Code)
	require.Equal(t, before, s.HandleCount(), "failed operation must not leak a handle")

	_, _, _, res = s.GroupAddMembers(gh, nil)
	require.Equal(t, mlsffi.StatusInvalidArgument, res.Code)
}

func TestUnknownCipherSuiteIsUnsupportedValue(t *testing.T) {
	s := newSurface()
	before := s.HandleCount()
	_, res := s.ClientNew([]byte("alice"), 0x7777, nil, 0, 0)
	require.Equal(t, mlsffi.StatusUnsupportedValue, res.Code)
	require.Equal(t, before, s.HandleCount())
}

func TestPersistenceWithoutFeatureIsUnsupportedValue(t *testing.T) {
	s := newSurface() // StorageEnabled false, no provider registered

	_, res := s.ClientNew([]byte("alice"), 0, []byte("/tmp/groups.db"), 0, 0)
	require.Equal(t, mlsffi.StatusUnsupportedValue, res.Code)

	alice := newClient(t, s, "alice")
	_, res = s.ClientLoadGroup(alice, []byte("g1"))
	require.Equal(t, mlsffi.StatusUnsupportedValue, res.Code)

	gh, res := s.ClientCreateGroup(alice, nil)
	requireOK(t, res)
	res = s.GroupWriteToStorage(gh)
	require.Equal(t, mlsffi.StatusUnsupportedValue, res.Code)
}

func TestSecondStagedCommitIsProtocolError(t *testing.T) {
	s := newSurface()
	alice := newClient(t, s, "alice")
	bob := newClient(t, s, "bob")
	carol := newClient(t, s, "carol")

	bkp, _, res := s.ClientGenerateKeyPackage(bob)
	requireOK(t, res)
	ckp, _, res := s.ClientGenerateKeyPackage(carol)
	requireOK(t, res)

	gh, res := s.ClientCreateGroup(alice, nil)
	requireOK(t, res)

	_, _, ph, res := s.GroupAddMembers(gh, marshal.JoinRecords([][]byte{bkp}))
	requireOK(t, res)

	_, _, _, res = s.GroupAddMembers(gh, marshal.JoinRecords([][]byte{ckp}))
	require.Equal(t, mlsffi.StatusProtocolError, res.Code)

	// Discarding frees the slot for a new staged commit.
	requireOK(t, s.GroupDiscardPendingCommit(ph))
	_, _, ph2, res := s.GroupAddMembers(gh, marshal.JoinRecords([][]byte{ckp}))
	requireOK(t, res)
	requireOK(t, s.GroupApplyPendingCommit(gh, ph2))
}

func TestApplyReleasesPendingHandle(t *testing.T) {
	s := newSurface()
	alice := newClient(t, s, "alice")
	bob := newClient(t, s, "bob")

	kp, _, res := s.ClientGenerateKeyPackage(bob)
	requireOK(t, res)
	gh, res := s.ClientCreateGroup(alice, nil)
	requireOK(t, res)

	_, _, ph, res := s.GroupAddMembers(gh, marshal.JoinRecords([][]byte{kp}))
	requireOK(t, res)
	requireOK(t, s.GroupApplyPendingCommit(gh, ph))

	res = s.GroupApplyPendingCommit(gh, ph)
	require.Equal(t, mlsffi.StatusInvalidHandle, res.Code)
}

func TestStaleCommitIsProtocolError(t *testing.T) {
	s := newSurface()
	ag, bg := twoMemberGroup(t, s)
	carol := newClient(t, s, "carol")
	dave := newClient(t, s, "dave")

	ckp, _, res := s.ClientGenerateKeyPackage(carol)
	requireOK(t, res)
	dkp, _, res := s.ClientGenerateKeyPackage(dave)
	requireOK(t, res)

	// Alice stages an add while bob's competing commit lands first.
	_, _, aph, res := s.GroupAddMembers(ag, marshal.JoinRecords([][]byte{ckp}))
	requireOK(t, res)

	bcommit, _, bph, res := s.GroupAddMembers(bg, marshal.JoinRecords([][]byte{dkp}))
	requireOK(t, res)
	requireOK(t, s.GroupApplyPendingCommit(bg, bph))

	_, _, _, res = s.GroupProcessIncomingMessage(ag, bcommit)
	requireOK(t, res)

	res = s.GroupApplyPendingCommit(ag, aph)
	require.Equal(t, mlsffi.StatusProtocolError, res.Code)

	ae, res := s.GroupEpoch(ag)
	requireOK(t, res)
	be, res := s.GroupEpoch(bg)
	requireOK(t, res)
	require.Equal(t, be, ae)
}

func TestReleaseClientCascades(t *testing.T) {
	s := newSurface()
	alice := newClient(t, s, "alice")
	bob := newClient(t, s, "bob")

	kp, kph, res := s.ClientGenerateKeyPackage(bob)
	requireOK(t, res)
	gh, res := s.ClientCreateGroup(alice, nil)
	requireOK(t, res)
	_, _, ph, res := s.GroupAddMembers(gh, marshal.JoinRecords([][]byte{kp}))
	requireOK(t, res)

	requireOK(t, s.ReleaseHandle(alice))

	_, res = s.GroupEpoch(gh)
	require.Equal(t, mlsffi.StatusInvalidHandle, res.Code)
	res = s.GroupApplyPendingCommit(gh, ph)
	require.Equal(t, mlsffi.StatusInvalidHandle, res.Code)

	// Bob's tree is untouched.
	_, res = s.KeyPackageBytes(kph)
	requireOK(t, res)

	requireOK(t, s.ReleaseHandle(bob))
	require.Equal(t, 0, s.HandleCount())
}

func TestConcurrentReleaseExactlyOneWins(t *testing.T) {
	s := newSurface()
	for i := 0; i < 100; i++ {
		alice := newClient(t, s, "alice")

		const workers = 8
		var wg sync.WaitGroup
		results := make([]mlsffi.Status, workers)
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func(w int) {
				defer wg.Done()
				results[w] = s.ReleaseHandle(alice).Code
			}(w)
		}
		wg.Wait()

		oks := 0
		for _, code := range results {
			switch code {
			case mlsffi.StatusOK:
				oks++
			case mlsffi.StatusInvalidHandle:
			default:
				t.Fatalf("unexpected status %v", code)
			}
		}
		require.Equal(t, 1, oks)
		require.Equal(t, 0, s.HandleCount())
	}
}

func TestKeyPackageBytesReturnsCopy(t *testing.T) {
	s := newSurface()
	bob := newClient(t, s, "bob")

	kp, kph, res := s.ClientGenerateKeyPackage(bob)
	requireOK(t, res)

	got, res := s.KeyPackageBytes(kph)
	requireOK(t, res)
	require.Equal(t, kp, got)

	got[0] ^= 0xff
	again, res := s.KeyPackageBytes(kph)
	requireOK(t, res)
	require.Equal(t, kp, again)
}

func TestExportSecretArgumentChecks(t *testing.T) {
	s := newSurface()
	ag, bg := twoMemberGroup(t, s)

	sec, res := s.GroupExportSecret(ag, []byte("handshake"), []byte("ctx"), 32)
	requireOK(t, res)
	require.Len(t, sec, 32)

	peer, res := s.GroupExportSecret(bg, []byte("handshake"), []byte("ctx"), 32)
	requireOK(t, res)
	require.Equal(t, sec, peer)

	_, res = s.GroupExportSecret(ag, nil, nil, 32)
	require.Equal(t, mlsffi.StatusInvalidArgument, res.Code)

	_, res = s.GroupExportSecret(ag, []byte("l"), nil, 0)
	require.Equal(t, mlsffi.StatusInvalidArgument, res.Code)

	_, res = s.GroupExportSecret(ag, []byte{0xff, 0xfe}, nil, 32)
	require.Equal(t, mlsffi.StatusInvalidArgument, res.Code, "label must be valid UTF-8")
}

func TestBufferBoundEnforced(t *testing.T) {
	s := newSurface()
	ag, _ := twoMemberGroup(t, s)
	s.SetMaxBufferLen(64)

	_, res := s.GroupEncryptApplicationMessage(ag, bytes.Repeat([]byte{0xaa}, 65))
	require.Equal(t, mlsffi.StatusInvalidArgument, res.Code)

	ct, res := s.GroupEncryptApplicationMessage(ag, bytes.Repeat([]byte{0xaa}, 64))
	requireOK(t, res)
	require.NotEmpty(t, ct)
}

// mapStorage is an in-memory GroupStateStorage for provider registration
// tests.
type mapStorage struct {
	mu     sync.Mutex
	states map[string][]byte
	epochs map[string]map[uint64][]byte
}

func newMapStorage() *mapStorage {
	return &mapStorage{
		states: make(map[string][]byte),
		epochs: make(map[string]map[uint64][]byte),
	}
}

func (m *mapStorage) State(_ context.Context, groupID []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[string(groupID)], nil
}

func (m *mapStorage) EpochData(_ context.Context, groupID []byte, epochID uint64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epochs[string(groupID)][epochID], nil
}

func (m *mapStorage) MaxEpochID(_ context.Context, groupID []byte) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max uint64
	found := false
	for id := range m.epochs[string(groupID)] {
		if !found || id > max {
			max, found = id, true
		}
	}
	return max, found, nil
}

func (m *mapStorage) WriteState(_ context.Context, groupID, snapshot []byte, inserts, updates []engine.EpochRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(groupID)
	m.states[key] = append([]byte(nil), snapshot...)
	if m.epochs[key] == nil {
		m.epochs[key] = make(map[uint64][]byte)
	}
	for _, rec := range append(inserts, updates...) {
		m.epochs[key][rec.ID] = append([]byte(nil), rec.Data...)
	}
	return nil
}

func (m *mapStorage) Close() error { return nil }

func TestRegisteredStorageProviderRoundTrip(t *testing.T) {
	s := newSurface()
	store := newMapStorage()

	sh, res := s.RegisterStorageProvider(store)
	requireOK(t, res)

	alice, res := s.ClientNew([]byte("alice"), 0, nil, sh, 0)
	requireOK(t, res)

	gh, res := s.ClientCreateGroup(alice, []byte("persisted-group"))
	requireOK(t, res)
	requireOK(t, s.GroupWriteToStorage(gh))
	requireOK(t, s.ReleaseHandle(gh))

	gh2, res := s.ClientLoadGroup(alice, []byte("persisted-group"))
	requireOK(t, res)
	id, res := s.GroupID(gh2)
	requireOK(t, res)
	require.Equal(t, []byte("persisted-group"), id)

	_, res = s.ClientLoadGroup(alice, []byte("no-such-group"))
	require.Equal(t, mlsffi.StatusStorageError, res.Code)
}

func TestReleasedStorageRegistrationStopsCalls(t *testing.T) {
	s := newSurface()
	store := newMapStorage()

	sh, res := s.RegisterStorageProvider(store)
	requireOK(t, res)
	alice, res := s.ClientNew([]byte("alice"), 0, nil, sh, 0)
	requireOK(t, res)
	gh, res := s.ClientCreateGroup(alice, []byte("g"))
	requireOK(t, res)

	requireOK(t, s.ReleaseHandle(sh))

	res = s.GroupWriteToStorage(gh)
	require.Equal(t, mlsffi.StatusStorageError, res.Code)
}

// denyAllValidator rejects every identity.
type denyAllValidator struct{}

func (denyAllValidator) ValidateMember(context.Context, []byte, time.Time) error {
	return engine.ErrIdentity
}

func (denyAllValidator) ValidateExternalSender(context.Context, []byte, time.Time) error {
	return engine.ErrIdentity
}

func TestRegisteredIdentityProviderRejectsJoin(t *testing.T) {
	s := newSurface()
	vh, res := s.RegisterIdentityProvider(denyAllValidator{})
	requireOK(t, res)

	alice := newClient(t, s, "alice")
	bob, res := s.ClientNew([]byte("bob"), 0, nil, 0, vh)
	requireOK(t, res)

	kp, _, res := s.ClientGenerateKeyPackage(bob)
	requireOK(t, res)
	gh, res := s.ClientCreateGroup(alice, nil)
	requireOK(t, res)
	_, welcome, ph, res := s.GroupAddMembers(gh, marshal.JoinRecords([][]byte{kp}))
	requireOK(t, res)
	requireOK(t, s.GroupApplyPendingCommit(gh, ph))

	_, res = s.ClientJoinGroup(bob, welcome, nil)
	require.Equal(t, mlsffi.StatusIdentityError, res.Code)
}
