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

// GroupID returns the group identifier behind a group handle.
func (s *Surface) GroupID(gh registry.Handle) (id []byte, res mlsffi.Result) {
	defer s.guard("group_id", &res)()

	gs, err := s.group(gh)
	if err != nil {
		return nil, s.fail("group_id", err)
	}
	return gs.group.GroupID(), ok()
}

// GroupEpoch returns the current epoch of the group.
func (s *Surface) GroupEpoch(gh registry.Handle) (epoch uint64, res mlsffi.Result) {
	defer s.guard("group_epoch", &res)()

	gs, err := s.group(gh)
	if err != nil {
		return 0, s.fail("group_epoch", err)
	}
	return gs.group.Epoch(), ok()
}

// GroupAddMembers stages a commit adding the given key packages, passed as a
// length-prefixed record sequence. Each key package is structurally validated
// before the engine sees any of them.
func (s *Surface) GroupAddMembers(gh registry.Handle, keyPackages []byte) (commit, welcome []byte, ph registry.Handle, res mlsffi.Result) {
	defer s.guard("group_add_members", &res)()

	gs, err := s.group(gh)
	if err != nil {
		return nil, nil, 0, s.fail("group_add_members", err)
	}
	kps, err := marshal.SplitRecords(keyPackages, s.maxBuf)
	if err != nil {
		return nil, nil, 0, s.fail("group_add_members", err)
	}
	if len(kps) == 0 {
		return nil, nil, 0, s.failf("group_add_members", mlsffi.StatusInvalidArgument, "no key packages")
	}
	for i, kp := range kps {
		if err := marshal.ValidateKeyPackage(kp, s.maxBuf); err != nil {
			return nil, nil, 0, s.fail("group_add_members", fmt.Errorf("key package %d: %w", i, err))
		}
	}
	pc, err := gs.group.AddMembers(context.Background(), kps)
	if err != nil {
		return nil, nil, 0, s.fail("group_add_members", err)
	}
	return s.registerPending(gh, pc, "group_add_members")
}

// GroupCommit stages a commit over the group's buffered proposals.
func (s *Surface) GroupCommit(gh registry.Handle) (commit, welcome []byte, ph registry.Handle, res mlsffi.Result) {
	defer s.guard("group_commit", &res)()

	gs, err := s.group(gh)
	if err != nil {
		return nil, nil, 0, s.fail("group_commit", err)
	}
	pc, err := gs.group.Commit(context.Background())
	if err != nil {
		return nil, nil, 0, s.fail("group_commit", err)
	}
	return s.registerPending(gh, pc, "group_commit")
}

// GroupRemoveMember stages a commit removing the member at the given index.
func (s *Surface) GroupRemoveMember(gh registry.Handle, memberIndex uint32) (commit, welcome []byte, ph registry.Handle, res mlsffi.Result) {
	defer s.guard("group_remove_member", &res)()

	gs, err := s.group(gh)
	if err != nil {
		return nil, nil, 0, s.fail("group_remove_member", err)
	}
	pc, err := gs.group.RemoveMember(context.Background(), memberIndex)
	if err != nil {
		return nil, nil, 0, s.fail("group_remove_member", err)
	}
	return s.registerPending(gh, pc, "group_remove_member")
}

// GroupProposeAdd returns a proposal message adding the holder of the key
// package. The proposal is also buffered locally for the next commit.
func (s *Surface) GroupProposeAdd(gh registry.Handle, keyPackage []byte) (proposal []byte, res mlsffi.Result) {
	defer s.guard("group_propose_add", &res)()

	gs, err := s.group(gh)
	if err != nil {
		return nil, s.fail("group_propose_add", err)
	}
	kp, err := marshal.CopyBounded(keyPackage, s.maxBuf)
	if err != nil {
		return nil, s.fail("group_propose_add", err)
	}
	if err := marshal.ValidateKeyPackage(kp, s.maxBuf); err != nil {
		return nil, s.fail("group_propose_add", err)
	}
	p, err := gs.group.ProposeAdd(context.Background(), kp)
	if err != nil {
		return nil, s.fail("group_propose_add", err)
	}
	return p, ok()
}

// GroupProposeRemove returns a proposal message removing the member at the
// given index, buffered locally for the next commit.
func (s *Surface) GroupProposeRemove(gh registry.Handle, memberIndex uint32) (proposal []byte, res mlsffi.Result) {
	defer s.guard("group_propose_remove", &res)()

	gs, err := s.group(gh)
	if err != nil {
		return nil, s.fail("group_propose_remove", err)
	}
	p, err := gs.group.ProposeRemove(context.Background(), memberIndex)
	if err != nil {
		return nil, s.fail("group_propose_remove", err)
	}
	return p, ok()
}

// GroupApplyPendingCommit applies the staged commit behind the pending handle
// and releases the handle. The handle stays valid if the apply fails.
func (s *Surface) GroupApplyPendingCommit(gh, ph registry.Handle) (res mlsffi.Result) {
	defer s.guard("group_apply_pending_commit", &res)()

	gs, err := s.group(gh)
	if err != nil {
		return s.fail("group_apply_pending_commit", err)
	}
	pc, err := s.pending(ph)
	if err != nil {
		return s.fail("group_apply_pending_commit", err)
	}
	if err := gs.group.ApplyPendingCommit(context.Background(), pc); err != nil {
		return s.fail("group_apply_pending_commit", err)
	}
	// The release finalizer calls Discard, a no-op once applied.
	if err := s.reg.Release(ph); err != nil {
		return s.fail("group_apply_pending_commit", fmt.Errorf("release applied commit: %w", err))
	}
	return ok()
}

// GroupDiscardPendingCommit abandons the staged commit and releases its
// handle, allowing a new commit to be staged.
func (s *Surface) GroupDiscardPendingCommit(ph registry.Handle) (res mlsffi.Result) {
	defer s.guard("group_discard_pending_commit", &res)()

	if _, err := s.pending(ph); err != nil {
		return s.fail("group_discard_pending_commit", err)
	}
	// Release runs the finalizer, which discards the staged commit.
	if err := s.reg.Release(ph); err != nil {
		return s.fail("group_discard_pending_commit", err)
	}
	return ok()
}

// GroupProcessIncomingMessage feeds a protocol message into the group state
// machine and reports what it was.
func (s *Surface) GroupProcessIncomingMessage(gh registry.Handle, message []byte) (kind uint8, sender uint32, data []byte, res mlsffi.Result) {
	defer s.guard("group_process_incoming_message", &res)()

	gs, err := s.group(gh)
	if err != nil {
		return 0, 0, nil, s.fail("group_process_incoming_message", err)
	}
	msg, err := marshal.CopyBounded(message, s.maxBuf)
	if err != nil {
		return 0, 0, nil, s.fail("group_process_incoming_message", err)
	}
	if len(msg) == 0 {
		return 0, 0, nil, s.failf("group_process_incoming_message", mlsffi.StatusInvalidArgument, "empty message")
	}
	rm, err := gs.group.ProcessIncomingMessage(context.Background(), msg)
	if err != nil {
		return 0, 0, nil, s.fail("group_process_incoming_message", err)
	}
	wireKind, err := marshal.ReceivedKindToWire(rm.Kind)
	if err != nil {
		return 0, 0, nil, s.fail("group_process_incoming_message",
			fmt.Errorf("%w: engine returned message kind %d", errInternal, rm.Kind))
	}
	return wireKind, rm.SenderIndex, rm.Data, ok()
}

// GroupEncryptApplicationMessage protects plaintext under the current epoch
// keys. Zero-length plaintext is valid.
func (s *Surface) GroupEncryptApplicationMessage(gh registry.Handle, plaintext []byte) (ciphertext []byte, res mlsffi.Result) {
	defer s.guard("group_encrypt_application_message", &res)()

	gs, err := s.group(gh)
	if err != nil {
		return nil, s.fail("group_encrypt_application_message", err)
	}
	pt, err := marshal.CopyBounded(plaintext, s.maxBuf)
	if err != nil {
		return nil, s.fail("group_encrypt_application_message", err)
	}
	ct, err := gs.group.EncryptApplicationMessage(context.Background(), pt)
	if err != nil {
		return nil, s.fail("group_encrypt_application_message", err)
	}
	return ct, ok()
}

// GroupExportSecret derives an exported secret for the current epoch.
func (s *Surface) GroupExportSecret(gh registry.Handle, label, exportContext []byte, length uint32) (secret []byte, res mlsffi.Result) {
	defer s.guard("group_export_secret", &res)()

	gs, err := s.group(gh)
	if err != nil {
		return nil, s.fail("group_export_secret", err)
	}
	labelStr, err := marshal.String(label, s.maxBuf)
	if err != nil {
		return nil, s.fail("group_export_secret", err)
	}
	if labelStr == "" {
		return nil, s.failf("group_export_secret", mlsffi.StatusInvalidArgument, "empty export label")
	}
	ec, err := marshal.CopyBounded(exportContext, s.maxBuf)
	if err != nil {
		return nil, s.fail("group_export_secret", err)
	}
	if length == 0 || int(length) > s.maxBuf {
		return nil, s.failf("group_export_secret", mlsffi.StatusInvalidArgument, "export length %d out of range", length)
	}
	out, err := gs.group.ExportSecret(context.Background(), labelStr, ec, length)
	if err != nil {
		return nil, s.fail("group_export_secret", err)
	}
	return out, ok()
}

// GroupWriteToStorage persists the group's current state. Fails with
// StatusUnsupportedValue when the client has no storage wired.
func (s *Surface) GroupWriteToStorage(gh registry.Handle) (res mlsffi.Result) {
	defer s.guard("group_write_to_storage", &res)()

	gs, err := s.group(gh)
	if err != nil {
		return s.fail("group_write_to_storage", err)
	}
	if !gs.hasStorage {
		return s.fail("group_write_to_storage", fmt.Errorf("%w: persistence", backend.ErrFeatureDisabled))
	}
	if err := gs.group.WriteToStorage(context.Background()); err != nil {
		return s.fail("group_write_to_storage", err)
	}
	return ok()
}

func (s *Surface) registerPending(gh registry.Handle, pc engine.PendingCommit, op string) ([]byte, []byte, registry.Handle, mlsffi.Result) {
	ph, err := s.reg.Register(registry.KindPendingCommit, pc, gh, func() { pc.Discard() })
	if err != nil {
		pc.Discard()
		return nil, nil, 0, s.fail(op, err)
	}
	return pc.CommitMessage(), pc.WelcomeMessage(), ph, ok()
}
