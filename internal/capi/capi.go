//go:build cgo && !windows

package capi

/*
#include <stdlib.h>
#include <string.h>
#include "mlsffi.h"
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/groupwire/mls-ffi-go/internal/bridge"
	"github.com/groupwire/mls-ffi-go/internal/registry"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi"
)

var (
	surfaceOnce sync.Once
	surfaceInst *bridge.Surface
	surfaceErr  error
)

func surface() (*bridge.Surface, error) {
	surfaceOnce.Do(func() {
		surfaceInst, surfaceErr = bridge.New()
	})
	return surfaceInst, surfaceErr
}

// view borrows the C buffer as a Go slice without copying. Valid only for
// the duration of the call; the bridge copies everything it keeps.
func view(buf C.mls_buffer_t) []byte {
	if buf.data == nil || buf.len <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(buf.data)), int(buf.len))
}

// setOut copies b into a C-allocated buffer owned by the caller, who frees
// it with mls_buffer_free.
func setOut(out *C.mls_buffer_t, b []byte) {
	if out == nil {
		return
	}
	out.data = nil
	out.len = 0
	if len(b) == 0 {
		return
	}
	p := C.malloc(C.size_t(len(b)))
	if p == nil {
		return
	}
	C.memcpy(p, unsafe.Pointer(&b[0]), C.size_t(len(b)))
	out.data = (*C.uint8_t)(p)
	out.len = C.int32_t(len(b))
}

func finish(res mlsffi.Result, outDetail *C.mls_buffer_t) C.int32_t {
	if res.Code != mlsffi.StatusOK {
		setOut(outDetail, []byte(res.Detail))
	}
	return C.int32_t(res.Code)
}

func finishErr(err error, outDetail *C.mls_buffer_t) C.int32_t {
	code := bridge.Classify(err)
	setOut(outDetail, []byte(err.Error()))
	return C.int32_t(code)
}

// nullOut reports a NULL scalar out-pointer. Buffer out-pointers may be NULL
// to discard a payload; scalar results have nowhere else to go, so the call
// is rejected instead of faulting on the write.
func nullOut(outDetail *C.mls_buffer_t) C.int32_t {
	setOut(outDetail, []byte("null out-pointer"))
	return C.int32_t(mlsffi.StatusInvalidArgument)
}

//export mls_buffer_free
func mls_buffer_free(buf *C.mls_buffer_t) {
	if buf == nil || buf.data == nil {
		return
	}
	C.memset(unsafe.Pointer(buf.data), 0, C.size_t(buf.len))
	C.free(unsafe.Pointer(buf.data))
	buf.data = nil
	buf.len = 0
}

//export mls_version
func mls_version(out *C.mls_buffer_t) C.int32_t {
	setOut(out, []byte(mlsffi.Version))
	return C.int32_t(mlsffi.StatusOK)
}

//export mls_handle_release
func mls_handle_release(h C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	return finish(s.ReleaseHandle(registry.Handle(h)), outDetail)
}

//export mls_handle_count
func mls_handle_count(out *C.int64_t) C.int32_t {
	if out == nil {
		return nullOut(nil)
	}
	s, err := surface()
	if err != nil {
		return finishErr(err, nil)
	}
	*out = C.int64_t(s.HandleCount())
	return C.int32_t(mlsffi.StatusOK)
}

//export mls_client_new
func mls_client_new(name C.mls_buffer_t, suite C.uint16_t, storagePath C.mls_buffer_t,
	storageProvider, identityProvider C.uint64_t,
	outHandle *C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	if outHandle == nil {
		return nullOut(outDetail)
	}
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	h, res := s.ClientNew(view(name), uint16(suite), view(storagePath),
		registry.Handle(storageProvider), registry.Handle(identityProvider))
	if res.Code == mlsffi.StatusOK {
		*outHandle = C.uint64_t(h)
	}
	return finish(res, outDetail)
}

//export mls_client_generate_key_package
func mls_client_generate_key_package(client C.uint64_t,
	outKeyPackage *C.mls_buffer_t, outHandle *C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	if outHandle == nil {
		return nullOut(outDetail)
	}
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	kp, kph, res := s.ClientGenerateKeyPackage(registry.Handle(client))
	if res.Code == mlsffi.StatusOK {
		setOut(outKeyPackage, kp)
		*outHandle = C.uint64_t(kph)
	}
	return finish(res, outDetail)
}

//export mls_key_package_bytes
func mls_key_package_bytes(kp C.uint64_t, out *C.mls_buffer_t, outDetail *C.mls_buffer_t) C.int32_t {
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	raw, res := s.KeyPackageBytes(registry.Handle(kp))
	if res.Code == mlsffi.StatusOK {
		setOut(out, raw)
	}
	return finish(res, outDetail)
}

//export mls_client_signing_identity
func mls_client_signing_identity(client C.uint64_t, out *C.mls_buffer_t, outDetail *C.mls_buffer_t) C.int32_t {
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	id, res := s.ClientSigningIdentity(registry.Handle(client))
	if res.Code == mlsffi.StatusOK {
		setOut(out, id)
	}
	return finish(res, outDetail)
}

//export mls_client_create_group
func mls_client_create_group(client C.uint64_t, groupID C.mls_buffer_t,
	outHandle *C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	if outHandle == nil {
		return nullOut(outDetail)
	}
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	gh, res := s.ClientCreateGroup(registry.Handle(client), view(groupID))
	if res.Code == mlsffi.StatusOK {
		*outHandle = C.uint64_t(gh)
	}
	return finish(res, outDetail)
}

//export mls_client_join_group
func mls_client_join_group(client C.uint64_t, welcome, ratchetTree C.mls_buffer_t,
	outHandle *C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	if outHandle == nil {
		return nullOut(outDetail)
	}
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	gh, res := s.ClientJoinGroup(registry.Handle(client), view(welcome), view(ratchetTree))
	if res.Code == mlsffi.StatusOK {
		*outHandle = C.uint64_t(gh)
	}
	return finish(res, outDetail)
}

//export mls_client_load_group
func mls_client_load_group(client C.uint64_t, groupID C.mls_buffer_t,
	outHandle *C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	if outHandle == nil {
		return nullOut(outDetail)
	}
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	gh, res := s.ClientLoadGroup(registry.Handle(client), view(groupID))
	if res.Code == mlsffi.StatusOK {
		*outHandle = C.uint64_t(gh)
	}
	return finish(res, outDetail)
}

//export mls_group_id
func mls_group_id(group C.uint64_t, out *C.mls_buffer_t, outDetail *C.mls_buffer_t) C.int32_t {
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	id, res := s.GroupID(registry.Handle(group))
	if res.Code == mlsffi.StatusOK {
		setOut(out, id)
	}
	return finish(res, outDetail)
}

//export mls_group_epoch
func mls_group_epoch(group C.uint64_t, outEpoch *C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	if outEpoch == nil {
		return nullOut(outDetail)
	}
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	epoch, res := s.GroupEpoch(registry.Handle(group))
	if res.Code == mlsffi.StatusOK {
		*outEpoch = C.uint64_t(epoch)
	}
	return finish(res, outDetail)
}

//export mls_group_add_members
func mls_group_add_members(group C.uint64_t, keyPackages C.mls_buffer_t,
	outCommit, outWelcome *C.mls_buffer_t, outPending *C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	if outPending == nil {
		return nullOut(outDetail)
	}
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	commit, welcome, ph, res := s.GroupAddMembers(registry.Handle(group), view(keyPackages))
	if res.Code == mlsffi.StatusOK {
		setOut(outCommit, commit)
		setOut(outWelcome, welcome)
		*outPending = C.uint64_t(ph)
	}
	return finish(res, outDetail)
}

//export mls_group_commit
func mls_group_commit(group C.uint64_t,
	outCommit, outWelcome *C.mls_buffer_t, outPending *C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	if outPending == nil {
		return nullOut(outDetail)
	}
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	commit, welcome, ph, res := s.GroupCommit(registry.Handle(group))
	if res.Code == mlsffi.StatusOK {
		setOut(outCommit, commit)
		setOut(outWelcome, welcome)
		*outPending = C.uint64_t(ph)
	}
	return finish(res, outDetail)
}

//export mls_group_remove_member
func mls_group_remove_member(group C.uint64_t, memberIndex C.uint32_t,
	outCommit, outWelcome *C.mls_buffer_t, outPending *C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	if outPending == nil {
		return nullOut(outDetail)
	}
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	commit, welcome, ph, res := s.GroupRemoveMember(registry.Handle(group), uint32(memberIndex))
	if res.Code == mlsffi.StatusOK {
		setOut(outCommit, commit)
		setOut(outWelcome, welcome)
		*outPending = C.uint64_t(ph)
	}
	return finish(res, outDetail)
}

//export mls_group_propose_add
func mls_group_propose_add(group C.uint64_t, keyPackage C.mls_buffer_t,
	outProposal *C.mls_buffer_t, outDetail *C.mls_buffer_t) C.int32_t {
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	p, res := s.GroupProposeAdd(registry.Handle(group), view(keyPackage))
	if res.Code == mlsffi.StatusOK {
		setOut(outProposal, p)
	}
	return finish(res, outDetail)
}

//export mls_group_propose_remove
func mls_group_propose_remove(group C.uint64_t, memberIndex C.uint32_t,
	outProposal *C.mls_buffer_t, outDetail *C.mls_buffer_t) C.int32_t {
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	p, res := s.GroupProposeRemove(registry.Handle(group), uint32(memberIndex))
	if res.Code == mlsffi.StatusOK {
		setOut(outProposal, p)
	}
	return finish(res, outDetail)
}

//export mls_group_apply_pending_commit
func mls_group_apply_pending_commit(group, pending C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	return finish(s.GroupApplyPendingCommit(registry.Handle(group), registry.Handle(pending)), outDetail)
}

//export mls_group_discard_pending_commit
func mls_group_discard_pending_commit(pending C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	return finish(s.GroupDiscardPendingCommit(registry.Handle(pending)), outDetail)
}

//export mls_group_process_incoming_message
func mls_group_process_incoming_message(group C.uint64_t, message C.mls_buffer_t,
	outKind *C.uint8_t, outSender *C.uint32_t, outData *C.mls_buffer_t, outDetail *C.mls_buffer_t) C.int32_t {
	if outKind == nil || outSender == nil {
		return nullOut(outDetail)
	}
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	kind, sender, data, res := s.GroupProcessIncomingMessage(registry.Handle(group), view(message))
	if res.Code == mlsffi.StatusOK {
		*outKind = C.uint8_t(kind)
		*outSender = C.uint32_t(sender)
		setOut(outData, data)
	}
	return finish(res, outDetail)
}

//export mls_group_encrypt_application_message
func mls_group_encrypt_application_message(group C.uint64_t, plaintext C.mls_buffer_t,
	outCiphertext *C.mls_buffer_t, outDetail *C.mls_buffer_t) C.int32_t {
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	ct, res := s.GroupEncryptApplicationMessage(registry.Handle(group), view(plaintext))
	if res.Code == mlsffi.StatusOK {
		setOut(outCiphertext, ct)
	}
	return finish(res, outDetail)
}

//export mls_group_export_secret
func mls_group_export_secret(group C.uint64_t, label, exportContext C.mls_buffer_t, length C.uint32_t,
	outSecret *C.mls_buffer_t, outDetail *C.mls_buffer_t) C.int32_t {
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	secret, res := s.GroupExportSecret(registry.Handle(group), view(label), view(exportContext), uint32(length))
	if res.Code == mlsffi.StatusOK {
		setOut(outSecret, secret)
	}
	return finish(res, outDetail)
}

//export mls_group_write_to_storage
func mls_group_write_to_storage(group C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	return finish(s.GroupWriteToStorage(registry.Handle(group)), outDetail)
}
