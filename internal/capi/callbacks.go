//go:build cgo && !windows

package capi

/*
#include <stdlib.h>
#include "mlsffi.h"

// cgo cannot call C function pointers directly; these shims do.
static int32_t call_storage_state(mls_storage_callbacks_t cbs, void *ctx, mls_buffer_t gid, mls_buffer_t *out) {
	return cbs.state(ctx, gid, out);
}
static int32_t call_storage_epoch(mls_storage_callbacks_t cbs, void *ctx, mls_buffer_t gid, uint64_t id, mls_buffer_t *out) {
	return cbs.epoch_data(ctx, gid, id, out);
}
static int32_t call_storage_max_epoch(mls_storage_callbacks_t cbs, void *ctx, mls_buffer_t gid, uint64_t *out) {
	return cbs.max_epoch_id(ctx, gid, out);
}
static int32_t call_storage_write(mls_storage_callbacks_t cbs, void *ctx, mls_buffer_t gid, mls_buffer_t snap,
	const uint64_t *ins_ids, const mls_buffer_t *ins_data, int32_t ins_n,
	const uint64_t *upd_ids, const mls_buffer_t *upd_data, int32_t upd_n) {
	return cbs.write_state(ctx, gid, snap, ins_ids, ins_data, ins_n, upd_ids, upd_data, upd_n);
}
static int32_t call_identity(mls_identity_validate_fn f, void *ctx, mls_buffer_t id, int64_t at) {
	return f(ctx, id, at);
}
*/
import "C"

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"github.com/groupwire/mls-ffi-go/pkg/mlsffi"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

const (
	cbOK       = 0
	cbNotFound = 1
)

// borrow wraps a Go slice as a C buffer for the duration of one callback.
// The callee must not retain the pointer.
func borrow(b []byte) C.mls_buffer_t {
	var buf C.mls_buffer_t
	if len(b) > 0 {
		buf.data = (*C.uint8_t)(unsafe.Pointer(&b[0]))
		buf.len = C.int32_t(len(b))
	}
	return buf
}

// take copies a callee-allocated buffer into Go memory and frees the C side.
func take(buf *C.mls_buffer_t) []byte {
	if buf == nil || buf.data == nil || buf.len <= 0 {
		return nil
	}
	out := C.GoBytes(unsafe.Pointer(buf.data), C.int(buf.len))
	C.free(unsafe.Pointer(buf.data))
	buf.data = nil
	buf.len = 0
	return out
}

// cStorage adapts a C callback table to engine.GroupStateStorage.
type cStorage struct {
	cbs C.mls_storage_callbacks_t
	ctx unsafe.Pointer
}

func (s *cStorage) State(_ context.Context, groupID []byte) ([]byte, error) {
	var out C.mls_buffer_t
	rc := C.call_storage_state(s.cbs, s.ctx, borrow(groupID), &out)
	switch rc {
	case cbOK:
		return take(&out), nil
	case cbNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: state callback returned %d", engine.ErrStorage, int32(rc))
	}
}

func (s *cStorage) EpochData(_ context.Context, groupID []byte, epochID uint64) ([]byte, error) {
	var out C.mls_buffer_t
	rc := C.call_storage_epoch(s.cbs, s.ctx, borrow(groupID), C.uint64_t(epochID), &out)
	switch rc {
	case cbOK:
		return take(&out), nil
	case cbNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: epoch callback returned %d", engine.ErrStorage, int32(rc))
	}
}

func (s *cStorage) MaxEpochID(_ context.Context, groupID []byte) (uint64, bool, error) {
	var out C.uint64_t
	rc := C.call_storage_max_epoch(s.cbs, s.ctx, borrow(groupID), &out)
	switch rc {
	case cbOK:
		return uint64(out), true, nil
	case cbNotFound:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("%w: max epoch callback returned %d", engine.ErrStorage, int32(rc))
	}
}

func (s *cStorage) WriteState(_ context.Context, groupID, snapshot []byte, inserts, updates []engine.EpochRecord) error {
	insIDs, insData, freeIns := packEpochRecords(inserts)
	defer freeIns()
	updIDs, updData, freeUpd := packEpochRecords(updates)
	defer freeUpd()

	rc := C.call_storage_write(s.cbs, s.ctx, borrow(groupID), borrow(snapshot),
		insIDs, insData, C.int32_t(len(inserts)),
		updIDs, updData, C.int32_t(len(updates)))
	if rc != cbOK {
		return fmt.Errorf("%w: write callback returned %d", engine.ErrStorage, int32(rc))
	}
	return nil
}

func (s *cStorage) Close() error { return nil }

// packEpochRecords lays records out as parallel C arrays. The data buffers
// borrow Go memory, so the arrays must not outlive the call.
func packEpochRecords(recs []engine.EpochRecord) (*C.uint64_t, *C.mls_buffer_t, func()) {
	if len(recs) == 0 {
		return nil, nil, func() {}
	}
	ids := C.malloc(C.size_t(len(recs)) * C.size_t(unsafe.Sizeof(C.uint64_t(0))))
	bufs := C.malloc(C.size_t(len(recs)) * C.size_t(unsafe.Sizeof(C.mls_buffer_t{})))
	idSlice := unsafe.Slice((*C.uint64_t)(ids), len(recs))
	bufSlice := unsafe.Slice((*C.mls_buffer_t)(bufs), len(recs))
	for i, rec := range recs {
		idSlice[i] = C.uint64_t(rec.ID)
		bufSlice[i] = borrow(rec.Data)
	}
	return (*C.uint64_t)(ids), (*C.mls_buffer_t)(bufs), func() {
		C.free(ids)
		C.free(bufs)
	}
}

// cIdentity adapts a C callback table to engine.IdentityValidator.
type cIdentity struct {
	cbs C.mls_identity_callbacks_t
	ctx unsafe.Pointer
}

func (v *cIdentity) ValidateMember(_ context.Context, signingIdentity []byte, at time.Time) error {
	rc := C.call_identity(v.cbs.validate_member, v.ctx, borrow(signingIdentity), C.int64_t(at.Unix()))
	if rc != cbOK {
		return fmt.Errorf("%w: member validation returned %d", engine.ErrIdentity, int32(rc))
	}
	return nil
}

func (v *cIdentity) ValidateExternalSender(_ context.Context, signingIdentity []byte, at time.Time) error {
	rc := C.call_identity(v.cbs.validate_external_sender, v.ctx, borrow(signingIdentity), C.int64_t(at.Unix()))
	if rc != cbOK {
		return fmt.Errorf("%w: external sender validation returned %d", engine.ErrIdentity, int32(rc))
	}
	return nil
}

//export mls_storage_provider_register
func mls_storage_provider_register(cbs C.mls_storage_callbacks_t, ctx unsafe.Pointer,
	outHandle *C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	if outHandle == nil {
		return nullOut(outDetail)
	}
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	if cbs.state == nil || cbs.epoch_data == nil || cbs.max_epoch_id == nil || cbs.write_state == nil {
		setOut(outDetail, []byte("incomplete storage callback table"))
		return C.int32_t(mlsffi.StatusInvalidArgument)
	}
	h, res := s.RegisterStorageProvider(&cStorage{cbs: cbs, ctx: ctx})
	if res.Code == mlsffi.StatusOK {
		*outHandle = C.uint64_t(h)
	}
	return finish(res, outDetail)
}

//export mls_identity_provider_register
func mls_identity_provider_register(cbs C.mls_identity_callbacks_t, ctx unsafe.Pointer,
	outHandle *C.uint64_t, outDetail *C.mls_buffer_t) C.int32_t {
	if outHandle == nil {
		return nullOut(outDetail)
	}
	s, err := surface()
	if err != nil {
		return finishErr(err, outDetail)
	}
	if cbs.validate_member == nil || cbs.validate_external_sender == nil {
		setOut(outDetail, []byte("incomplete identity callback table"))
		return C.int32_t(mlsffi.StatusInvalidArgument)
	}
	h, res := s.RegisterIdentityProvider(&cIdentity{cbs: cbs, ctx: ctx})
	if res.Code == mlsffi.StatusOK {
		*outHandle = C.uint64_t(h)
	}
	return finish(res, outDetail)
}

var _ engine.GroupStateStorage = (*cStorage)(nil)
var _ engine.IdentityValidator = (*cIdentity)(nil)
