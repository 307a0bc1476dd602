// Package registry manages the opaque handles the bridge hands across the
// boundary. Handles are generation-checked arena indices, so a stale or
// forged handle is always detected and rejected instead of dereferenced.
package registry

import (
	"errors"
	"sync"
)

// Kind identifies what a handle refers to.
type Kind uint8

const (
	KindNone Kind = iota
	KindClient
	KindGroup
	KindPendingCommit
	KindKeyPackage
	KindStorageProvider
	KindIdentityProvider
)

// String returns the kind name used in diagnostics.
func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindGroup:
		return "group"
	case KindPendingCommit:
		return "pending_commit"
	case KindKeyPackage:
		return "key_package"
	case KindStorageProvider:
		return "storage_provider"
	case KindIdentityProvider:
		return "identity_provider"
	default:
		return "none"
	}
}

// Handle is the opaque identifier handed across the boundary. Zero is never
// valid. Layout: kind in the top 8 bits, a 24-bit slot generation, and a
// 32-bit slot index.
type Handle uint64

const (
	genBits = 24
	genMask = 1<<genBits - 1
)

func makeHandle(kind Kind, gen, index uint32) Handle {
	return Handle(uint64(kind)<<56 | uint64(gen&genMask)<<32 | uint64(index))
}

// Kind returns the kind encoded in the handle. The registry still verifies it
// against the slot on every resolve; the encoded value alone proves nothing.
func (h Handle) Kind() Kind { return Kind(h >> 56) }

func (h Handle) generation() uint32 { return uint32(h>>32) & genMask }
func (h Handle) index() uint32      { return uint32(h) }

// ErrInvalidHandle covers every lookup failure: unknown, already released,
// forged, or wrong-kind handles. Deliberately a single error, since the
// boundary reports them all as the same status code.
var ErrInvalidHandle = errors.New("registry: invalid handle")

// ErrNilObject reports an attempt to register a nil object or the none kind.
// This is a bug in the bridge, not caller misuse.
var ErrNilObject = errors.New("registry: nil object or kind")

// Finalizer runs exactly once when its slot is released, after the slot has
// already been invalidated. It must not re-enter the registry for the handle
// being released.
type Finalizer func()

type slot struct {
	live     bool
	gen      uint32
	kind     Kind
	obj      any
	fin      Finalizer
	parent   Handle
	children map[Handle]struct{}
}

// Registry is the arena of live handles. All bookkeeping is serialized under
// one mutex; finalizers run outside it.
type Registry struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32
	live  int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register stores obj under a fresh handle of the given kind. A non-zero
// parent ties the new handle's lifetime to the parent's: releasing the parent
// releases the child first. fin may be nil.
func (r *Registry) Register(kind Kind, obj any, parent Handle, fin Finalizer) (Handle, error) {
	if kind == KindNone || obj == nil {
		return 0, ErrNilObject
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if parent != 0 {
		if _, err := r.lookupLocked(parent, parent.Kind()); err != nil {
			return 0, err
		}
	}

	var index uint32
	if n := len(r.free); n > 0 {
		index = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{})
		index = uint32(len(r.slots) - 1)
	}

	s := &r.slots[index]
	s.live = true
	s.kind = kind
	s.obj = obj
	s.fin = fin
	s.parent = parent
	s.children = nil

	h := makeHandle(kind, s.gen, index)
	if parent != 0 {
		// Re-derive the parent slot pointer: the append above may have
		// moved the arena, leaving any earlier pointer into a dead copy.
		ps := &r.slots[parent.index()]
		if ps.children == nil {
			ps.children = make(map[Handle]struct{})
		}
		ps.children[h] = struct{}{}
	}
	r.live++
	return h, nil
}

// Resolve returns the live object behind h. expected must match the kind the
// handle was registered with; KindNone accepts any kind.
func (r *Registry) Resolve(h Handle, expected Kind) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookupLocked(h, expected)
	if err != nil {
		return nil, err
	}
	return s.obj, nil
}

// Release invalidates h and every handle registered under it, then runs their
// finalizers (children before parents). Releasing an unknown or already
// released handle fails with ErrInvalidHandle so callers can detect
// double-free bugs.
func (r *Registry) Release(h Handle) error {
	r.mu.Lock()
	s, err := r.lookupLocked(h, h.Kind())
	if err != nil {
		r.mu.Unlock()
		return err
	}

	if s.parent != 0 {
		if ps, perr := r.lookupLocked(s.parent, s.parent.Kind()); perr == nil {
			delete(ps.children, h)
		}
	}

	var fins []Finalizer
	r.invalidateLocked(h, &fins)
	r.mu.Unlock()

	for _, fin := range fins {
		fin()
	}
	return nil
}

// Count returns the number of live handles. Used by leak tests.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

func (r *Registry) lookupLocked(h Handle, expected Kind) (*slot, error) {
	index := h.index()
	if h == 0 || index >= uint32(len(r.slots)) {
		return nil, ErrInvalidHandle
	}
	s := &r.slots[index]
	if !s.live || s.gen != h.generation() || s.kind != h.Kind() {
		return nil, ErrInvalidHandle
	}
	if expected != KindNone && s.kind != expected {
		return nil, ErrInvalidHandle
	}
	return s, nil
}

// invalidateLocked tears down the subtree rooted at h, collecting finalizers
// in child-before-parent order. h must have been validated by the caller.
func (r *Registry) invalidateLocked(h Handle, fins *[]Finalizer) {
	s := &r.slots[h.index()]
	for child := range s.children {
		if _, err := r.lookupLocked(child, child.Kind()); err == nil {
			r.invalidateLocked(child, fins)
		}
	}
	if s.fin != nil {
		*fins = append(*fins, s.fin)
	}
	s.live = false
	s.gen = (s.gen + 1) & genMask
	s.obj = nil
	s.fin = nil
	s.children = nil
	s.parent = 0
	r.free = append(r.free, h.index())
	r.live--
}
