package bridge

import (
	"errors"
	"fmt"

	"github.com/groupwire/mls-ffi-go/internal/backend"
	"github.com/groupwire/mls-ffi-go/internal/marshal"
	"github.com/groupwire/mls-ffi-go/internal/registry"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

// errInternal marks violations of the bridge's own invariants. It always
// translates to StatusInternalError and is logged distinctly.
var errInternal = errors.New("bridge: internal invariant violation")

// Surface owns the handle registry and dispatches boundary operations against
// one engine configuration. Safe for concurrent use from any number of
// caller threads.
type Surface struct {
	eng    engine.Engine
	sel    backend.Selection
	reg    *registry.Registry
	maxBuf int
}

// New composes a surface from the build-selected backend.
func New() (*Surface, error) {
	eng, err := backend.NewEngine()
	if err != nil {
		return nil, err
	}
	return NewWithEngine(eng, backend.Active()), nil
}

// NewWithEngine composes a surface around an explicit engine. Used by the
// test suite and by embedders providing their own engine integration.
func NewWithEngine(eng engine.Engine, sel backend.Selection) *Surface {
	return &Surface{
		eng:    eng,
		sel:    sel,
		reg:    registry.New(),
		maxBuf: marshal.MaxBufferLen,
	}
}

// SetMaxBufferLen overrides the inbound buffer bound. Zero restores the
// default.
func (s *Surface) SetMaxBufferLen(n int) {
	if n <= 0 {
		n = marshal.MaxBufferLen
	}
	s.maxBuf = n
}

// Selection returns the build-time backend selection backing this surface.
func (s *Surface) Selection() backend.Selection {
	return s.sel
}

// ReleaseHandle releases any handle kind, cascading to handles registered
// under it.
func (s *Surface) ReleaseHandle(h registry.Handle) (res mlsffi.Result) {
	defer s.guard("release_handle", &res)()
	if err := s.reg.Release(h); err != nil {
		return s.fail("release_handle", err)
	}
	return ok()
}

// HandleCount reports the number of live handles. Intended for leak checks.
func (s *Surface) HandleCount() int {
	return s.reg.Count()
}

// clientState is the registry object behind a client handle.
type clientState struct {
	client     engine.Client
	storage    engine.GroupStateStorage // nil without persistence
	ownStorage bool                     // whether release closes it
}

// groupState is the registry object behind a group handle.
type groupState struct {
	group      engine.Group
	hasStorage bool
}

func ok() mlsffi.Result {
	return mlsffi.Result{Code: mlsffi.StatusOK}
}

// fail translates err into a boundary result. Internal errors are logged at
// error level; everything else is expected caller-visible failure.
func (s *Surface) fail(op string, err error) mlsffi.Result {
	oe := &OpError{Op: op, Err: err}
	code := classify(oe)
	if code == mlsffi.StatusInternalError {
		logger.Error().Str("op", op).Err(err).Msg("bridge invariant violation")
		return mlsffi.Result{Code: code, Detail: "internal error"}
	}
	if code == mlsffi.StatusUnsupportedValue {
		logger.Debug().Str("op", op).Err(err).Msg("unsupported value or feature")
	}
	return mlsffi.Result{Code: code, Detail: oe.Error()}
}

func (s *Surface) failf(op string, code mlsffi.Status, format string, args ...any) mlsffi.Result {
	return mlsffi.Result{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Classify maps an error to its boundary status code. Exposed for the C
// veneer, which must translate surface construction failures itself.
func Classify(err error) mlsffi.Status {
	return classify(err)
}

func classify(err error) mlsffi.Status {
	switch {
	case errors.Is(err, registry.ErrInvalidHandle):
		return mlsffi.StatusInvalidHandle
	case errors.Is(err, marshal.ErrTooLarge),
		errors.Is(err, marshal.ErrBadEncoding),
		errors.Is(err, marshal.ErrTruncated),
		errors.Is(err, marshal.ErrTrailingData):
		return mlsffi.StatusInvalidArgument
	case errors.Is(err, marshal.ErrUnknownValue),
		errors.Is(err, backend.ErrFeatureDisabled),
		errors.Is(err, backend.ErrNotBuilt):
		return mlsffi.StatusUnsupportedValue
	case errors.Is(err, engine.ErrStaleCommit),
		errors.Is(err, engine.ErrPendingCommitExists),
		errors.Is(err, engine.ErrProtocol):
		return mlsffi.StatusProtocolError
	case errors.Is(err, engine.ErrCrypto):
		return mlsffi.StatusCryptoError
	case errors.Is(err, engine.ErrGroupNotFound),
		errors.Is(err, engine.ErrStorage):
		return mlsffi.StatusStorageError
	case errors.Is(err, engine.ErrIdentity):
		return mlsffi.StatusIdentityError
	default:
		return mlsffi.StatusInternalError
	}
}

// guard converts a panic inside an operation into StatusInternalError. No
// boundary operation may unwind past the native call edge.
func (s *Surface) guard(op string, res *mlsffi.Result) func() {
	return func() {
		if p := recover(); p != nil {
			logger.Error().Str("op", op).Interface("panic", p).Msg("panic recovered at boundary")
			*res = mlsffi.Result{Code: mlsffi.StatusInternalError, Detail: "internal error"}
		}
	}
}

func (s *Surface) client(h registry.Handle) (*clientState, error) {
	obj, err := s.reg.Resolve(h, registry.KindClient)
	if err != nil {
		return nil, err
	}
	cs, castOK := obj.(*clientState)
	if !castOK {
		return nil, fmt.Errorf("%w: client slot holds %T", errInternal, obj)
	}
	return cs, nil
}

func (s *Surface) group(h registry.Handle) (*groupState, error) {
	obj, err := s.reg.Resolve(h, registry.KindGroup)
	if err != nil {
		return nil, err
	}
	gs, castOK := obj.(*groupState)
	if !castOK {
		return nil, fmt.Errorf("%w: group slot holds %T", errInternal, obj)
	}
	return gs, nil
}

func (s *Surface) pending(h registry.Handle) (engine.PendingCommit, error) {
	obj, err := s.reg.Resolve(h, registry.KindPendingCommit)
	if err != nil {
		return nil, err
	}
	pc, castOK := obj.(engine.PendingCommit)
	if !castOK {
		return nil, fmt.Errorf("%w: pending commit slot holds %T", errInternal, obj)
	}
	return pc, nil
}
