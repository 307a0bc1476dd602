package engine

import "errors"

// Sentinel errors forming the engine-side taxonomy. The bridge translates
// these to boundary status codes with errors.Is, so engine implementations
// must wrap rather than replace them.
var (
	// ErrProtocol reports that the engine rejected an operation per MLS
	// rules (bad epoch, unknown sender, malformed protocol message).
	ErrProtocol = errors.New("engine: protocol violation")

	// ErrCrypto reports a failure inside the cryptographic provider.
	ErrCrypto = errors.New("engine: crypto failure")

	// ErrStorage reports a failure inside the group-state storage provider.
	ErrStorage = errors.New("engine: storage failure")

	// ErrIdentity reports a credential that failed identity validation.
	ErrIdentity = errors.New("engine: identity validation failure")

	// ErrStaleCommit reports an attempt to apply a pending commit whose
	// base epoch is no longer the group's current epoch.
	ErrStaleCommit = errors.New("engine: stale pending commit")

	// ErrPendingCommitExists reports an attempt to stage a second commit
	// while an earlier one is neither applied nor discarded.
	ErrPendingCommitExists = errors.New("engine: pending commit exists")

	// ErrGroupNotFound reports a LoadGroup for a group id absent from
	// storage.
	ErrGroupNotFound = errors.New("engine: group not found")
)
