package engine

import (
	"context"
	"time"
)

// EpochRecord is one epoch's worth of persisted key schedule data.
type EpochRecord struct {
	ID   uint64
	Data []byte
}

// GroupStateStorage persists group snapshots and epoch records. The schema
// mirrors the engine's storage contract: one snapshot per group plus an
// ordered window of epoch records, trimmed by the implementation's retention
// policy.
//
// Implementations must be safe for concurrent use; the engine invokes storage
// on whatever goroutine issued the triggering boundary call.
type GroupStateStorage interface {
	// State returns the latest snapshot for the group, or nil when the
	// group is unknown.
	State(ctx context.Context, groupID []byte) ([]byte, error)

	// EpochData returns the record for one epoch, or nil when absent.
	EpochData(ctx context.Context, groupID []byte, epochID uint64) ([]byte, error)

	// MaxEpochID returns the highest stored epoch id for the group. The
	// bool is false when no epochs are stored.
	MaxEpochID(ctx context.Context, groupID []byte) (uint64, bool, error)

	// WriteState atomically stores a new snapshot together with epoch
	// inserts and updates.
	WriteState(ctx context.Context, groupID, snapshot []byte, inserts, updates []EpochRecord) error

	Close() error
}

// IdentityValidator checks member credentials. Implementations typically
// validate an X.509 chain inside the serialized signing identity.
type IdentityValidator interface {
	// ValidateMember checks the signing identity of a current or joining
	// member at the given time.
	ValidateMember(ctx context.Context, signingIdentity []byte, at time.Time) error

	// ValidateExternalSender checks the signing identity of a non-member
	// sender.
	ValidateExternalSender(ctx context.Context, signingIdentity []byte, at time.Time) error
}
