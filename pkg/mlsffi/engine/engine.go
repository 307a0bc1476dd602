package engine

import "context"

// CipherSuite is an MLS cipher suite registry value.
type CipherSuite uint16

// Cipher suites from the MLS registry, plus the private-use suite exercised by
// the reference engine tests.
const (
	SuiteCurve25519Aes128   CipherSuite = 0x0001
	SuiteP256Aes128         CipherSuite = 0x0002
	SuiteCurve25519ChaCha20 CipherSuite = 0x0003
	SuiteCurve448Aes256     CipherSuite = 0x0004
	SuiteP521Aes256         CipherSuite = 0x0005
	SuiteCurve448ChaCha20   CipherSuite = 0x0006
	SuiteP384Aes256         CipherSuite = 0x0007

	// SuiteSecp256k1Test is a private-use suite (RFC 9420 reserves 0xF000
	// and above) backed by secp256k1 ECDSA signatures.
	SuiteSecp256k1Test CipherSuite = 0xF001
)

// ClientConfig carries everything an engine needs to instantiate a client.
// Storage and Identity are nil when the corresponding feature is not compiled
// into the build.
type ClientConfig struct {
	Name        string
	CipherSuite CipherSuite
	Storage     GroupStateStorage
	Identity    IdentityValidator
}

// Engine creates clients. A single Engine instance backs every handle created
// through the bridge; it is chosen once at build time.
type Engine interface {
	NewClient(ctx context.Context, cfg ClientConfig) (Client, error)
}

// Client is a long-lived MLS client owning a signing identity and any number
// of group sessions.
type Client interface {
	// GenerateKeyPackage produces a serialized key package message that
	// other parties can use to add this client to a group.
	GenerateKeyPackage(ctx context.Context) ([]byte, error)

	// CreateGroup starts a new group. A nil groupID asks the engine to
	// choose a random one.
	CreateGroup(ctx context.Context, groupID []byte) (Group, error)

	// JoinGroup processes a welcome message addressed to one of this
	// client's key packages. ratchetTree may be nil when the welcome
	// carries the tree inline.
	JoinGroup(ctx context.Context, welcome, ratchetTree []byte) (Group, error)

	// LoadGroup restores a previously written group session from the
	// client's storage provider.
	LoadGroup(ctx context.Context, groupID []byte) (Group, error)

	// SigningIdentity returns the client's serialized signing identity
	// (signature public key plus credential).
	SigningIdentity() ([]byte, error)

	Close() error
}

// Group is a live group session at a specific epoch. Implementations must be
// safe for concurrent use: the bridge serializes registry bookkeeping but not
// engine operations on the same group.
type Group interface {
	GroupID() []byte
	Epoch() uint64

	// AddMembers stages a commit adding the given serialized key packages.
	AddMembers(ctx context.Context, keyPackages [][]byte) (PendingCommit, error)

	// ProposeAdd returns a standalone add proposal message without staging
	// a commit.
	ProposeAdd(ctx context.Context, keyPackage []byte) ([]byte, error)

	// ProposeRemove returns a standalone remove proposal message.
	ProposeRemove(ctx context.Context, memberIndex uint32) ([]byte, error)

	// RemoveMember stages a commit removing the member at the given leaf
	// index.
	RemoveMember(ctx context.Context, memberIndex uint32) (PendingCommit, error)

	// Commit stages a commit over the currently buffered proposals. Fails
	// with ErrPendingCommitExists while an earlier stage is unresolved.
	Commit(ctx context.Context) (PendingCommit, error)

	// ApplyPendingCommit advances the group to the staged epoch. Fails with
	// ErrStaleCommit when the group moved past the commit's base epoch.
	ApplyPendingCommit(ctx context.Context, pc PendingCommit) error

	// ProcessIncomingMessage handles a protocol message produced by another
	// member: an application ciphertext, a commit, or a proposal.
	ProcessIncomingMessage(ctx context.Context, message []byte) (*ReceivedMessage, error)

	// EncryptApplicationMessage protects application data for the current
	// epoch.
	EncryptApplicationMessage(ctx context.Context, plaintext []byte) ([]byte, error)

	// ExportSecret derives a secret from the current epoch's exporter
	// secret.
	ExportSecret(ctx context.Context, label string, context []byte, length uint32) ([]byte, error)

	// WriteToStorage persists the current group state through the client's
	// storage provider.
	WriteToStorage(ctx context.Context) error

	Close() error
}

// PendingCommit is a staged but not yet applied commit. The commit message
// goes to current members, the welcome message (if any) to newly added ones.
type PendingCommit interface {
	CommitMessage() []byte
	WelcomeMessage() []byte
	Discard()
}

// ReceivedMessageKind tags the outcome of processing an incoming message.
type ReceivedMessageKind uint8

const (
	ReceivedApplication ReceivedMessageKind = 1
	ReceivedCommit      ReceivedMessageKind = 2
	ReceivedProposal    ReceivedMessageKind = 3
)

// ReceivedMessage is the engine's view of a processed incoming message. Data
// holds the decrypted plaintext for application messages and is nil otherwise.
type ReceivedMessage struct {
	Kind        ReceivedMessageKind
	SenderIndex uint32
	Data        []byte
}
