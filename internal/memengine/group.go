package memengine

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/groupwire/mls-ffi-go/pkg/mlsffi"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

type group struct {
	client *client
	id     []byte

	mu          sync.Mutex
	epoch       uint64
	epochSecret []byte
	members     []member
	selfIndex   uint32
	pending     *pendingCommit
	proposals   []proposal
	closed      bool
}

type proposal struct {
	kind   byte
	kp     *keyPackage
	remove uint32
}

type pendingCommit struct {
	group      *group
	baseEpoch  uint64
	commitMsg  []byte
	welcomeMsg []byte
	adds       []*keyPackage
	removes    []uint32
	discarded  bool
}

func (pc *pendingCommit) CommitMessage() []byte  { return pc.commitMsg }
func (pc *pendingCommit) WelcomeMessage() []byte { return pc.welcomeMsg }

func (pc *pendingCommit) Discard() {
	g := pc.group
	g.mu.Lock()
	defer g.mu.Unlock()
	pc.discarded = true
	if g.pending == pc {
		g.pending = nil
	}
}

func (g *group) GroupID() []byte {
	return append([]byte(nil), g.id...)
}

func (g *group) Epoch() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

func ratchet(secret, commitID []byte) []byte {
	h := sha256.New()
	h.Write(secret)
	h.Write(commitID)
	h.Write([]byte("epoch"))
	return h.Sum(nil)
}

// stageCommit builds and stages a pending commit under the group lock. Only
// one commit may be staged at a time; a second attempt fails with
// ErrPendingCommitExists until the first is applied or discarded.
func (g *group) stageCommit(adds []*keyPackage, removes []uint32) (*pendingCommit, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, protocolError("group closed")
	}
	if g.pending != nil {
		return nil, engine.ErrPendingCommitExists
	}
	for _, p := range g.proposals {
		switch p.kind {
		case proposalAdd:
			adds = append(adds, p.kp)
		case proposalRemove:
			removes = append(removes, p.remove)
		}
	}

	for _, idx := range removes {
		if int(idx) >= len(g.members) || g.members[idx].name == "" {
			return nil, protocolError("remove of unknown member %d", idx)
		}
		if idx == g.selfIndex {
			return nil, protocolError("cannot remove self via commit")
		}
	}

	commitID, err := randomBytes(16)
	if err != nil {
		return nil, err
	}

	rawAdds := make([][]byte, len(adds))
	for i, kp := range adds {
		rawAdds[i] = kp.raw
	}
	commitMsg := encodeCommit(commitBody{
		groupID:     g.id,
		baseEpoch:   g.epoch,
		commitID:    commitID,
		senderIndex: g.selfIndex,
		adds:        rawAdds,
		removes:     removes,
	})

	var welcomeMsg []byte
	if len(adds) > 0 {
		next := applyChanges(g.members, adds, removes)
		recipients := make([][]byte, len(adds))
		for i, kp := range adds {
			recipients[i] = kp.credential
		}
		welcomeMsg = encodeWelcome(welcomeBody{
			groupID:     g.id,
			epoch:       g.epoch + 1,
			epochSecret: ratchet(g.epochSecret, commitID),
			members:     next,
			recipients:  recipients,
		})
	}

	pc := &pendingCommit{
		group:      g,
		baseEpoch:  g.epoch,
		commitMsg:  commitMsg,
		welcomeMsg: welcomeMsg,
		adds:       adds,
		removes:    removes,
	}
	// The queue is consumed only once the commit is actually staged; a
	// failure above leaves every buffered proposal in place.
	g.proposals = nil
	g.pending = pc

	// The ratchet input is embedded in the commit message, so applying the
	// commit on any member derives the same next secret.
	return pc, nil
}

// applyChanges produces the post-commit member list. Removed leaves become
// tombstones so surviving indices stay stable; added members append.
func applyChanges(members []member, adds []*keyPackage, removes []uint32) []member {
	next := append([]member(nil), members...)
	for _, idx := range removes {
		next[idx] = member{}
	}
	for _, kp := range adds {
		next = append(next, member{name: string(kp.credential), suite: kp.suite, pubKey: kp.pubKey})
	}
	return next
}

func (g *group) validateAdds(ctx context.Context, keyPackages [][]byte) ([]*keyPackage, error) {
	adds := make([]*keyPackage, 0, len(keyPackages))
	now := time.Now()
	for _, raw := range keyPackages {
		kp, err := parseKeyPackage(raw)
		if err != nil {
			return nil, err
		}
		if g.client.identity != nil {
			if err := g.client.identity.ValidateMember(ctx, kp.credential, now); err != nil {
				return nil, err
			}
		}
		adds = append(adds, kp)
	}
	return adds, nil
}

func (g *group) AddMembers(ctx context.Context, keyPackages [][]byte) (engine.PendingCommit, error) {
	if len(keyPackages) == 0 {
		return nil, protocolError("add commit with no key packages")
	}
	adds, err := g.validateAdds(ctx, keyPackages)
	if err != nil {
		return nil, err
	}
	return g.stageCommit(adds, nil)
}

func (g *group) RemoveMember(ctx context.Context, memberIndex uint32) (engine.PendingCommit, error) {
	return g.stageCommit(nil, []uint32{memberIndex})
}

func (g *group) Commit(ctx context.Context) (engine.PendingCommit, error) {
	return g.stageCommit(nil, nil)
}

func (g *group) ProposeAdd(ctx context.Context, rawKP []byte) ([]byte, error) {
	adds, err := g.validateAdds(ctx, [][]byte{rawKP})
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.proposals = append(g.proposals, proposal{kind: proposalAdd, kp: adds[0]})
	g.mu.Unlock()

	body := encodeProposal(proposalAdd, adds[0].raw)
	return body, nil
}

func (g *group) ProposeRemove(ctx context.Context, memberIndex uint32) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if int(memberIndex) >= len(g.members) || g.members[memberIndex].name == "" {
		return nil, protocolError("remove proposal for unknown member %d", memberIndex)
	}
	g.proposals = append(g.proposals, proposal{kind: proposalRemove, remove: memberIndex})
	return encodeProposal(proposalRemove, binary.BigEndian.AppendUint32(nil, memberIndex)), nil
}

func (g *group) ApplyPendingCommit(ctx context.Context, pc engine.PendingCommit) error {
	staged, ok := pc.(*pendingCommit)
	if !ok || staged.group != g {
		return protocolError("pending commit belongs to a different group")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if staged.discarded {
		return protocolError("pending commit was discarded")
	}
	if staged.baseEpoch != g.epoch || g.pending != staged {
		return engine.ErrStaleCommit
	}

	c, err := decodeCommit(staged.commitMsg[1:])
	if err != nil {
		return err
	}
	g.members = applyChanges(g.members, staged.adds, staged.removes)
	g.epochSecret = ratchet(g.epochSecret, c.commitID)
	g.epoch++
	g.pending = nil
	return nil
}

func (g *group) ProcessIncomingMessage(ctx context.Context, message []byte) (*engine.ReceivedMessage, error) {
	if len(message) < 1 {
		return nil, protocolError("empty protocol message")
	}
	body := message[1:]
	switch message[0] {
	case msgApplication:
		return g.processApplication(body)
	case msgCommit:
		return g.processCommit(ctx, body)
	case msgProposal:
		return g.processProposal(ctx, body)
	default:
		return nil, protocolError("unknown message type %d", message[0])
	}
}

func (g *group) processCommit(ctx context.Context, body []byte) (*engine.ReceivedMessage, error) {
	c, err := decodeCommit(body)
	if err != nil {
		return nil, err
	}

	adds := make([]*keyPackage, 0, len(c.adds))
	now := time.Now()
	for _, raw := range c.adds {
		kp, err := parseKeyPackage(raw)
		if err != nil {
			return nil, err
		}
		if g.client.identity != nil {
			if err := g.client.identity.ValidateMember(ctx, kp.credential, now); err != nil {
				return nil, err
			}
		}
		adds = append(adds, kp)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !bytes.Equal(c.groupID, g.id) {
		return nil, protocolError("commit for a different group")
	}
	if c.baseEpoch != g.epoch {
		return nil, engine.ErrStaleCommit
	}
	if int(c.senderIndex) >= len(g.members) || g.members[c.senderIndex].name == "" {
		return nil, protocolError("commit from unknown sender %d", c.senderIndex)
	}
	for _, idx := range c.removes {
		if int(idx) >= len(g.members) || g.members[idx].name == "" {
			return nil, protocolError("commit removes unknown member %d", idx)
		}
	}

	g.members = applyChanges(g.members, adds, c.removes)
	g.epochSecret = ratchet(g.epochSecret, c.commitID)
	g.epoch++
	// An incoming commit supersedes anything we had staged; the staged
	// commit will fail with ErrStaleCommit on apply.
	return &engine.ReceivedMessage{Kind: engine.ReceivedCommit, SenderIndex: c.senderIndex}, nil
}

func (g *group) processProposal(ctx context.Context, body []byte) (*engine.ReceivedMessage, error) {
	kind, payload, err := decodeProposal(body)
	if err != nil {
		return nil, err
	}
	switch kind {
	case proposalAdd:
		adds, err := g.validateAdds(ctx, [][]byte{payload})
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.proposals = append(g.proposals, proposal{kind: proposalAdd, kp: adds[0]})
		g.mu.Unlock()
	case proposalRemove:
		if len(payload) != 4 {
			return nil, protocolError("malformed remove proposal")
		}
		idx := binary.BigEndian.Uint32(payload)
		g.mu.Lock()
		if int(idx) >= len(g.members) || g.members[idx].name == "" {
			g.mu.Unlock()
			return nil, protocolError("remove proposal for unknown member %d", idx)
		}
		g.proposals = append(g.proposals, proposal{kind: proposalRemove, remove: idx})
		g.mu.Unlock()
	default:
		return nil, protocolError("unknown proposal kind %d", kind)
	}
	return &engine.ReceivedMessage{Kind: engine.ReceivedProposal}, nil
}

func (g *group) processApplication(body []byte) (*engine.ReceivedMessage, error) {
	if len(body) < 8+4+12+16 {
		return nil, protocolError("application message too short")
	}
	epoch := binary.BigEndian.Uint64(body)
	sender := binary.BigEndian.Uint32(body[8:])
	nonce := body[12:24]
	ct := body[24:]

	g.mu.Lock()
	defer g.mu.Unlock()

	if epoch != g.epoch {
		return nil, protocolError("application message for epoch %d, group is at %d", epoch, g.epoch)
	}
	if int(sender) >= len(g.members) || g.members[sender].name == "" {
		return nil, protocolError("application message from unknown sender %d", sender)
	}

	aead, err := g.appAEADLocked()
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce, ct, body[:12])
	if err != nil {
		return nil, fmt.Errorf("%w: application message decryption: %v", engine.ErrCrypto, err)
	}
	return &engine.ReceivedMessage{Kind: engine.ReceivedApplication, SenderIndex: sender, Data: pt}, nil
}

func (g *group) EncryptApplicationMessage(ctx context.Context, plaintext []byte) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, protocolError("group closed")
	}
	aead, err := g.appAEADLocked()
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(12)
	if err != nil {
		return nil, err
	}

	header := binary.BigEndian.AppendUint64(nil, g.epoch)
	header = binary.BigEndian.AppendUint32(header, g.selfIndex)
	ct := aead.Seal(nil, nonce, plaintext, header)

	msg := append([]byte{msgApplication}, header...)
	msg = append(msg, nonce...)
	return append(msg, ct...), nil
}

func (g *group) appAEADLocked() (cipher.AEAD, error) {
	key := deriveSecret(g.epochSecret, "app", g.id, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrCrypto, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrCrypto, err)
	}
	return aead, nil
}

func (g *group) ExportSecret(ctx context.Context, label string, context []byte, length uint32) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, protocolError("group closed")
	}
	return deriveSecret(g.epochSecret, "exporter:"+label, context, length), nil
}

func (g *group) WriteToStorage(ctx context.Context) error {
	if g.client.storage == nil {
		return fmt.Errorf("%w: client has no storage provider", engine.ErrStorage)
	}

	g.mu.Lock()
	snap := encodeSnapshot(g)
	epochRec := engine.EpochRecord{ID: g.epoch, Data: deriveSecret(g.epochSecret, "epoch-auth", g.id, 32)}
	g.mu.Unlock()

	if err := g.client.storage.WriteState(ctx, g.id, snap, []engine.EpochRecord{epochRec}, nil); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrStorage, err)
	}
	return nil
}

func (g *group) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	mlsffi.ZeroizeBytes(g.epochSecret)
	g.epochSecret = nil
	return nil
}
