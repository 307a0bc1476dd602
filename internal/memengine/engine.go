package memengine

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/groupwire/mls-ffi-go/internal/marshal"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

// Engine is the reference engine. It is stateless; all state lives in the
// clients and groups it creates.
type Engine struct{}

// New returns a reference engine.
func New() *Engine {
	return &Engine{}
}

// NewClient implements engine.Engine.
func (e *Engine) NewClient(ctx context.Context, cfg engine.ClientConfig) (engine.Client, error) {
	if cfg.Name == "" {
		return nil, protocolError("empty client name")
	}
	suite := cfg.CipherSuite
	if suite == 0 {
		suite = engine.SuiteCurve25519Aes128
	}
	keys, err := generateKeypair(suite)
	if err != nil {
		return nil, err
	}
	return &client{
		name:     cfg.Name,
		suite:    suite,
		keys:     keys,
		storage:  cfg.Storage,
		identity: cfg.Identity,
	}, nil
}

type client struct {
	name     string
	suite    engine.CipherSuite
	keys     *keypair
	storage  engine.GroupStateStorage
	identity engine.IdentityValidator

	mu     sync.Mutex
	closed bool
}

func (c *client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return protocolError("client closed")
	}
	return nil
}

func (c *client) GenerateKeyPackage(ctx context.Context) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return buildKeyPackage(c.keys, []byte(c.name)), nil
}

func (c *client) CreateGroup(ctx context.Context, groupID []byte) (engine.Group, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	id := append([]byte(nil), groupID...)
	if len(id) == 0 {
		var err error
		if id, err = randomBytes(16); err != nil {
			return nil, err
		}
	}
	secret, err := randomBytes(32)
	if err != nil {
		return nil, err
	}
	return &group{
		client:      c,
		id:          id,
		epoch:       0,
		epochSecret: secret,
		members:     []member{{name: c.name, suite: c.suite, pubKey: c.keys.public()}},
		selfIndex:   0,
	}, nil
}

func (c *client) JoinGroup(ctx context.Context, welcome, ratchetTree []byte) (engine.Group, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	w, err := decodeWelcome(welcome)
	if err != nil {
		return nil, err
	}

	invited := false
	for _, cred := range w.recipients {
		if bytes.Equal(cred, []byte(c.name)) {
			invited = true
			break
		}
	}
	if !invited {
		return nil, protocolError("welcome is not addressed to this client")
	}

	selfIndex := -1
	for i, m := range w.members {
		if m.name == c.name {
			selfIndex = i
			break
		}
	}
	if selfIndex < 0 {
		return nil, protocolError("joiner missing from welcome member list")
	}

	if c.identity != nil {
		now := time.Now()
		for _, m := range w.members {
			if m.name == "" {
				continue
			}
			if err := c.identity.ValidateMember(ctx, []byte(m.name), now); err != nil {
				return nil, err
			}
		}
	}

	return &group{
		client:      c,
		id:          w.groupID,
		epoch:       w.epoch,
		epochSecret: w.epochSecret,
		members:     w.members,
		selfIndex:   uint32(selfIndex),
	}, nil
}

func (c *client) LoadGroup(ctx context.Context, groupID []byte) (engine.Group, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if c.storage == nil {
		return nil, fmt.Errorf("%w: client has no storage provider", engine.ErrStorage)
	}
	snap, err := c.storage.State(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrStorage, err)
	}
	if snap == nil {
		return nil, engine.ErrGroupNotFound
	}
	id, epoch, secret, members, selfIndex, err := decodeSnapshot(snap)
	if err != nil {
		return nil, err
	}
	return &group{
		client:      c,
		id:          id,
		epoch:       epoch,
		epochSecret: secret,
		members:     members,
		selfIndex:   selfIndex,
	}, nil
}

func (c *client) SigningIdentity() ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	body := marshal.AppendRecord(nil, c.keys.public())
	body = marshal.AppendRecord(body, []byte(c.name))
	return body, nil
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.keys.zeroize()
	return nil
}
