package memengine

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	becdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/groupwire/mls-ffi-go/pkg/mlsffi"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

// keypair is a signature keypair for one cipher suite. The standard suites
// all sign with ed25519 here; the private-use test suite signs with secp256k1
// ECDSA over SHA-256.
type keypair struct {
	suite   engine.CipherSuite
	edPriv  ed25519.PrivateKey
	secPriv *btcec.PrivateKey
}

func generateKeypair(suite engine.CipherSuite) (*keypair, error) {
	if suite == engine.SuiteSecp256k1Test {
		priv, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, fmt.Errorf("%w: secp256k1 keygen: %v", engine.ErrCrypto, err)
		}
		return &keypair{suite: suite, secPriv: priv}, nil
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: ed25519 keygen: %v", engine.ErrCrypto, err)
	}
	return &keypair{suite: suite, edPriv: priv}, nil
}

func (k *keypair) public() []byte {
	if k.secPriv != nil {
		return k.secPriv.PubKey().SerializeCompressed()
	}
	return []byte(k.edPriv.Public().(ed25519.PublicKey))
}

func (k *keypair) zeroize() {
	if k.secPriv != nil {
		k.secPriv.Zero()
		k.secPriv = nil
	}
	mlsffi.ZeroizeBytes(k.edPriv)
	k.edPriv = nil
}

func (k *keypair) sign(msg []byte) []byte {
	if k.secPriv != nil {
		digest := sha256.Sum256(msg)
		return becdsa.Sign(k.secPriv, digest[:]).Serialize()
	}
	return ed25519.Sign(k.edPriv, msg)
}

func verifySignature(suite engine.CipherSuite, pub, msg, sig []byte) bool {
	if suite == engine.SuiteSecp256k1Test {
		pubKey, err := btcec.ParsePubKey(pub)
		if err != nil {
			return false
		}
		parsed, err := becdsa.ParseDERSignature(sig)
		if err != nil {
			return false
		}
		digest := sha256.Sum256(msg)
		return parsed.Verify(digest[:], pubKey)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// deriveSecret expands the epoch secret into a derived secret of the given
// length using counter-mode SHA-256.
func deriveSecret(secret []byte, label string, context []byte, length uint32) []byte {
	out := make([]byte, 0, length)
	// A 32-bit block counter keeps every block distinct across the full
	// range of export lengths the boundary permits.
	var counter uint32
	for uint32(len(out)) < length {
		h := sha256.New()
		h.Write(secret)
		h.Write([]byte(label))
		h.Write(context)
		h.Write(binary.BigEndian.AppendUint32(nil, counter))
		out = h.Sum(out)
		counter++
	}
	return out[:length]
}

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("%w: rng: %v", engine.ErrCrypto, err)
	}
	return buf, nil
}
