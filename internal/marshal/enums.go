package marshal

import "github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"

// Enumeration mapping tables. These are versioned by addition only: a wire
// value is never reassigned, unknown inbound values are rejected rather than
// coerced to a default.

var knownSuites = map[uint16]engine.CipherSuite{
	0x0001: engine.SuiteCurve25519Aes128,
	0x0002: engine.SuiteP256Aes128,
	0x0003: engine.SuiteCurve25519ChaCha20,
	0x0004: engine.SuiteCurve448Aes256,
	0x0005: engine.SuiteP521Aes256,
	0x0006: engine.SuiteCurve448ChaCha20,
	0x0007: engine.SuiteP384Aes256,
	0xF001: engine.SuiteSecp256k1Test,
}

// CipherSuiteFromWire maps a wire cipher suite value to the engine
// enumeration. Zero means "backend default" and maps to zero.
func CipherSuiteFromWire(v uint16) (engine.CipherSuite, error) {
	if v == 0 {
		return 0, nil
	}
	suite, ok := knownSuites[v]
	if !ok {
		return 0, ErrUnknownValue
	}
	return suite, nil
}

// ReceivedKindToWire maps a processed-message kind to its wire value.
func ReceivedKindToWire(k engine.ReceivedMessageKind) (uint8, error) {
	switch k {
	case engine.ReceivedApplication, engine.ReceivedCommit, engine.ReceivedProposal:
		return uint8(k), nil
	default:
		return 0, ErrUnknownValue
	}
}
