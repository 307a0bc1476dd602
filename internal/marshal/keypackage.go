package marshal

import "encoding/binary"

// Key package wire framing, checked before any buffer reaches the engine:
//
//	uint16 protocol version (0x0001, mls10)
//	uint16 cipher suite
//	opaque16 hpke init key
//	opaque16 credential
//	opaque16 signature
//
// Framing errors are caller input errors (InvalidArgument); the engine never
// sees a buffer that fails this check. Semantic validation (signature,
// lifetime, credential contents) stays with the engine.

// ProtocolVersionMLS10 is the only protocol version currently accepted.
const ProtocolVersionMLS10 = 0x0001

// ValidateKeyPackage checks the framing of a serialized key package without
// retaining any of its contents.
func ValidateKeyPackage(buf []byte, limit int) error {
	if limit <= 0 {
		limit = MaxBufferLen
	}
	if len(buf) > limit {
		return ErrTooLarge
	}
	if len(buf) < 4 {
		return ErrTruncated
	}
	if binary.BigEndian.Uint16(buf) != ProtocolVersionMLS10 {
		return ErrUnknownValue
	}
	if _, err := CipherSuiteFromWire(binary.BigEndian.Uint16(buf[2:])); err != nil {
		return err
	}

	rest := buf[4:]
	for i := 0; i < 3; i++ {
		var err error
		if _, rest, err = readOpaque16(rest); err != nil {
			return err
		}
	}
	if len(rest) != 0 {
		return ErrTrailingData
	}
	return nil
}

func readOpaque16(buf []byte) (field, rest []byte, err error) {
	if len(buf) < 2 {
		return nil, nil, ErrTruncated
	}
	n := int(binary.BigEndian.Uint16(buf))
	body := buf[2:]
	if len(body) < n {
		return nil, nil, ErrTruncated
	}
	return body[:n], body[n:], nil
}

// AppendOpaque16 appends a uint16 length-prefixed field. Used by the
// reference engine to emit framing the validator accepts.
func AppendOpaque16(dst, field []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(field)))
	return append(dst, field...)
}
