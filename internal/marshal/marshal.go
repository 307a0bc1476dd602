// Package marshal converts values crossing the boundary between their native
// Go representation and the flat forms the C ABI can carry: bounded byte
// copies, validated UTF-8 text, length-prefixed record sequences, and
// versioned enumeration tables.
//
// Every inbound conversion validates before it copies. Protocol data may
// contain arbitrary bytes including zero, so lengths are always explicit and
// never inferred from sentinels.
package marshal

import (
	"encoding/binary"
	"errors"
	"unicode/utf8"
)

// MaxBufferLen is the default bound on inbound boundary buffers. A claimed
// length above the bound is rejected before any copy happens.
const MaxBufferLen = 16 << 20

var (
	// ErrTooLarge reports a buffer whose claimed length exceeds the bound.
	ErrTooLarge = errors.New("marshal: buffer exceeds maximum length")

	// ErrBadEncoding reports inbound text that is not valid UTF-8.
	ErrBadEncoding = errors.New("marshal: invalid UTF-8 text")

	// ErrTruncated reports a record sequence or framed structure that ends
	// before its declared length.
	ErrTruncated = errors.New("marshal: truncated input")

	// ErrTrailingData reports bytes left over after a framed structure was
	// fully read.
	ErrTrailingData = errors.New("marshal: trailing data after structure")

	// ErrUnknownValue reports a well-formed but unrecognized enumeration
	// value.
	ErrUnknownValue = errors.New("marshal: unknown enumeration value")
)

// CopyBounded returns a defensive copy of data after checking its length
// against limit. A limit of zero applies MaxBufferLen. The copy preserves
// length exactly, including zero.
func CopyBounded(data []byte, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = MaxBufferLen
	}
	if len(data) > limit {
		return nil, ErrTooLarge
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// String converts inbound boundary text, validating UTF-8.
func String(data []byte, limit int) (string, error) {
	if limit <= 0 {
		limit = MaxBufferLen
	}
	if len(data) > limit {
		return "", ErrTooLarge
	}
	if !utf8.Valid(data) {
		return "", ErrBadEncoding
	}
	return string(data), nil
}

// AppendRecord appends rec to dst as a length-prefixed record (uint32
// big-endian length followed by the bytes).
func AppendRecord(dst, rec []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(rec)))
	return append(dst, rec...)
}

// ReadRecord reads one length-prefixed record from buf, returning the record
// and the remaining bytes. The declared length is checked against limit
// before any slice is taken.
func ReadRecord(buf []byte, limit int) (rec, rest []byte, err error) {
	if limit <= 0 {
		limit = MaxBufferLen
	}
	if len(buf) < 4 {
		return nil, nil, ErrTruncated
	}
	n := binary.BigEndian.Uint32(buf)
	if uint64(n) > uint64(limit) {
		return nil, nil, ErrTooLarge
	}
	body := buf[4:]
	if uint32(len(body)) < n {
		return nil, nil, ErrTruncated
	}
	return body[:n], body[n:], nil
}

// SplitRecords decodes a whole record sequence, requiring the buffer to be
// consumed exactly. Each element is defensively copied.
func SplitRecords(buf []byte, limit int) ([][]byte, error) {
	var out [][]byte
	for len(buf) > 0 {
		rec, rest, err := ReadRecord(buf, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, append([]byte(nil), rec...))
		buf = rest
	}
	return out, nil
}

// JoinRecords encodes elems as a record sequence.
func JoinRecords(elems [][]byte) []byte {
	var out []byte
	for _, e := range elems {
		out = AppendRecord(out, e)
	}
	return out
}
