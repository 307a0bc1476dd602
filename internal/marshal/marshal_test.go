package marshal

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

func TestCopyBoundedRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0x00, 0x01, 0x00, 0xff, 0x00},
		bytes.Repeat([]byte{0xab}, 4096),
	}
	for _, in := range cases {
		out, err := CopyBounded(in, 0)
		require.NoError(t, err)
		require.Equal(t, len(in), len(out))
		require.True(t, bytes.Equal(in, out))

		// The copy must be independent of the caller's buffer.
		if len(in) > 0 {
			in[0] ^= 0xff
			require.False(t, bytes.Equal(in, out))
			in[0] ^= 0xff
		}
	}
}

func TestCopyBoundedRejectsOversize(t *testing.T) {
	data := make([]byte, 17)
	_, err := CopyBounded(data, 16)
	require.ErrorIs(t, err, ErrTooLarge)

	// At the bound exactly is fine.
	_, err = CopyBounded(data[:16], 16)
	require.NoError(t, err)
}

func TestStringValidation(t *testing.T) {
	s, err := String([]byte("alice@example.com"), 0)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", s)

	_, err = String([]byte{0xff, 0xfe, 0xfd}, 0)
	require.ErrorIs(t, err, ErrBadEncoding)

	_, err = String(make([]byte, 32), 16)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestRecordSequenceRoundTrip(t *testing.T) {
	elems := [][]byte{
		{},
		{0x00, 0x00},
		[]byte("key package bytes"),
	}
	buf := JoinRecords(elems)

	out, err := SplitRecords(buf, 0)
	require.NoError(t, err)
	require.Len(t, out, len(elems))
	for i := range elems {
		require.True(t, bytes.Equal(elems[i], out[i]))
	}
}

func TestReadRecordRejectsOversizeClaimWithoutReading(t *testing.T) {
	// Header claims 1 GiB but carries four bytes. The claim must be
	// rejected from the header alone.
	buf := binary.BigEndian.AppendUint32(nil, 1<<30)
	buf = append(buf, 1, 2, 3, 4)

	_, _, err := ReadRecord(buf, 1<<20)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestReadRecordLimitAboveUint32(t *testing.T) {
	if strconv.IntSize < 64 {
		t.Skip("needs a limit wider than 32 bits")
	}
	// A limit above 4 GiB must not wrap when compared against the 32-bit
	// length prefix.
	limit := int(uint64(1)<<32 + 64)
	rec := bytes.Repeat([]byte{0x5a}, 65)
	buf := AppendRecord(nil, rec)

	got, rest, err := ReadRecord(buf, limit)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.True(t, bytes.Equal(rec, got))
}

func TestReadRecordTruncated(t *testing.T) {
	buf := binary.BigEndian.AppendUint32(nil, 10)
	buf = append(buf, 1, 2, 3)

	_, _, err := ReadRecord(buf, 0)
	require.ErrorIs(t, err, ErrTruncated)

	_, _, err = ReadRecord([]byte{0x00, 0x01}, 0)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestCipherSuiteTable(t *testing.T) {
	suite, err := CipherSuiteFromWire(0x0001)
	require.NoError(t, err)
	require.Equal(t, engine.SuiteCurve25519Aes128, suite)

	suite, err = CipherSuiteFromWire(0xF001)
	require.NoError(t, err)
	require.Equal(t, engine.SuiteSecp256k1Test, suite)

	// Zero selects the backend default.
	suite, err = CipherSuiteFromWire(0)
	require.NoError(t, err)
	require.Equal(t, engine.CipherSuite(0), suite)

	_, err = CipherSuiteFromWire(0x7777)
	require.ErrorIs(t, err, ErrUnknownValue)
}

func validKeyPackage() []byte {
	buf := binary.BigEndian.AppendUint16(nil, ProtocolVersionMLS10)
	buf = binary.BigEndian.AppendUint16(buf, 0x0001)
	buf = AppendOpaque16(buf, bytes.Repeat([]byte{0x11}, 32)) // init key
	buf = AppendOpaque16(buf, []byte("basic:alice"))          // credential
	buf = AppendOpaque16(buf, bytes.Repeat([]byte{0x22}, 64)) // signature
	return buf
}

func TestValidateKeyPackage(t *testing.T) {
	kp := validKeyPackage()
	require.NoError(t, ValidateKeyPackage(kp, 0))

	// Truncation anywhere in the structure is caught.
	for _, cut := range []int{1, 3, 5, len(kp) - 1} {
		require.ErrorIs(t, ValidateKeyPackage(kp[:cut], 0), ErrTruncated, "cut at %d", cut)
	}

	// Wrong protocol version.
	bad := append([]byte(nil), kp...)
	binary.BigEndian.PutUint16(bad, 0x0909)
	require.ErrorIs(t, ValidateKeyPackage(bad, 0), ErrUnknownValue)

	// Unknown cipher suite.
	bad = append([]byte(nil), kp...)
	binary.BigEndian.PutUint16(bad[2:], 0x7777)
	require.ErrorIs(t, ValidateKeyPackage(bad, 0), ErrUnknownValue)

	// Trailing garbage.
	require.ErrorIs(t, ValidateKeyPackage(append(kp, 0x00), 0), ErrTrailingData)

	// Oversize buffer.
	require.ErrorIs(t, ValidateKeyPackage(kp, 4), ErrTooLarge)
}
