package memengine

import (
	"encoding/binary"
	"fmt"

	"github.com/groupwire/mls-ffi-go/internal/marshal"
	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

// Wire formats used between members. Protocol messages carry a one-byte type
// tag followed by a record sequence body.

const (
	msgApplication byte = 1
	msgCommit      byte = 2
	msgProposal    byte = 3
)

const (
	proposalAdd    byte = 1
	proposalRemove byte = 2
)

func protocolError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", engine.ErrProtocol, fmt.Sprintf(format, args...))
}

// member is one leaf of the (flat) member list.
type member struct {
	name   string
	suite  engine.CipherSuite
	pubKey []byte
}

func encodeMember(m member) []byte {
	body := marshal.AppendRecord(nil, []byte(m.name))
	body = marshal.AppendRecord(body, binary.BigEndian.AppendUint16(nil, uint16(m.suite)))
	body = marshal.AppendRecord(body, m.pubKey)
	return body
}

func decodeMember(buf []byte) (member, error) {
	fields, err := marshal.SplitRecords(buf, 0)
	if err != nil || len(fields) != 3 || len(fields[1]) != 2 {
		return member{}, protocolError("malformed member record")
	}
	return member{
		name:   string(fields[0]),
		suite:  engine.CipherSuite(binary.BigEndian.Uint16(fields[1])),
		pubKey: fields[2],
	}, nil
}

func encodeMembers(members []member) []byte {
	var recs [][]byte
	for _, m := range members {
		recs = append(recs, encodeMember(m))
	}
	return marshal.JoinRecords(recs)
}

func decodeMembers(buf []byte) ([]member, error) {
	recs, err := marshal.SplitRecords(buf, 0)
	if err != nil {
		return nil, protocolError("malformed member list")
	}
	out := make([]member, 0, len(recs))
	for _, r := range recs {
		m, err := decodeMember(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// keyPackage is the parsed form of a serialized key package. The bridge has
// already checked framing; parse errors here are still protocol errors
// because the engine re-reads the structure it signs over.
type keyPackage struct {
	suite      engine.CipherSuite
	pubKey     []byte
	credential []byte
	raw        []byte
}

func buildKeyPackage(kp *keypair, credential []byte) []byte {
	buf := binary.BigEndian.AppendUint16(nil, marshal.ProtocolVersionMLS10)
	buf = binary.BigEndian.AppendUint16(buf, uint16(kp.suite))
	buf = marshal.AppendOpaque16(buf, kp.public())
	buf = marshal.AppendOpaque16(buf, credential)
	sig := kp.sign(buf)
	return marshal.AppendOpaque16(buf, sig)
}

func parseKeyPackage(raw []byte) (*keyPackage, error) {
	if len(raw) < 4 {
		return nil, protocolError("key package too short")
	}
	if binary.BigEndian.Uint16(raw) != marshal.ProtocolVersionMLS10 {
		return nil, protocolError("unsupported key package version")
	}
	suite := engine.CipherSuite(binary.BigEndian.Uint16(raw[2:]))

	rest := raw[4:]
	fields := make([][]byte, 3)
	for i := range fields {
		var (
			field []byte
			err   error
		)
		field, rest, err = readOpaque(rest)
		if err != nil {
			return nil, err
		}
		fields[i] = field
	}
	if len(rest) != 0 {
		return nil, protocolError("trailing bytes in key package")
	}

	tbs := raw[:len(raw)-len(fields[2])-2]
	if !verifySignature(suite, fields[0], tbs, fields[2]) {
		return nil, protocolError("key package signature verification failed")
	}
	return &keyPackage{suite: suite, pubKey: fields[0], credential: fields[1], raw: raw}, nil
}

func readOpaque(buf []byte) (field, rest []byte, err error) {
	if len(buf) < 2 {
		return nil, nil, protocolError("truncated key package field")
	}
	n := int(binary.BigEndian.Uint16(buf))
	body := buf[2:]
	if len(body) < n {
		return nil, nil, protocolError("truncated key package field")
	}
	return body[:n], body[n:], nil
}

func encodeProposal(kind byte, payload []byte) []byte {
	body := marshal.AppendRecord(nil, []byte{kind})
	body = marshal.AppendRecord(body, payload)
	return append([]byte{msgProposal}, body...)
}

func decodeProposal(body []byte) (kind byte, payload []byte, err error) {
	fields, err := marshal.SplitRecords(body, 0)
	if err != nil || len(fields) != 2 || len(fields[0]) != 1 {
		return 0, nil, protocolError("malformed proposal message")
	}
	return fields[0][0], fields[1], nil
}

// commitBody is the wire form of a commit message.
type commitBody struct {
	groupID     []byte
	baseEpoch   uint64
	commitID    []byte
	senderIndex uint32
	adds        [][]byte // serialized key packages
	removes     []uint32
}

func encodeCommit(c commitBody) []byte {
	body := marshal.AppendRecord(nil, c.groupID)
	body = marshal.AppendRecord(body, binary.BigEndian.AppendUint64(nil, c.baseEpoch))
	body = marshal.AppendRecord(body, c.commitID)
	body = marshal.AppendRecord(body, binary.BigEndian.AppendUint32(nil, c.senderIndex))
	body = marshal.AppendRecord(body, marshal.JoinRecords(c.adds))

	var removes []byte
	for _, idx := range c.removes {
		removes = binary.BigEndian.AppendUint32(removes, idx)
	}
	body = marshal.AppendRecord(body, removes)
	return append([]byte{msgCommit}, body...)
}

func decodeCommit(body []byte) (commitBody, error) {
	fields, err := marshal.SplitRecords(body, 0)
	if err != nil || len(fields) != 6 || len(fields[1]) != 8 || len(fields[3]) != 4 {
		return commitBody{}, protocolError("malformed commit message")
	}
	adds, err := marshal.SplitRecords(fields[4], 0)
	if err != nil {
		return commitBody{}, protocolError("malformed commit adds")
	}
	if len(fields[5])%4 != 0 {
		return commitBody{}, protocolError("malformed commit removes")
	}
	var removes []uint32
	for off := 0; off < len(fields[5]); off += 4 {
		removes = append(removes, binary.BigEndian.Uint32(fields[5][off:]))
	}
	return commitBody{
		groupID:     fields[0],
		baseEpoch:   binary.BigEndian.Uint64(fields[1]),
		commitID:    fields[2],
		senderIndex: binary.BigEndian.Uint32(fields[3]),
		adds:        adds,
		removes:     removes,
	}, nil
}

// welcomeBody is the wire form of a welcome message. The epoch secret is
// carried directly; a production engine would encrypt it to the joiner's init
// key.
type welcomeBody struct {
	groupID     []byte
	epoch       uint64
	epochSecret []byte
	members     []member
	recipients  [][]byte // credentials of the members added by this commit
}

func encodeWelcome(w welcomeBody) []byte {
	body := marshal.AppendRecord(nil, w.groupID)
	body = marshal.AppendRecord(body, binary.BigEndian.AppendUint64(nil, w.epoch))
	body = marshal.AppendRecord(body, w.epochSecret)
	body = marshal.AppendRecord(body, encodeMembers(w.members))
	body = marshal.AppendRecord(body, marshal.JoinRecords(w.recipients))
	return body
}

func decodeWelcome(buf []byte) (welcomeBody, error) {
	fields, err := marshal.SplitRecords(buf, 0)
	if err != nil || len(fields) != 5 || len(fields[1]) != 8 {
		return welcomeBody{}, protocolError("malformed welcome message")
	}
	members, err := decodeMembers(fields[3])
	if err != nil {
		return welcomeBody{}, err
	}
	recipients, err := marshal.SplitRecords(fields[4], 0)
	if err != nil {
		return welcomeBody{}, protocolError("malformed welcome recipients")
	}
	return welcomeBody{
		groupID:     fields[0],
		epoch:       binary.BigEndian.Uint64(fields[1]),
		epochSecret: fields[2],
		members:     members,
		recipients:  recipients,
	}, nil
}

// snapshot is the persisted form of a group session.
func encodeSnapshot(g *group) []byte {
	body := marshal.AppendRecord(nil, g.id)
	body = marshal.AppendRecord(body, binary.BigEndian.AppendUint64(nil, g.epoch))
	body = marshal.AppendRecord(body, g.epochSecret)
	body = marshal.AppendRecord(body, encodeMembers(g.members))
	body = marshal.AppendRecord(body, binary.BigEndian.AppendUint32(nil, g.selfIndex))
	return body
}

func decodeSnapshot(buf []byte) (id []byte, epoch uint64, secret []byte, members []member, selfIndex uint32, err error) {
	fields, serr := marshal.SplitRecords(buf, 0)
	if serr != nil || len(fields) != 5 || len(fields[1]) != 8 || len(fields[4]) != 4 {
		return nil, 0, nil, nil, 0, fmt.Errorf("%w: malformed group snapshot", engine.ErrStorage)
	}
	members, merr := decodeMembers(fields[3])
	if merr != nil {
		return nil, 0, nil, nil, 0, fmt.Errorf("%w: malformed group snapshot members", engine.ErrStorage)
	}
	return fields[0], binary.BigEndian.Uint64(fields[1]), fields[2], members, binary.BigEndian.Uint32(fields[4]), nil
}
