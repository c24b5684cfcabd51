// Package wire defines the on-wire envelope carried inside every
// sealed datagram. The layout uses fixed-width big-endian fields; the
// 1-byte group space and 16-bit symbol indexes make variable-length
// integers pointless here.
//
// Envelope layout (plaintext, sealed as one unit):
//
//	data:  [kind:1][group:1][index:2][payload...]
//	check: [kind:1][group:1][index:2][origCount:2][checkCount:2][shard...]
//	oob:   [kind:1][payload...]
//	pong:  [kind:1][group:1][seen:4][count:4]
//
// A check symbol carries the group's final data-symbol count and the
// total check-symbol count so that a receiver holding any single check
// symbol can size the decode matrix.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/squallnet/squall/internal/protocol"
)

type Kind byte

const (
	KindData Kind = 1 + iota
	KindCheck
	KindOOB
	KindPong
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindCheck:
		return "check"
	case KindOOB:
		return "oob"
	case KindPong:
		return "pong"
	default:
		return "unknown"
	}
}

const (
	dataHeaderLen  = 1 + 1 + 2
	checkHeaderLen = 1 + 1 + 2 + 2 + 2
	oobHeaderLen   = 1
	pongLen        = 1 + 1 + 4 + 4
)

// MaxHeaderLen is the largest envelope header an outbound buffer must
// leave room for.
const MaxHeaderLen = checkHeaderLen

var errTruncated = errors.New("wire: truncated envelope")

// Envelope is a parsed inbound unit. Payload aliases the decrypted
// buffer; callers must copy it before releasing the buffer.
type Envelope struct {
	Kind  Kind
	Group protocol.GroupID
	Index protocol.SymbolIndex

	// check symbols only
	OrigCount  uint16
	CheckCount uint16

	// pong only
	Seen  uint32
	Count uint32

	Payload []byte
}

func AppendData(b []byte, group protocol.GroupID, index protocol.SymbolIndex, payload []byte) []byte {
	b = append(b, byte(KindData), byte(group))
	b = binary.BigEndian.AppendUint16(b, uint16(index))
	return append(b, payload...)
}

func AppendCheck(b []byte, group protocol.GroupID, index protocol.SymbolIndex, origCount, checkCount uint16, shard []byte) []byte {
	b = append(b, byte(KindCheck), byte(group))
	b = binary.BigEndian.AppendUint16(b, uint16(index))
	b = binary.BigEndian.AppendUint16(b, origCount)
	b = binary.BigEndian.AppendUint16(b, checkCount)
	return append(b, shard...)
}

func AppendOOB(b []byte, payload []byte) []byte {
	b = append(b, byte(KindOOB))
	return append(b, payload...)
}

func AppendPong(b []byte, group protocol.GroupID, seen, count uint32) []byte {
	b = append(b, byte(KindPong), byte(group))
	b = binary.BigEndian.AppendUint32(b, seen)
	return binary.BigEndian.AppendUint32(b, count)
}

// ParseEnvelope parses a decrypted envelope. Malformed input yields an
// error; the caller drops the datagram and counts it toward loss.
func ParseEnvelope(b []byte) (*Envelope, error) {
	if len(b) < 1 {
		return nil, errTruncated
	}
	e := &Envelope{Kind: Kind(b[0])}
	switch e.Kind {
	case KindData:
		if len(b) < dataHeaderLen {
			return nil, errTruncated
		}
		e.Group = protocol.GroupID(b[1])
		e.Index = protocol.SymbolIndex(binary.BigEndian.Uint16(b[2:4]))
		e.Payload = b[dataHeaderLen:]
	case KindCheck:
		if len(b) < checkHeaderLen {
			return nil, errTruncated
		}
		e.Group = protocol.GroupID(b[1])
		e.Index = protocol.SymbolIndex(binary.BigEndian.Uint16(b[2:4]))
		e.OrigCount = binary.BigEndian.Uint16(b[4:6])
		e.CheckCount = binary.BigEndian.Uint16(b[6:8])
		if e.OrigCount == 0 || e.CheckCount == 0 {
			return nil, fmt.Errorf("wire: check symbol with empty group (orig=%d check=%d)", e.OrigCount, e.CheckCount)
		}
		if int(e.Index) >= int(e.CheckCount) {
			return nil, fmt.Errorf("wire: check index %d out of range for %d check symbols", e.Index, e.CheckCount)
		}
		e.Payload = b[checkHeaderLen:]
	case KindOOB:
		e.Payload = b[oobHeaderLen:]
	case KindPong:
		if len(b) < pongLen {
			return nil, errTruncated
		}
		e.Group = protocol.GroupID(b[1])
		e.Seen = binary.BigEndian.Uint32(b[2:6])
		e.Count = binary.BigEndian.Uint32(b[6:10])
	default:
		return nil, fmt.Errorf("wire: unknown envelope kind %d", b[0])
	}
	return e, nil
}
