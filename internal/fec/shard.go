package fec

import (
	"encoding/binary"
	"fmt"
)

// ShardOverhead is the trailing true-length field of every shard.
const ShardOverhead = 2

const shardSuffixLen = ShardOverhead

// ShardLen returns the shard length for a group whose largest data
// payload is maxPayloadLen bytes.
func ShardLen(maxPayloadLen int) int {
	return maxPayloadLen + shardSuffixLen
}

// BuildShard copies payload into a fresh shard of shardLen bytes,
// zero-padded, with the payload length in the final two bytes.
func BuildShard(payload []byte, shardLen int) []byte {
	shard := make([]byte, shardLen)
	copy(shard, payload)
	binary.BigEndian.PutUint16(shard[shardLen-shardSuffixLen:], uint16(len(payload)))
	return shard
}

// ShardPayload extracts the original payload from a shard.
func ShardPayload(shard []byte) ([]byte, error) {
	if len(shard) < shardSuffixLen {
		return nil, fmt.Errorf("fec: shard of %d bytes is too short", len(shard))
	}
	n := int(binary.BigEndian.Uint16(shard[len(shard)-shardSuffixLen:]))
	if n > len(shard)-shardSuffixLen {
		return nil, fmt.Errorf("fec: shard length field %d exceeds shard size %d", n, len(shard))
	}
	return shard[:n], nil
}
