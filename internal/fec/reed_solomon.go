package fec

import (
	"fmt"
	"sync"

	"github.com/klauspost/reedsolomon"
)

// ReedSolomonScheme derives check symbols with a systematic
// Reed-Solomon code. Being MDS, any origCount surviving shards of a
// group reconstruct it, which is what the recovery property of the
// engine relies on. Encoders are cached per (data, check) geometry
// since group sizes vary with traffic.
type ReedSolomonScheme struct {
	mu       sync.Mutex
	encoders map[geometry]reedsolomon.Encoder
}

type geometry struct {
	data, check int
}

func NewReedSolomonScheme() *ReedSolomonScheme {
	return &ReedSolomonScheme{encoders: make(map[geometry]reedsolomon.Encoder)}
}

func (s *ReedSolomonScheme) encoder(data, check int) (reedsolomon.Encoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := geometry{data: data, check: check}
	if enc, ok := s.encoders[g]; ok {
		return enc, nil
	}
	enc, err := reedsolomon.New(data, check)
	if err != nil {
		return nil, fmt.Errorf("fec: reed-solomon (%d, %d): %w", data, check, err)
	}
	s.encoders[g] = enc
	return enc, nil
}

func (s *ReedSolomonScheme) BuildCheckSymbols(dataShards [][]byte, count int) ([][]byte, error) {
	if len(dataShards) == 0 || count <= 0 {
		return nil, fmt.Errorf("fec: cannot build %d check symbols over %d data shards", count, len(dataShards))
	}
	enc, err := s.encoder(len(dataShards), count)
	if err != nil {
		return nil, err
	}
	shardLen := len(dataShards[0])
	shards := make([][]byte, len(dataShards)+count)
	copy(shards, dataShards)
	for i := len(dataShards); i < len(shards); i++ {
		shards[i] = make([]byte, shardLen)
	}
	if err := enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("fec: encode: %w", err)
	}
	return shards[len(dataShards):], nil
}

func (s *ReedSolomonScheme) Recover(shards [][]byte, origCount int) error {
	checkCount := len(shards) - origCount
	if origCount <= 0 || checkCount <= 0 {
		return fmt.Errorf("fec: cannot recover group with %d data and %d check shards", origCount, checkCount)
	}
	enc, err := s.encoder(origCount, checkCount)
	if err != nil {
		return err
	}
	if err := enc.ReconstructData(shards); err != nil {
		return fmt.Errorf("fec: reconstruct: %w", err)
	}
	return nil
}
