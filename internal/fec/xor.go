package fec

import "fmt"

// XORScheme derives a single parity shard by XOR-ing the data shards.
// It can repair exactly one missing symbol per group, so it is only
// used for groups whose check budget is one; larger budgets take the
// Reed-Solomon path.
type XORScheme struct{}

func NewXORScheme() *XORScheme {
	return &XORScheme{}
}

func (*XORScheme) BuildCheckSymbols(dataShards [][]byte, count int) ([][]byte, error) {
	if count != 1 {
		return nil, fmt.Errorf("fec: xor scheme produces exactly one check symbol, asked for %d", count)
	}
	if len(dataShards) == 0 {
		return nil, fmt.Errorf("fec: cannot build a check symbol over an empty group")
	}
	parity := make([]byte, len(dataShards[0]))
	for _, shard := range dataShards {
		if len(shard) != len(parity) {
			return nil, fmt.Errorf("fec: shard length mismatch: %d != %d", len(shard), len(parity))
		}
		for i, b := range shard {
			parity[i] ^= b
		}
	}
	return [][]byte{parity}, nil
}

func (*XORScheme) Recover(shards [][]byte, origCount int) error {
	if len(shards) != origCount+1 {
		return fmt.Errorf("fec: xor scheme expects exactly one check shard, got %d", len(shards)-origCount)
	}
	missing := -1
	for i, shard := range shards {
		if shard != nil {
			continue
		}
		if missing >= 0 {
			return fmt.Errorf("fec: xor scheme cannot repair more than one missing shard")
		}
		missing = i
	}
	if missing < 0 || missing == origCount {
		// nothing missing, or only the parity shard is
		return nil
	}
	var recovered []byte
	for i, shard := range shards {
		if i == missing {
			continue
		}
		if recovered == nil {
			recovered = make([]byte, len(shard))
		}
		for j, b := range shard {
			recovered[j] ^= b
		}
	}
	shards[missing] = recovered
	return nil
}
