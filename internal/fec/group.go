package fec

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/squallnet/squall/internal/protocol"
)

// Group accumulates the symbols of one inbound code group until it is
// recovered, completed, or swept out of the ring. The epoch tag makes
// a reused ring identifier distinguishable from its predecessor.
type Group struct {
	id    protocol.GroupID
	epoch uint64

	data  map[protocol.SymbolIndex][]byte
	check map[protocol.SymbolIndex][]byte

	// learned from the first check symbol; zero while unknown
	origCount  int
	checkCount int
	shardLen   int

	maxIndex int
	retired  bool
}

func NewGroup(id protocol.GroupID, epoch uint64) *Group {
	return &Group{
		id:       id,
		epoch:    epoch,
		data:     make(map[protocol.SymbolIndex][]byte),
		check:    make(map[protocol.SymbolIndex][]byte),
		maxIndex: -1,
	}
}

func (g *Group) ID() protocol.GroupID { return g.id }
func (g *Group) Epoch() uint64        { return g.epoch }

// CheckCount is the group's check-symbol count, zero until a check
// symbol revealed the geometry.
func (g *Group) CheckCount() int { return g.checkCount }

// AddData records a data symbol. For symbols new to the group it
// returns the group-owned copy of the payload and true; duplicates and
// symbols arriving after retirement return nil, false.
func (g *Group) AddData(idx protocol.SymbolIndex, payload []byte) ([]byte, bool) {
	if int(idx) > g.maxIndex {
		g.maxIndex = int(idx)
	}
	if g.retired {
		return nil, false
	}
	if _, ok := g.data[idx]; ok {
		return nil, false
	}
	stored := append([]byte(nil), payload...)
	g.data[idx] = stored
	return stored, true
}

// AddCheck records a check symbol and the group geometry it carries.
// Symbols disagreeing with already-learned geometry are ignored.
func (g *Group) AddCheck(idx protocol.SymbolIndex, shard []byte, origCount, checkCount int) bool {
	if g.retired {
		return false
	}
	if g.origCount == 0 {
		g.origCount = origCount
		g.checkCount = checkCount
		g.shardLen = len(shard)
	} else if origCount != g.origCount || checkCount != g.checkCount || len(shard) != g.shardLen {
		return false
	}
	if _, ok := g.check[idx]; ok {
		return false
	}
	g.check[idx] = append([]byte(nil), shard...)
	return true
}

// Complete reports whether every data symbol arrived directly.
func (g *Group) Complete() bool {
	return g.origCount > 0 && len(g.data) >= g.origCount
}

// Recoverable reports whether enough independent symbols survived to
// reconstruct the missing data symbols.
func (g *Group) Recoverable() bool {
	if g.origCount == 0 || g.retired {
		return false
	}
	return len(g.data) < g.origCount && len(g.data)+len(g.check) >= g.origCount
}

// Recover reconstructs the missing data symbols and returns their
// payloads in ascending symbol order. Symbols that arrived directly
// are not returned, so each original reaches the application exactly
// once across both delivery paths.
func (g *Group) Recover(scheme Scheme) ([][]byte, error) {
	if !g.Recoverable() {
		return nil, fmt.Errorf("fec: group %d is not recoverable (%d data, %d check, %d needed)",
			g.id, len(g.data), len(g.check), g.origCount)
	}
	shards := make([][]byte, g.origCount+g.checkCount)
	var missing []int
	for i := 0; i < g.origCount; i++ {
		payload, ok := g.data[protocol.SymbolIndex(i)]
		if !ok {
			missing = append(missing, i)
			continue
		}
		if len(payload) > g.shardLen-shardSuffixLen {
			return nil, fmt.Errorf("fec: group %d data symbol %d longer than shard", g.id, i)
		}
		shards[i] = BuildShard(payload, g.shardLen)
	}
	for idx, shard := range g.check {
		shards[g.origCount+int(idx)] = shard
	}
	if err := scheme.Recover(shards, g.origCount); err != nil {
		return nil, err
	}
	slices.Sort(missing)
	recovered := make([][]byte, 0, len(missing))
	for _, i := range missing {
		payload, err := ShardPayload(shards[i])
		if err != nil {
			return nil, err
		}
		recovered = append(recovered, payload)
	}
	return recovered, nil
}

// Retire marks the group finished; later symbols are ignored.
func (g *Group) Retire() {
	g.retired = true
	g.data = nil
	g.check = nil
}

func (g *Group) Retired() bool { return g.retired }

// MissingCount is how many data symbols never reached the application,
// assuming the group is abandoned now.
func (g *Group) MissingCount() int {
	if g.retired {
		return 0
	}
	if g.origCount > 0 {
		return g.origCount - len(g.data)
	}
	return g.maxIndex + 1 - len(g.data)
}

// ExpectedCount is the number of symbols the peer sent for this group,
// as far as this side can tell: exact once a check symbol revealed the
// geometry, otherwise a lower bound from the highest data index seen.
func (g *Group) ExpectedCount() uint32 {
	if g.origCount > 0 {
		return uint32(g.origCount + g.checkCount)
	}
	return uint32(g.maxIndex + 1)
}
