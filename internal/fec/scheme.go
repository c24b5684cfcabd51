// Package fec manages code groups: accumulation of data and check
// symbols on the receive side, the fixed ring of in-flight groups, and
// the erasure-coding schemes that derive check symbols and reconstruct
// missing data symbols.
//
// Symbols are exchanged as shards of equal length. A shard is the
// symbol payload padded up to the group's shard length, with the true
// payload length in the final two bytes, so recovery restores exact
// payload boundaries.
package fec

// Scheme is the erasure-coding capability. Implementations are black
// boxes to the rest of the engine.
type Scheme interface {
	// BuildCheckSymbols derives count check shards from the group's
	// data shards. All shards must have equal length. Every produced
	// check shard is independently useful: any combination of surviving
	// data and check shards totalling len(dataShards) suffices to
	// recover the group.
	BuildCheckSymbols(dataShards [][]byte, count int) ([][]byte, error)

	// Recover reconstructs the nil entries of shards in place. shards
	// holds origCount data shards followed by the check shards; at
	// least origCount entries must be non-nil.
	Recover(shards [][]byte, origCount int) error
}
