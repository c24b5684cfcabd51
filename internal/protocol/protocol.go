package protocol

// GroupID identifies a code group. The identifier space is a single
// wrapping byte, so comparisons must use forward-window arithmetic
// (see IsNewer) instead of plain ordering.
type GroupID uint8

// SymbolIndex is the position of a symbol within its group: for data
// symbols the send order, for check symbols the parity index.
type SymbolIndex uint16

const (
	// NumGroups is the size of the group identifier ring.
	NumGroups = 256

	// GroupWindow is the forward acceptance window. An identifier is
	// considered newer than the high-water mark only if it lies at most
	// this far ahead on the ring.
	GroupWindow = NumGroups / 2

	// GroupBacklog is how far behind the high-water mark a group may
	// fall and still accept late symbols. Anything older is stale.
	GroupBacklog = 64
)

// MaxPacketBufferSize is the size of packet buffers drawn from the
// pool: large enough for a max payload plus envelope and seal overhead
// while staying under a common 1500-byte MTU.
const MaxPacketBufferSize = 1452

// DefaultMaxPayloadSize is the default application payload limit.
const DefaultMaxPayloadSize = 1350

// MaxGroupSize bounds how many data symbols a single group may hold;
// a group reaching it is swapped out early. Together with
// MaxGroupSymbols it keeps data plus check symbols inside the 256-
// symbol field of the erasure code.
const MaxGroupSize = 240

// MaxGroupSymbols caps a group's data plus check symbols.
const MaxGroupSymbols = 256

// Next returns the identifier following id on the ring.
func (id GroupID) Next() GroupID {
	return id + 1
}

// Distance returns the forward distance from 'from' to 'to' on the
// ring, in [0, NumGroups).
func Distance(from, to GroupID) int {
	return int(uint8(to - from))
}

// IsNewer reports whether id is ahead of the high-water mark. An
// identifier that is numerically smaller can still be newer after a
// wrap; an identifier far ahead is treated as stale-wrapped instead.
func IsNewer(id, highWater GroupID) bool {
	d := Distance(highWater, id)
	return d > 0 && d <= GroupWindow
}

// IsStale reports whether id has fallen out of the backlog behind the
// high-water mark and must be rejected.
func IsStale(id, highWater GroupID) bool {
	if id == highWater || IsNewer(id, highWater) {
		return false
	}
	return Distance(id, highWater) > GroupBacklog
}
