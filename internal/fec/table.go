package fec

import "github.com/squallnet/squall/internal/protocol"

// Table is the fixed ring of in-flight inbound groups, keyed by the
// wrapping 1-byte identifier. The high-water mark only moves forward
// within the ring's forward window; as it advances, slots falling out
// of the acceptance backlog are swept, so by the time an identifier is
// reused its previous occupant is long gone. Every created group also
// carries a monotonically increasing epoch tag so references held
// outside the table cannot alias across a reuse.
type Table struct {
	slots      [protocol.NumGroups]*Group
	highWater  protocol.GroupID
	started    bool
	generation uint64
}

func NewTable() *Table {
	return &Table{}
}

// HighWater returns the newest accepted group identifier.
func (t *Table) HighWater() protocol.GroupID {
	return t.highWater
}

// Accept resolves the group for an inbound symbol. A stale identifier
// (fallen out of the backlog window) yields group == nil and
// stale == true. advanced reports that this symbol moved the
// high-water mark; expired holds the groups swept out by that move,
// whose undelivered data symbols are permanently lost.
func (t *Table) Accept(id protocol.GroupID) (group *Group, expired []*Group, advanced, stale bool) {
	switch {
	case !t.started:
		t.started = true
		t.highWater = id
		advanced = true
	case protocol.IsNewer(id, t.highWater):
		// slots that leave the backlog as the mark moves are done for:
		// whatever they still miss is permanently lost
		steps := protocol.Distance(t.highWater, id)
		j := t.highWater - protocol.GroupID(protocol.GroupBacklog)
		for k := 0; k < steps; k, j = k+1, j.Next() {
			if old := t.slots[j]; old != nil {
				expired = append(expired, old)
				t.slots[j] = nil
			}
		}
		t.highWater = id
		advanced = true
	case protocol.IsStale(id, t.highWater):
		return nil, nil, false, true
	}

	if t.slots[id] == nil {
		t.generation++
		t.slots[id] = NewGroup(id, t.generation)
	}
	return t.slots[id], expired, advanced, false
}

// Drain retires and returns every in-flight group; used on teardown.
func (t *Table) Drain() []*Group {
	var groups []*Group
	for i := range t.slots {
		if g := t.slots[i]; g != nil {
			groups = append(groups, g)
			t.slots[i] = nil
		}
	}
	return groups
}
