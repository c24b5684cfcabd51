package fec

import (
	"testing"

	"github.com/squallnet/squall/internal/protocol"
)

func TestTableCreatesOnFirstSighting(t *testing.T) {
	tab := NewTable()
	g, expired, advanced, stale := tab.Accept(200)
	if g == nil || stale {
		t.Fatal("first sighting must create a group")
	}
	if !advanced || len(expired) != 0 {
		t.Errorf("advanced=%v expired=%d, want true/0", advanced, len(expired))
	}
	if tab.HighWater() != 200 {
		t.Errorf("high water = %d, want 200", tab.HighWater())
	}
	g2, _, advanced, _ := tab.Accept(200)
	if g2 != g || advanced {
		t.Error("same identifier must resolve to the same group without advancing")
	}
}

func TestTableAdvanceAcrossWrap(t *testing.T) {
	tab := NewTable()
	tab.Accept(250)
	g, _, advanced, stale := tab.Accept(3) // numerically smaller, newer after wrap
	if g == nil || stale || !advanced {
		t.Fatal("wrapped identifier within window must advance")
	}
	if tab.HighWater() != 3 {
		t.Errorf("high water = %d, want 3", tab.HighWater())
	}
}

func TestTableRejectsFarForward(t *testing.T) {
	tab := NewTable()
	tab.Accept(10)
	// far "ahead" means stale-wrapped, must not advance
	g, _, advanced, stale := tab.Accept(10 + protocol.GroupWindow + 50)
	if advanced {
		t.Error("identifier beyond the forward window advanced the high-water mark")
	}
	if g != nil || !stale {
		t.Error("identifier beyond the forward window must be stale")
	}
}

func TestTableBacklogAcceptsLateSymbols(t *testing.T) {
	tab := NewTable()
	old, _, _, _ := tab.Accept(100)
	tab.Accept(110)
	g, _, advanced, stale := tab.Accept(100)
	if g != old || advanced || stale {
		t.Error("identifier within backlog must resolve to its original group")
	}
	_, _, _, stale = tab.Accept(protocol.GroupID(110 - protocol.GroupBacklog - 1))
	if !stale {
		t.Error("identifier beyond backlog must be stale")
	}
}

func TestTableSweepExpiresOldOccupants(t *testing.T) {
	tab := NewTable()
	g5, _, _, _ := tab.Accept(5)
	g5.AddData(0, []byte("x"))
	g7, _, _, _ := tab.Accept(7)

	// advancing to 70 pushes group 5 out of the backlog, group 7 stays
	_, expired, advanced, _ := tab.Accept(70)
	if !advanced {
		t.Fatal("expected advance")
	}
	if len(expired) != 1 || expired[0] != g5 {
		t.Fatalf("sweep expired %d groups, want just group 5", len(expired))
	}
	if got, _, _, stale := tab.Accept(7); got != g7 || stale {
		t.Error("group 7 should still be resolvable")
	}

	// one more advance pushes group 7 out as well
	_, expired, _, _ = tab.Accept(72)
	found := false
	for _, g := range expired {
		if g == g7 {
			found = true
		}
	}
	if !found {
		t.Error("group 7 should have expired")
	}
	if g, _, _, stale := tab.Accept(7); g != nil || !stale {
		t.Error("expired identifier must now be stale")
	}
}

func TestTableEpochsIncrease(t *testing.T) {
	tab := NewTable()
	a, _, _, _ := tab.Accept(1)
	b, _, _, _ := tab.Accept(2)
	if b.Epoch() <= a.Epoch() {
		t.Errorf("epochs not increasing: %d then %d", a.Epoch(), b.Epoch())
	}
}

func TestTableDrain(t *testing.T) {
	tab := NewTable()
	tab.Accept(1)
	tab.Accept(2)
	if got := len(tab.Drain()); got != 2 {
		t.Errorf("drained %d groups, want 2", got)
	}
	if got := len(tab.Drain()); got != 0 {
		t.Errorf("second drain returned %d groups, want 0", got)
	}
}
