package protocol

import "testing"

func TestIsNewer(t *testing.T) {
	tests := []struct {
		name      string
		id        GroupID
		highWater GroupID
		want      bool
	}{
		{"equal is not newer", 10, 10, false},
		{"immediately ahead", 11, 10, true},
		{"window edge", GroupID(10 + GroupWindow), 10, true},
		{"just past window", GroupID(10 + GroupWindow + 1), 10, false},
		{"behind", 9, 10, false},
		{"wraparound ahead", 3, 250, true},
		{"wraparound far ahead", 123, 250, false},
		{"wrapped old id is not newer", 250, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNewer(tt.id, tt.highWater); got != tt.want {
				t.Errorf("IsNewer(%d, %d) = %v, want %v", tt.id, tt.highWater, got, tt.want)
			}
		})
	}
}

func TestIsStale(t *testing.T) {
	tests := []struct {
		name      string
		id        GroupID
		highWater GroupID
		want      bool
	}{
		{"high water itself", 10, 10, false},
		{"within backlog", GroupID(100 - GroupBacklog), 100, false},
		{"just past backlog", GroupID(100 - GroupBacklog - 1), 100, true},
		{"newer is never stale", 101, 100, false},
		{"backlog across wrap", 250, GroupID((250 + GroupBacklog) % NumGroups), false},
		{"stale across wrap", 249, GroupID((250 + GroupBacklog) % NumGroups), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStale(tt.id, tt.highWater); got != tt.want {
				t.Errorf("IsStale(%d, %d) = %v, want %v", tt.id, tt.highWater, got, tt.want)
			}
		})
	}
}

func TestDistanceWraps(t *testing.T) {
	if d := Distance(250, 3); d != 9 {
		t.Errorf("Distance(250, 3) = %d, want 9", d)
	}
	if d := Distance(3, 250); d != 247 {
		t.Errorf("Distance(3, 250) = %d, want 247", d)
	}
}
