package squall

import (
	"time"

	"go.uber.org/atomic"
)

// Stats is a point-in-time snapshot of session counters and estimates.
type Stats struct {
	DatagramsSent     uint64
	DatagramsReceived uint64

	PacketsSent      uint64
	PacketsDelivered uint64
	PacketsRecovered uint64
	PacketsLost      uint64

	CheckSymbolsSent uint64
	DecryptFailures  uint64
	StaleDrops       uint64
	EncodeSkips      uint64

	LossEstimate float64
	RTTEstimate  time.Duration
	SwapInterval time.Duration

	// CheckBudget is the check-symbol count granted to the most
	// recently sealed group.
	CheckBudget int
}

type sessionStats struct {
	datagramsSent     atomic.Uint64
	datagramsReceived atomic.Uint64

	packetsSent      atomic.Uint64
	packetsDelivered atomic.Uint64
	packetsRecovered atomic.Uint64
	packetsLost      atomic.Uint64

	checkSymbolsSent atomic.Uint64
	decryptFailures  atomic.Uint64
	staleDrops       atomic.Uint64
	encodeSkips      atomic.Uint64
}

func (c *sessionStats) snapshot() Stats {
	return Stats{
		DatagramsSent:     c.datagramsSent.Load(),
		DatagramsReceived: c.datagramsReceived.Load(),
		PacketsSent:       c.packetsSent.Load(),
		PacketsDelivered:  c.packetsDelivered.Load(),
		PacketsRecovered:  c.packetsRecovered.Load(),
		PacketsLost:       c.packetsLost.Load(),
		CheckSymbolsSent:  c.checkSymbolsSent.Load(),
		DecryptFailures:   c.decryptFailures.Load(),
		StaleDrops:        c.staleDrops.Load(),
		EncodeSkips:       c.encodeSkips.Load(),
	}
}
