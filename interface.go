// Package squall is a low-latency transport shim over unreliable
// datagram delivery. It never retransmits: application packets are
// grouped into code groups and interleaved with check symbols so that
// a bounded fraction of lost datagrams can be reconstructed without
// added round trips. Every datagram is authenticated and encrypted,
// and live loss/RTT estimates drive the redundancy rate.
//
// squall provides no delivery, ordering or congestion guarantees;
// those belong to layers built on top of it.
package squall

// Handler is the single capability the application injects. The engine
// calls it for everything that leaves the engine; the application owns
// the socket and the consumption of delivered data.
//
// All slices passed to Handler methods are only valid for the duration
// of the call; implementations must copy data they want to keep.
// Transmit is expected to be best-effort and non-blocking.
type Handler interface {
	// Deliver hands over one application packet. It is invoked exactly
	// once per distinct packet the peer sent, whether the packet was
	// received directly or reconstructed.
	Deliver(data []byte)

	// DeliverOOB hands over one out-of-band message, verbatim.
	DeliverOOB(data []byte)

	// Transmit sends one post-encryption datagram over the caller's
	// socket.
	Transmit(datagram []byte)
}
