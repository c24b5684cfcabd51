package squall

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sync/errgroup"

	"github.com/squallnet/squall/internal/protocol"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingHandler keeps copies of everything delivered and forwards
// transmissions to a configurable sink.
type recordingHandler struct {
	mu        sync.Mutex
	delivered [][]byte
	oob       [][]byte
	transmit  func([]byte)
}

func (h *recordingHandler) Deliver(p []byte) {
	h.mu.Lock()
	h.delivered = append(h.delivered, append([]byte(nil), p...))
	h.mu.Unlock()
}

func (h *recordingHandler) DeliverOOB(p []byte) {
	h.mu.Lock()
	h.oob = append(h.oob, append([]byte(nil), p...))
	h.mu.Unlock()
}

func (h *recordingHandler) Transmit(d []byte) {
	h.mu.Lock()
	sink := h.transmit
	h.mu.Unlock()
	if sink != nil {
		sink(d)
	}
}

func (h *recordingHandler) setTransmit(sink func([]byte)) {
	h.mu.Lock()
	h.transmit = sink
	h.mu.Unlock()
}

func (h *recordingHandler) deliveredCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.delivered)
}

func (h *recordingHandler) deliveredCopy() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.delivered))
	copy(out, h.delivered)
	return out
}

func (h *recordingHandler) oobCopy() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.oob))
	copy(out, h.oob)
	return out
}

var _ = Describe("Session", func() {
	var (
		key      []byte
		clk      *fakeClock
		aHandler *recordingHandler
		bHandler *recordingHandler
		a, b     *Session
	)

	newSession := func(initiator bool, h *recordingHandler, extra func(*Config)) *Session {
		cfg := Config{
			Initiator: initiator,
			Handler:   h,
			Clock:     clk.Now,
		}
		if extra != nil {
			extra(&cfg)
		}
		s, err := NewSession(key, cfg)
		Expect(err).ToNot(HaveOccurred())
		return s
	}

	// connect wires the two sessions back to back. dropAtoB decides,
	// per datagram index on the a-to-b direction, whether the network
	// eats it; the reverse direction is lossless.
	connect := func(dropAtoB func(i int) bool) {
		var aToB int
		var mu sync.Mutex
		aHandler.setTransmit(func(d []byte) {
			mu.Lock()
			i := aToB
			aToB++
			mu.Unlock()
			if dropAtoB != nil && dropAtoB(i) {
				return
			}
			b.Recv(d)
		})
		bHandler.setTransmit(func(d []byte) {
			a.Recv(d)
		})
	}

	payloads := func(n int) [][]byte {
		out := make([][]byte, n)
		for i := range out {
			out[i] = []byte(fmt.Sprintf("payload-%04d", i))
		}
		return out
	}

	BeforeEach(func() {
		key = bytes.Repeat([]byte{0x42}, 32)
		clk = newFakeClock()
		aHandler = &recordingHandler{}
		bHandler = &recordingHandler{}
		a = newSession(true, aHandler, nil)
		b = newSession(false, bHandler, nil)
	})

	AfterEach(func() {
		a.Close()
		b.Close()
	})

	It("delivers payloads in order over a lossless link", func() {
		connect(nil)
		sent := payloads(25)
		for _, p := range sent {
			Expect(a.Send(p)).To(Succeed())
		}
		Expect(bHandler.deliveredCopy()).To(Equal(sent))
		Expect(b.Stats().PacketsDelivered).To(Equal(uint64(25)))
		Expect(b.Stats().PacketsRecovered).To(BeZero())
	})

	It("delivers each payload exactly once despite duplication", func() {
		aHandler.setTransmit(func(d []byte) {
			b.Recv(d)
			b.Recv(d)
		})
		sent := payloads(10)
		for _, p := range sent {
			Expect(a.Send(p)).To(Succeed())
		}
		Expect(bHandler.deliveredCopy()).To(Equal(sent))
	})

	It("recovers lost payloads from check symbols", func() {
		// the first ten a-to-b datagrams carry the ten data symbols;
		// the network eats two of them
		connect(func(i int) bool { return i == 2 || i == 6 })
		sent := payloads(10)
		for _, p := range sent {
			Expect(a.Send(p)).To(Succeed())
		}
		Expect(bHandler.deliveredCount()).To(Equal(8))

		// swap the group out and keep ticking until the encoder's
		// check symbols made it across and repaired the gap
		clk.Advance(time.Second)
		Eventually(func() int {
			a.Tick()
			return bHandler.deliveredCount()
		}).Should(Equal(10))
		Expect(bHandler.deliveredCopy()).To(ConsistOf(sent))
		Expect(b.Stats().PacketsRecovered).To(Equal(uint64(2)))
	})

	It("routes out-of-band messages verbatim and uncoded", func() {
		connect(nil)
		Expect(a.SendOOB([]byte("ping hello"))).To(Succeed())
		Expect(bHandler.oobCopy()).To(Equal([][]byte{[]byte("ping hello")}))
		Expect(bHandler.deliveredCount()).To(BeZero())
		Expect(b.Stats().PacketsDelivered).To(BeZero())
	})

	It("feeds recovered losses back into the sender's loss estimate", func() {
		// every fifth a-to-b datagram disappears; the budget covers it,
		// so the losses surface as recoveries in b's reports
		connect(func(i int) bool { return i%5 == 3 })
		base := a.Stats().LossEstimate
		for round := 0; round < 8; round++ {
			for _, p := range payloads(10) {
				Expect(a.Send(p)).To(Succeed())
			}
			clk.Advance(time.Second)
			Eventually(func() int {
				a.Tick()
				return bHandler.deliveredCount()
			}).Should(Equal((round + 1) * 10))
			b.Tick() // flush the round's tallies back
		}
		Expect(a.Stats().LossEstimate).To(BeNumerically(">", base))
		Expect(b.Stats().PacketsRecovered).ToNot(BeZero())
	})

	It("derives the RTT estimate from statistics reports", func() {
		// pump the link by hand so time can pass in flight
		var aOut, bOut [][]byte
		var mu sync.Mutex
		aHandler.setTransmit(func(d []byte) {
			mu.Lock()
			aOut = append(aOut, append([]byte(nil), d...))
			mu.Unlock()
		})
		bHandler.setTransmit(func(d []byte) {
			mu.Lock()
			bOut = append(bOut, append([]byte(nil), d...))
			mu.Unlock()
		})

		Expect(a.Stats().RTTEstimate).To(Equal(100 * time.Millisecond))
		Expect(a.Send([]byte("probe"))).To(Succeed())
		clk.Advance(250 * time.Millisecond)
		for _, d := range aOut {
			Expect(b.Recv(d)).To(Succeed())
		}
		clk.Advance(250 * time.Millisecond)
		for _, d := range bOut {
			Expect(a.Recv(d)).To(Succeed())
		}
		// one 500ms sample folded into the smoothed estimate
		Expect(a.Stats().RTTEstimate).To(Equal(150 * time.Millisecond))
	})

	It("rejects oversized payloads", func() {
		connect(nil)
		big := make([]byte, MaxAllowedPayloadSize+1)
		Expect(a.Send(big)).To(MatchError(ErrPayloadTooLarge))
		Expect(a.SendOOB(big)).To(MatchError(ErrPayloadTooLarge))
	})

	It("rejects sends once the buffer pool is exhausted and recovers", func() {
		small := newSession(true, aHandler, func(cfg *Config) {
			cfg.MaxBufferedPackets = protocol.MaxGroupSize
		})
		defer small.Close()
		aHandler.setTransmit(func(d []byte) {})

		var sent int
		for {
			err := small.Send([]byte("fill"))
			if err != nil {
				Expect(err).To(MatchError(ErrPoolExhausted))
				break
			}
			sent++
			Expect(sent).To(BeNumerically("<", protocol.MaxGroupSize))
		}

		// swapping hands the buffered group to the encoder, which
		// returns the buffers once the check symbols are built
		clk.Advance(time.Second)
		small.Tick()
		Eventually(func() error {
			return small.Send([]byte("after drain"))
		}).Should(Succeed())
	})

	It("is safe under concurrent senders", func() {
		connect(nil)
		const senders, perSender = 4, 50
		var g errgroup.Group
		for i := 0; i < senders; i++ {
			i := i
			g.Go(func() error {
				for j := 0; j < perSender; j++ {
					if err := a.Send([]byte(fmt.Sprintf("s%d-%d", i, j))); err != nil {
						return err
					}
				}
				return nil
			})
		}
		Expect(g.Wait()).To(Succeed())
		Expect(bHandler.deliveredCount()).To(Equal(senders * perSender))
	})

	Describe("Close", func() {
		It("is idempotent and fails subsequent calls", func() {
			connect(nil)
			Expect(a.Send([]byte("x"))).To(Succeed())
			Expect(a.Close()).To(Succeed())
			Expect(a.Close()).To(Succeed())
			Expect(a.Send([]byte("y"))).To(MatchError(ErrSessionClosed))
			Expect(a.SendOOB([]byte("y"))).To(MatchError(ErrSessionClosed))
			Expect(a.Recv([]byte("anything"))).To(MatchError(ErrSessionClosed))
		})

		It("leaves statistics readable", func() {
			connect(nil)
			Expect(a.Send([]byte("x"))).To(Succeed())
			Expect(a.Close()).To(Succeed())
			Expect(a.Stats().PacketsSent).To(Equal(uint64(1)))
		})
	})

	Describe("configuration", func() {
		It("requires a handler", func() {
			_, err := NewSession(key, Config{Clock: clk.Now})
			Expect(err).To(HaveOccurred())
		})

		It("rejects short keys", func() {
			_, err := NewSession(key[:16], Config{Handler: aHandler, Clock: clk.Now})
			Expect(err).To(HaveOccurred())
		})

		It("rejects payload limits beyond a packet buffer", func() {
			_, err := NewSession(key, Config{
				Handler:        aHandler,
				Clock:          clk.Now,
				MaxPayloadSize: MaxAllowedPayloadSize + 1,
			})
			Expect(err).To(HaveOccurred())
		})
	})
})
