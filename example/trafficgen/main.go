// Command trafficgen pushes paced traffic through a squall channel over
// UDP. Run the responder first, then point the initiator at it:
//
//	trafficgen -listen :4242
//	trafficgen -dial 127.0.0.1:4242 -rate 500 -size 512
//
// Both sides print periodic statistics, so running the initiator
// through a lossy link (tc netem or similar) shows recovery at work.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/squallnet/squall"
)

const demoKey = "8e8cf02b51e3c2f8a4e6d7b90f13b5d2aef8c4a1d9b07e6f3c2a18095b4d6e7f"

func main() {
	var (
		listen   = flag.String("listen", "", "respond on this UDP address")
		dial     = flag.String("dial", "", "initiate toward this UDP address")
		keyHex   = flag.String("key", demoKey, "32-byte session key, hex encoded")
		pps      = flag.Float64("rate", 200, "packets per second to generate")
		size     = flag.Int("size", 256, "payload size in bytes")
		duration = flag.Duration("duration", 30*time.Second, "how long the initiator generates traffic")
	)
	flag.Parse()

	key, err := hex.DecodeString(*keyHex)
	if err != nil {
		log.Fatalf("decoding key: %v", err)
	}

	switch {
	case *listen != "":
		err = respond(*listen, key)
	case *dial != "":
		err = initiate(*dial, key, *pps, *size, *duration)
	default:
		flag.Usage()
		return
	}
	if err != nil {
		log.Fatal(err)
	}
}

// udpHandler bridges a session to a UDP socket. The peer address is
// pinned by the first datagram on the responder side.
type udpHandler struct {
	conn *net.UDPConn

	mu        sync.Mutex
	peer      *net.UDPAddr
	delivered int
	oob       int
}

func (h *udpHandler) Deliver(data []byte) {
	h.mu.Lock()
	h.delivered++
	h.mu.Unlock()
}

func (h *udpHandler) DeliverOOB(data []byte) {
	h.mu.Lock()
	h.oob++
	h.mu.Unlock()
	fmt.Printf("oob: %s\n", data)
}

func (h *udpHandler) Transmit(datagram []byte) {
	h.mu.Lock()
	peer := h.peer
	h.mu.Unlock()
	if peer == nil {
		return
	}
	if _, err := h.conn.WriteToUDP(datagram, peer); err != nil {
		log.Printf("transmit: %v", err)
	}
}

func (h *udpHandler) setPeer(addr *net.UDPAddr) {
	h.mu.Lock()
	h.peer = addr
	h.mu.Unlock()
}

func (h *udpHandler) deliveredCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.delivered
}

// pump reads datagrams off the socket into the session until the
// socket closes.
func pump(sess *squall.Session, conn *net.UDPConn, h *udpHandler) {
	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		h.setPeer(addr)
		sess.Recv(buf[:n])
	}
}

func tickLoop(sess *squall.Session, done <-chan struct{}) {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			sess.Tick()
		case <-done:
			return
		}
	}
}

func respond(addr string, key []byte) error {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	h := &udpHandler{conn: conn}
	sess, err := squall.NewSession(key, squall.Config{Handler: h})
	if err != nil {
		return err
	}
	defer sess.Close()

	done := make(chan struct{})
	defer close(done)
	go tickLoop(sess, done)
	go func() {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				st := sess.Stats()
				fmt.Printf("delivered=%d recovered=%d lost=%d\n",
					h.deliveredCount(), st.PacketsRecovered, st.PacketsLost)
			case <-done:
				return
			}
		}
	}()

	log.Printf("responding on %s", addr)
	pump(sess, conn, h)
	return nil
}

func initiate(addr string, key []byte, pps float64, size int, duration time.Duration) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	h := &udpHandler{conn: conn}
	h.setPeer(raddr)
	sess, err := squall.NewSession(key, squall.Config{Initiator: true, Handler: h})
	if err != nil {
		return err
	}
	defer sess.Close()

	done := make(chan struct{})
	defer close(done)
	go tickLoop(sess, done)
	go pump(sess, conn, h)

	if err := sess.SendOOB([]byte("trafficgen starting")); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()
	limiter := rate.NewLimiter(rate.Limit(pps), 1)
	payload := make([]byte, size)
	var sent int
	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		copy(payload, fmt.Sprintf("packet %d", sent))
		if err := sess.Send(payload); err != nil {
			log.Printf("send: %v", err)
			continue
		}
		sent++
	}

	// let the last group's check symbols flush
	time.Sleep(500 * time.Millisecond)
	st := sess.Stats()
	fmt.Printf("sent=%d datagrams=%d checks=%d loss=%.4f rtt=%v\n",
		sent, st.DatagramsSent, st.CheckSymbolsSent, st.LossEstimate, st.RTTEstimate)
	return nil
}
