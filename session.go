package squall

import (
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/squallnet/squall/internal/congestion"
	"github.com/squallnet/squall/internal/crypto"
	"github.com/squallnet/squall/internal/fec"
	"github.com/squallnet/squall/internal/protocol"
	"github.com/squallnet/squall/internal/wire"
)

// Session is one endpoint of a squall channel. The caller pumps it
// from both sides: Send/SendOOB with application payloads, Recv with
// datagrams read off the socket, and Tick at a steady cadence (a few
// times per swap interval) to drive group swaps and statistics
// reports.
//
// All methods are safe for concurrent use. Handler callbacks are
// invoked without internal locks held, so a Handler may call back into
// the session (or into a peer session in the same process) freely.
type Session struct {
	cfg  Config
	log  logging.LeveledLogger
	aead *crypto.AEAD
	pool *wire.BufferPool
	enc  *encoder

	mu      sync.Mutex
	closed  bool
	sendSeq uint64

	// outbound group in progress
	group      protocol.GroupID
	pending    [][]byte
	lastSwap   time.Time
	lastBudget int
	sentAt     [protocol.NumGroups]time.Time

	// inbound groups and the receive tallies reported back to the peer
	table     *fec.Table
	rs        fec.Scheme
	xor       fec.Scheme
	tallySeen uint32
	tallyCnt  uint32
	lastPong  time.Time

	rate *congestion.RateController

	// scratch reused under mu; sealed copies are taken before unlock
	envBuf  []byte
	openBuf []byte

	stats sessionStats
}

// NewSession opens a session over the given 32-byte key. The two ends
// of a channel must share the key and use opposite Initiator values.
func NewSession(key []byte, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	aead, err := crypto.New(key, cfg.Initiator)
	if err != nil {
		return nil, err
	}
	log := cfg.LoggerFactory.NewLogger("squall")
	pool := wire.NewBufferPool(cfg.MaxBufferedPackets)
	now := cfg.Clock()
	return &Session{
		cfg:      cfg,
		log:      log,
		aead:     aead,
		pool:     pool,
		enc:      newEncoder(pool, cfg.EncoderQueueLen, log),
		lastSwap: now,
		table:    fec.NewTable(),
		rs:       fec.NewReedSolomonScheme(),
		xor:      fec.NewXORScheme(),
		lastPong: now,
		rate:     congestion.NewRateController(cfg.TargetLoss, cfg.MinLoss, cfg.MinDelay, cfg.MaxDelay),
		envBuf:   make([]byte, 0, protocol.MaxPacketBufferSize),
		openBuf:  make([]byte, 0, protocol.MaxPacketBufferSize),
	}, nil
}

// Send queues payload into the current code group and transmits it
// immediately. The payload is copied; the caller keeps ownership.
func (s *Session) Send(payload []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if len(payload) > s.cfg.MaxPayloadSize {
		s.mu.Unlock()
		return ErrPayloadTooLarge
	}

	// the group keeps its own copy until the check symbols are encoded
	stored, err := s.pool.Get()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	stored = append(stored, payload...)

	idx := protocol.SymbolIndex(len(s.pending))
	datagram, err := s.seal(wire.AppendData(s.envBuf[:0], s.group, idx, payload))
	if err != nil {
		s.pool.Put(stored)
		s.mu.Unlock()
		return err
	}
	if len(s.pending) == 0 {
		s.sentAt[s.group] = s.cfg.Clock()
	}
	s.pending = append(s.pending, stored)
	s.stats.packetsSent.Inc()
	if len(s.pending) >= protocol.MaxGroupSize {
		s.swapLocked(s.cfg.Clock())
	}

	out := s.drainChecksLocked([][]byte{datagram})
	s.mu.Unlock()
	s.transmit(out)
	return nil
}

// SendOOB transmits payload outside any code group: sealed like
// everything else but never counted, coded or repaired.
func (s *Session) SendOOB(payload []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if len(payload) > s.cfg.MaxPayloadSize {
		s.mu.Unlock()
		return ErrPayloadTooLarge
	}
	datagram, err := s.seal(wire.AppendOOB(s.envBuf[:0], payload))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	s.transmit([][]byte{datagram})
	return nil
}

// Recv processes one datagram read off the socket. Datagrams that fail
// authentication or parsing are dropped and counted toward the loss
// report; the returned error is informational.
func (s *Session) Recv(datagram []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.stats.datagramsReceived.Inc()

	plain, err := s.aead.Open(s.openBuf[:0], datagram)
	if err != nil {
		s.stats.decryptFailures.Inc()
		s.tallyCnt++
		s.mu.Unlock()
		return err
	}
	env, err := wire.ParseEnvelope(plain)
	if err != nil {
		s.tallyCnt++
		s.mu.Unlock()
		return err
	}

	var (
		out        [][]byte
		deliveries [][]byte
		oob        []byte
		hasOOB     bool
	)
	switch env.Kind {
	case wire.KindData:
		deliveries, out = s.handleDataLocked(env, out)
	case wire.KindCheck:
		deliveries, out = s.handleCheckLocked(env, out)
	case wire.KindOOB:
		oob, hasOOB = append([]byte(nil), env.Payload...), true
	case wire.KindPong:
		s.handlePongLocked(env)
	}
	s.mu.Unlock()

	for _, p := range deliveries {
		s.stats.packetsDelivered.Inc()
		s.cfg.Handler.Deliver(p)
	}
	if hasOOB {
		s.cfg.Handler.DeliverOOB(oob)
	}
	s.transmit(out)
	return nil
}

// Tick drives the timed parts of the engine: swapping out a group once
// the swap interval elapsed, transmitting finished check symbols, and
// flushing receive tallies when the inbound side has gone quiet.
func (s *Session) Tick() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	now := s.cfg.Clock()
	if len(s.pending) > 0 && now.Sub(s.lastSwap) >= s.rate.Interval() {
		s.swapLocked(now)
	}
	out := s.drainChecksLocked(nil)
	if s.tallyCnt > 0 && now.Sub(s.lastPong) >= s.rate.Interval() {
		out = s.appendPongLocked(out)
	}
	s.mu.Unlock()
	s.transmit(out)
}

// Close tears the session down: the in-progress group is abandoned,
// in-flight inbound groups are written off as lost, and the cipher
// state is wiped. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, b := range s.pending {
		s.pool.Put(b)
	}
	s.pending = nil
	for _, g := range s.table.Drain() {
		if missing := g.MissingCount(); missing > 0 {
			s.stats.packetsLost.Add(uint64(missing))
		}
		g.Retire()
	}
	s.aead.Wipe()
	s.mu.Unlock()
	s.enc.stop()
	return nil
}

// Stats returns a snapshot of the session counters and estimates.
func (s *Session) Stats() Stats {
	st := s.stats.snapshot()
	s.mu.Lock()
	st.LossEstimate = s.rate.LossEstimate()
	st.RTTEstimate = s.rate.DelayEstimate()
	st.SwapInterval = s.rate.Interval()
	st.CheckBudget = s.lastBudget
	s.mu.Unlock()
	return st
}

// seal encrypts an envelope into a pooled buffer. locked.
func (s *Session) seal(envelope []byte) ([]byte, error) {
	buf, err := s.pool.Get()
	if err != nil {
		return nil, err
	}
	s.sendSeq++
	datagram, err := s.aead.Seal(buf, envelope, s.sendSeq)
	if err != nil {
		s.pool.Put(buf)
		return nil, err
	}
	return datagram, nil
}

// transmit hands sealed datagrams to the Handler and returns the
// buffers. Called without the session lock.
func (s *Session) transmit(out [][]byte) {
	for _, d := range out {
		s.stats.datagramsSent.Inc()
		s.cfg.Handler.Transmit(d)
		s.pool.Put(d)
	}
}

// swapLocked seals the in-progress group: the payloads go to the
// encode worker with the budget the rate controller grants, and the
// next group opens. locked.
func (s *Session) swapLocked(now time.Time) {
	if len(s.pending) > 0 {
		job := encodeJob{
			group:    s.group,
			payloads: s.pending,
			budget:   s.rate.CheckSymbolBudget(len(s.pending)),
		}
		if !s.enc.enqueue(job) {
			s.stats.encodeSkips.Inc()
			s.log.Debugf("group %d: encoder backlogged, sending without check symbols", job.group)
		}
		s.lastBudget = job.budget
		s.pending = nil
		s.group = s.group.Next()
	}
	s.lastSwap = now
	s.rate.CalculateInterval()
}

// drainChecksLocked seals every finished check symbol the encoder has
// ready. locked.
func (s *Session) drainChecksLocked(out [][]byte) [][]byte {
	for {
		sym, ok := s.enc.next()
		if !ok {
			return out
		}
		env := wire.AppendCheck(s.envBuf[:0], sym.group, sym.index, sym.origCount, sym.checkCount, sym.shard)
		datagram, err := s.seal(env)
		if err != nil {
			s.enc.requeue(sym)
			return out
		}
		s.stats.checkSymbolsSent.Inc()
		out = append(out, datagram)
	}
}

// appendPongLocked seals the accumulated receive tallies into a pong
// carrying the current inbound high-water group. The tallies reset
// only once the pong is actually on its way out. locked.
func (s *Session) appendPongLocked(out [][]byte) [][]byte {
	env := wire.AppendPong(s.envBuf[:0], s.table.HighWater(), s.tallySeen, s.tallyCnt)
	datagram, err := s.seal(env)
	if err != nil {
		return out
	}
	s.tallySeen, s.tallyCnt = 0, 0
	s.lastPong = s.cfg.Clock()
	return append(out, datagram)
}

func (s *Session) handleDataLocked(env *wire.Envelope, out [][]byte) ([][]byte, [][]byte) {
	var deliveries [][]byte
	if int(env.Index) >= protocol.MaxGroupSize {
		s.tallyCnt++
		return nil, out
	}
	group, expired, advanced, stale := s.table.Accept(env.Group)
	s.accountExpiredLocked(expired)
	if stale {
		s.stats.staleDrops.Inc()
		return nil, out
	}
	s.tallySeen++
	s.tallyCnt++
	if stored, fresh := group.AddData(env.Index, env.Payload); fresh {
		deliveries = append(deliveries, stored)
	}
	deliveries = s.tryRecoverLocked(group, deliveries)
	if advanced {
		out = s.appendPongLocked(out)
	}
	return deliveries, out
}

func (s *Session) handleCheckLocked(env *wire.Envelope, out [][]byte) ([][]byte, [][]byte) {
	if int(env.OrigCount) > protocol.MaxGroupSize ||
		int(env.OrigCount)+int(env.CheckCount) > protocol.MaxGroupSymbols {
		s.tallyCnt++
		return nil, out
	}
	group, expired, advanced, stale := s.table.Accept(env.Group)
	s.accountExpiredLocked(expired)
	if stale {
		s.stats.staleDrops.Inc()
		return nil, out
	}
	s.tallySeen++
	s.tallyCnt++
	group.AddCheck(env.Index, env.Payload, int(env.OrigCount), int(env.CheckCount))
	deliveries := s.tryRecoverLocked(group, nil)
	if advanced {
		out = s.appendPongLocked(out)
	}
	return deliveries, out
}

func (s *Session) handlePongLocked(env *wire.Envelope) {
	if stamp := s.sentAt[env.Group]; !stamp.IsZero() {
		s.rate.UpdateRTT(s.cfg.Clock().Sub(stamp))
		s.sentAt[env.Group] = time.Time{}
	}
	s.rate.UpdateLoss(env.Seen, env.Count)
	s.rate.CalculateInterval()
}

// tryRecoverLocked retires a group once every data symbol is
// accounted for, reconstructing the missing ones if enough check
// symbols arrived. locked.
func (s *Session) tryRecoverLocked(g *fec.Group, deliveries [][]byte) [][]byte {
	if g.Complete() {
		g.Retire()
		return deliveries
	}
	if !g.Recoverable() {
		return deliveries
	}
	scheme := s.rs
	if g.CheckCount() == 1 {
		scheme = s.xor
	}
	recovered, err := g.Recover(scheme)
	if err != nil {
		s.log.Warnf("group %d: recovery failed: %v", g.ID(), err)
		return deliveries
	}
	// the recovered symbols were lost on the wire even though they
	// reach the application; the peer's loss estimate must see them
	s.stats.packetsRecovered.Add(uint64(len(recovered)))
	s.tallyCnt += uint32(len(recovered))
	g.Retire()
	return append(deliveries, recovered...)
}

// accountExpiredLocked writes off groups swept out of the backlog:
// whatever they still miss counts as lost. locked.
func (s *Session) accountExpiredLocked(expired []*fec.Group) {
	for _, g := range expired {
		if missing := g.MissingCount(); missing > 0 {
			s.stats.packetsLost.Add(uint64(missing))
			s.tallyCnt += uint32(missing)
		}
		g.Retire()
	}
}
