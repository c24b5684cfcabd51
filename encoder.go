package squall

import (
	"sync"

	"github.com/frostbyte73/core"
	"github.com/gammazero/deque"
	"github.com/pion/logging"

	"github.com/squallnet/squall/internal/fec"
	"github.com/squallnet/squall/internal/protocol"
	"github.com/squallnet/squall/internal/wire"
)

// maxReadyCheckSymbols bounds the queue of produced but not yet
// transmitted check symbols. Overflow drops the newest symbols: less
// redundancy, never backpressure.
const maxReadyCheckSymbols = 256

// checkSymbol is one produced check symbol, ready for transmission.
type checkSymbol struct {
	group      protocol.GroupID
	index      protocol.SymbolIndex
	origCount  uint16
	checkCount uint16
	shard      []byte
}

// encodeJob is a sealed group handed to the encode worker: the data
// payloads (pool buffers, returned once encoded) and the check budget
// the rate controller granted.
type encodeJob struct {
	group    protocol.GroupID
	payloads [][]byte
	budget   int
}

// encoder produces check symbols asynchronously so the synchronous
// send path never waits on erasure coding. Sealed groups go in through
// a bounded channel, finished symbols come out of a ready queue
// drained by the session between sends and on ticks.
type encoder struct {
	rs   fec.Scheme
	xor  fec.Scheme
	pool *wire.BufferPool
	log  logging.LeveledLogger

	jobs chan encodeJob

	mu    sync.Mutex
	ready deque.Deque[checkSymbol]

	done    core.Fuse
	stopped chan struct{}
}

func newEncoder(pool *wire.BufferPool, queueLen int, log logging.LeveledLogger) *encoder {
	e := &encoder{
		rs:      fec.NewReedSolomonScheme(),
		xor:     fec.NewXORScheme(),
		pool:    pool,
		log:     log,
		jobs:    make(chan encodeJob, queueLen),
		stopped: make(chan struct{}),
	}
	go e.run()
	return e
}

// enqueue hands a sealed group to the worker. It never blocks; a full
// queue means this group goes out without check symbols.
func (e *encoder) enqueue(job encodeJob) bool {
	select {
	case e.jobs <- job:
		return true
	default:
		e.release(job.payloads)
		return false
	}
}

// next pops one ready check symbol.
func (e *encoder) next() (checkSymbol, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready.Len() == 0 {
		return checkSymbol{}, false
	}
	return e.ready.PopFront(), true
}

// requeue puts a popped symbol back at the front, for when the caller
// could not get a buffer to seal it into.
func (e *encoder) requeue(sym checkSymbol) {
	e.mu.Lock()
	e.ready.PushFront(sym)
	e.mu.Unlock()
}

// stop terminates the worker and releases everything still queued.
func (e *encoder) stop() {
	e.done.Break()
	<-e.stopped
	for {
		select {
		case job := <-e.jobs:
			e.release(job.payloads)
		default:
			e.mu.Lock()
			e.ready.Clear()
			e.mu.Unlock()
			return
		}
	}
}

func (e *encoder) run() {
	defer close(e.stopped)
	for {
		select {
		case job := <-e.jobs:
			e.encode(job)
		case <-e.done.Watch():
			return
		}
	}
}

func (e *encoder) encode(job encodeJob) {
	defer e.release(job.payloads)

	n := len(job.payloads)
	if n == 0 || job.budget <= 0 {
		return
	}
	maxLen := 0
	for _, p := range job.payloads {
		if len(p) > maxLen {
			maxLen = len(p)
		}
	}
	shardLen := fec.ShardLen(maxLen)
	dataShards := make([][]byte, n)
	for i, p := range job.payloads {
		dataShards[i] = fec.BuildShard(p, shardLen)
	}

	// budget-1 groups use plain parity; anything larger needs the MDS
	// property of Reed-Solomon
	scheme := e.rs
	if job.budget == 1 {
		scheme = e.xor
	}
	checks, err := scheme.BuildCheckSymbols(dataShards, job.budget)
	if err != nil {
		e.log.Errorf("group %d: building %d check symbols over %d data symbols: %v", job.group, job.budget, n, err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, shard := range checks {
		if e.ready.Len() >= maxReadyCheckSymbols {
			e.log.Debugf("group %d: ready queue full, dropping %d check symbols", job.group, len(checks)-i)
			return
		}
		e.ready.PushBack(checkSymbol{
			group:      job.group,
			index:      protocol.SymbolIndex(i),
			origCount:  uint16(n),
			checkCount: uint16(job.budget),
			shard:      shard,
		})
	}
}

func (e *encoder) release(payloads [][]byte) {
	for _, p := range payloads {
		e.pool.Put(p)
	}
}
