package wire

import (
	"errors"
	"sync"

	"go.uber.org/atomic"

	"github.com/squallnet/squall/internal/protocol"
)

// ErrPoolExhausted is returned when the configured cap of outstanding
// packet buffers is reached. This is the one resource condition that
// surfaces as an error instead of a silent drop.
var ErrPoolExhausted = errors.New("packet buffer pool exhausted")

// BufferPool hands out packet buffers with room for the envelope
// header, the payload and the seal overhead. Buffers are reused; the
// number checked out at any moment is hard-capped so a consumer that
// stops returning buffers degrades into send rejection rather than
// unbounded allocation.
type BufferPool struct {
	pool        sync.Pool
	outstanding atomic.Int64
	cap         int64
}

func NewBufferPool(maxOutstanding int) *BufferPool {
	p := &BufferPool{cap: int64(maxOutstanding)}
	p.pool.New = func() interface{} {
		b := make([]byte, 0, protocol.MaxPacketBufferSize)
		return &b
	}
	return p
}

// Get returns an empty buffer with capacity MaxPacketBufferSize.
func (p *BufferPool) Get() ([]byte, error) {
	if p.outstanding.Inc() > p.cap {
		p.outstanding.Dec()
		return nil, ErrPoolExhausted
	}
	b := *p.pool.Get().(*[]byte)
	return b[:0], nil
}

// Put returns a buffer to the pool. Only buffers handed out by Get may
// be returned.
func (p *BufferPool) Put(b []byte) {
	if cap(b) != protocol.MaxPacketBufferSize {
		panic("wire: BufferPool.Put called with buffer of wrong capacity")
	}
	b = b[:0]
	p.pool.Put(&b)
	p.outstanding.Dec()
}

// Outstanding reports how many buffers are currently checked out.
func (p *BufferPool) Outstanding() int64 {
	return p.outstanding.Load()
}
