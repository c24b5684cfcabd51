package squall

import (
	"fmt"
	"time"

	"github.com/pion/logging"

	"github.com/squallnet/squall/internal/crypto"
	"github.com/squallnet/squall/internal/fec"
	"github.com/squallnet/squall/internal/protocol"
	"github.com/squallnet/squall/internal/wire"
)

// MaxAllowedPayloadSize is the hard ceiling for MaxPayloadSize: a
// payload must still fit a check-symbol envelope plus seal overhead
// inside one packet buffer.
const MaxAllowedPayloadSize = protocol.MaxPacketBufferSize - wire.MaxHeaderLen - crypto.Overhead - fec.ShardOverhead

const (
	defaultTargetLoss         = 0.0001
	defaultMinLoss            = 0.03
	defaultMinDelay           = 100 * time.Millisecond
	defaultMaxDelay           = 2 * time.Second
	defaultMaxBufferedPackets = 4096
	defaultEncoderQueueLen    = 8
)

// Config is the immutable per-session configuration.
type Config struct {
	// Initiator picks this side's cipher role. The two ends of a
	// channel must be configured with opposite values.
	Initiator bool

	// TargetLoss is the residual per-group loss probability the
	// redundancy budget is driven toward. Default 0.0001.
	TargetLoss float64

	// MinLoss is the floor of the loss estimate, so redundancy keeps
	// covering bursts on a currently-clean channel. Default 0.03.
	MinLoss float64

	// MinDelay and MaxDelay bound the delay estimate and with it the
	// group swap interval. Defaults 100ms and 2s.
	MinDelay time.Duration
	MaxDelay time.Duration

	// MaxPayloadSize is the largest application payload accepted by
	// Send and SendOOB. Default 1350, at most MaxAllowedPayloadSize.
	MaxPayloadSize int

	// MaxBufferedPackets caps the packet buffer pool. When the cap is
	// reached Send fails with ErrPoolExhausted instead of allocating.
	// Default 4096.
	MaxBufferedPackets int

	// EncoderQueueLen bounds how many sealed groups may wait for the
	// encode worker. When the queue is full a group simply gets no
	// check symbols; Send never blocks on encoding. Default 8.
	EncoderQueueLen int

	// Handler receives everything leaving the engine. Required.
	Handler Handler

	// LoggerFactory defaults to logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory

	// Clock is the time source, defaulting to time.Now. Tests inject
	// their own to drive swaps deterministically.
	Clock func() time.Time
}

func (c Config) withDefaults() Config {
	if c.TargetLoss == 0 {
		c.TargetLoss = defaultTargetLoss
	}
	if c.MinLoss == 0 {
		c.MinLoss = defaultMinLoss
	}
	if c.MinDelay == 0 {
		c.MinDelay = defaultMinDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.MaxPayloadSize == 0 {
		c.MaxPayloadSize = protocol.DefaultMaxPayloadSize
	}
	if c.MaxBufferedPackets == 0 {
		c.MaxBufferedPackets = defaultMaxBufferedPackets
	}
	if c.EncoderQueueLen == 0 {
		c.EncoderQueueLen = defaultEncoderQueueLen
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Validate checks the configuration after defaults were applied.
func (c Config) Validate() error {
	if c.Handler == nil {
		return fmt.Errorf("squall: config requires a Handler")
	}
	if c.TargetLoss <= 0 || c.TargetLoss > 1 {
		return fmt.Errorf("squall: TargetLoss %v outside (0, 1]", c.TargetLoss)
	}
	if c.MinLoss <= 0 || c.MinLoss > 1 {
		return fmt.Errorf("squall: MinLoss %v outside (0, 1]", c.MinLoss)
	}
	if c.MinDelay <= 0 || c.MinDelay > c.MaxDelay {
		return fmt.Errorf("squall: delay bounds [%v, %v] invalid", c.MinDelay, c.MaxDelay)
	}
	if c.MaxPayloadSize <= 0 || c.MaxPayloadSize > MaxAllowedPayloadSize {
		return fmt.Errorf("squall: MaxPayloadSize %d outside (0, %d]", c.MaxPayloadSize, MaxAllowedPayloadSize)
	}
	if c.MaxBufferedPackets < protocol.MaxGroupSize {
		return fmt.Errorf("squall: MaxBufferedPackets %d below one full group (%d)", c.MaxBufferedPackets, protocol.MaxGroupSize)
	}
	if c.EncoderQueueLen <= 0 {
		return fmt.Errorf("squall: EncoderQueueLen must be positive")
	}
	return nil
}
