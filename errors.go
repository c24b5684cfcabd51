package squall

import (
	"errors"

	"github.com/squallnet/squall/internal/wire"
)

var (
	// ErrSessionClosed is returned by calls made after Close.
	ErrSessionClosed = errors.New("squall: session closed")

	// ErrPayloadTooLarge is returned when a payload exceeds the
	// configured MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("squall: payload exceeds configured maximum")

	// ErrPoolExhausted is returned by Send when the packet buffer pool
	// hit its cap. The send was not transmitted; the caller may retry
	// once buffers drain.
	ErrPoolExhausted = wire.ErrPoolExhausted
)
