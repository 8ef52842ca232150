package mixer

import "errors"

var (
	ErrNoChannel       = errors.New("no such channel")
	ErrTooManyChannels = errors.New("channel numbers exhausted")
	ErrBusy            = errors.New("channel already open")
	ErrClosed          = errors.New("channel closed")
	ErrWouldBlock      = errors.New("operation would block")
	ErrConfMismatch    = errors.New("conference number and mode disagree")
	ErrInvalidMode     = errors.New("invalid conference mode")
	ErrNotReal         = errors.New("operation requires a span channel")
	ErrNilSpan         = errors.New("nil line interface")
	ErrMixerStopped    = errors.New("mixer stopped")
	ErrPartialSample   = errors.New("linear I/O needs whole samples")
)
