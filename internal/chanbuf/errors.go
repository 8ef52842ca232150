package chanbuf

import "errors"

var (
	ErrFull              = errors.New("channel buffer full")
	ErrEmpty             = errors.New("channel buffer empty")
	ErrInvalidBlockSize  = errors.New("invalid block size")
	ErrInvalidBlockCount = errors.New("invalid block count")
	ErrBufferSpace       = errors.New("buffer space exceeds budget")
	ErrInvalidPolicy     = errors.New("invalid buffer policy")
)
