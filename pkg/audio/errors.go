package audio

import "errors"

var (
	ErrUnknownLaw       = errors.New("unknown companding law")
	ErrInvalidGainTable = errors.New("gain table must hold 256 entries")
)
