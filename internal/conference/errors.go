package conference

import "errors"

var (
	ErrInvalidConference = errors.New("invalid conference number")
	ErrExhausted         = errors.New("no free conference alias")
	ErrInvalidLink       = errors.New("invalid conference link")
)
