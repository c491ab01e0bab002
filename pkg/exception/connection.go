package exception

import "github.com/yanun0323/errors"

var (
	ErrTransport      = errors.New("transport error")
	ErrEmptyAddress   = errors.New("transport: empty address")
	ErrUnknownNetwork = errors.New("transport: unknown network")
)
