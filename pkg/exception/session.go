package exception

import "github.com/yanun0323/errors"

var (
	ErrSessionActive = errors.New("session: already running")
	ErrNilDialer     = errors.New("session: nil dialer")
	ErrNilHandler    = errors.New("session: nil record handler")
)
