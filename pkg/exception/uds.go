package exception

import "github.com/yanun0323/errors"

// UDS errors
var (
	ErrEmptyPathUDS = errors.New("uds: empty socket path")
	ErrNilClientUDS = errors.New("uds: nil client")
	ErrNilServerUDS = errors.New("uds: nil server")
	ErrListeningUDS = errors.New("uds: server already listening")
	ErrNotSocketUDS = errors.New("uds: path exists and is not a socket")
	ErrNoSocketUDS  = errors.New("uds: no socket at path")
)
