package uds

import (
	"net"
	"os"
	"path/filepath"
	"sync"

	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
)

// DefaultMode restricts the socket to its owner.
const DefaultMode os.FileMode = 0o600

// Server owns a socket file for the lifetime of one listener.
type Server struct {
	path string
	mode os.FileMode

	mu sync.Mutex
	ln *net.UnixListener
}

// NewServer prepares a listener on path. A zero mode means DefaultMode.
func NewServer(path string, mode os.FileMode) (*Server, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	if mode == 0 {
		mode = DefaultMode
	}
	return &Server{path: path, mode: mode}, nil
}

func (s *Server) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Listen binds the socket, creating its directory and replacing a stale
// socket file left by an earlier process. The file is unlinked on Close.
func (s *Server) Listen() (net.Listener, error) {
	if s == nil {
		return nil, exception.ErrNilServerUDS
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return nil, errors.Wrapf(exception.ErrListeningUDS, "path: %s", s.path)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create socket dir")
	}
	if err := RemoveStale(s.path); err != nil {
		return nil, err
	}

	ln, err := net.ListenUnix(network, &net.UnixAddr{Name: s.path, Net: network})
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", s.path)
	}
	ln.SetUnlinkOnClose(true)
	if err := os.Chmod(s.path, s.mode); err != nil {
		_ = ln.Close()
		return nil, errors.Wrapf(err, "chmod %s", s.path)
	}
	s.ln = ln
	return ln, nil
}

// Close stops the listener. Closing an idle server is a no-op.
func (s *Server) Close() error {
	if s == nil {
		return exception.ErrNilServerUDS
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	return err
}

// RemoveStale deletes a leftover socket file at path. Anything other than a
// socket is left alone and reported as exception.ErrNotSocketUDS.
func RemoveStale(path string) error {
	if path == "" {
		return exception.ErrEmptyPathUDS
	}
	info, err := os.Lstat(path)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return err
	case info.Mode().Type() != os.ModeSocket:
		return errors.Wrapf(exception.ErrNotSocketUDS, "path: %s", path)
	}
	return os.Remove(path)
}
