package uds

import (
	"context"
	"net"
	"os"

	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
)

const network = "unix"

// Client connects to a feed server listening on a socket file.
type Client struct {
	path string
}

func NewClient(path string) (*Client, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	return &Client{path: path}, nil
}

func (c *Client) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// DialContext connects to the socket. A missing socket file is reported as
// exception.ErrNoSocketUDS.
func (c *Client) DialContext(ctx context.Context) (net.Conn, error) {
	if c == nil {
		return nil, exception.ErrNilClientUDS
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, c.path)
	if err == nil {
		return conn, nil
	}
	if _, serr := os.Stat(c.path); os.IsNotExist(serr) {
		return nil, errors.Wrapf(exception.ErrNoSocketUDS, "path: %s", c.path)
	}
	return nil, err
}
