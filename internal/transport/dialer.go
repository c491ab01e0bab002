package transport

import (
	"context"
	"net"
	"strconv"
	"time"

	"pricefeed/pkg/exception"
	"pricefeed/pkg/uds"

	"github.com/yanun0323/errors"
)

const (
	NetworkTCP  = "tcp"
	NetworkUnix = "unix"

	DefaultDialTimeout = 10 * time.Second
	DefaultKeepAlive   = 30 * time.Second
)

// Dialer opens a fresh connection to the feed server.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
	Address() string
}

type tcpDialer struct {
	addr        string
	dialTimeout time.Duration
	keepAlive   time.Duration
}

// NewTCPDialer dials host:port over TCP.
func NewTCPDialer(host string, port int, dialTimeout time.Duration) (Dialer, error) {
	if host == "" {
		return nil, exception.ErrEmptyAddress
	}
	if port <= 0 || port > 65535 {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "invalid port: %d", port)
	}
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	return &tcpDialer{
		addr:        net.JoinHostPort(host, strconv.Itoa(port)),
		dialTimeout: dialTimeout,
		keepAlive:   DefaultKeepAlive,
	}, nil
}

func (d *tcpDialer) Address() string {
	return NetworkTCP + "://" + d.addr
}

func (d *tcpDialer) Dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout:   d.dialTimeout,
		KeepAlive: d.keepAlive,
	}
	conn, err := dialer.DialContext(ctx, NetworkTCP, d.addr)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	return conn, nil
}

type unixDialer struct {
	client *uds.Client
}

// NewUnixDialer dials a Unix domain socket at path.
func NewUnixDialer(path string) (Dialer, error) {
	client, err := uds.NewClient(path)
	if err != nil {
		return nil, err
	}
	return &unixDialer{client: client}, nil
}

func (d *unixDialer) Address() string {
	return NetworkUnix + "://" + d.client.Path()
}

func (d *unixDialer) Dial(ctx context.Context) (net.Conn, error) {
	conn, err := d.client.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Option selects and configures a dialer.
type Option struct {
	Network     string
	Host        string
	Port        int
	SocketPath  string
	DialTimeout time.Duration
	Attempts    int
	Backoff     Backoff
}

// New builds the dialer described by opt. Attempts above one wrap it in a
// retrying dialer.
func New(opt Option) (Dialer, error) {
	var (
		d   Dialer
		err error
	)
	switch opt.Network {
	case "", NetworkTCP:
		d, err = NewTCPDialer(opt.Host, opt.Port, opt.DialTimeout)
	case NetworkUnix:
		d, err = NewUnixDialer(opt.SocketPath)
	default:
		return nil, errors.Wrapf(exception.ErrUnknownNetwork, "network: %s", opt.Network)
	}
	if err != nil {
		return nil, err
	}
	if opt.Attempts > 1 {
		return NewRetryDialer(d, opt.Attempts, opt.Backoff), nil
	}
	return d, nil
}
