package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"pricefeed/internal/codec"
	"pricefeed/internal/obs"
	"pricefeed/internal/schema"
	"pricefeed/internal/transport"
	"pricefeed/pkg/exception"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"
)

const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Capture receives a copy of every frame a session sends or receives.
type Capture interface {
	TryAppend(header schema.FrameHeader, payload []byte) error
}

// Option configures a Controller.
type Option struct {
	// ReadTimeout bounds the wait for each inbound frame. Negative disables it.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing the request frame. Negative disables it.
	WriteTimeout time.Duration
	// FrameSize is the fixed size of an inbound frame.
	FrameSize int
	Capture   Capture
	Metrics   *obs.Metrics
	Traces    *obs.TraceGenerator
}

func (o Option) withDefaults() Option {
	if o.ReadTimeout == 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.FrameSize <= 0 {
		o.FrameSize = codec.RecordSize
	}
	if o.Traces == nil {
		o.Traces = obs.NewTraceGenerator(uuid.New())
	}
	return o
}

// Controller runs request/response sessions against the feed server, one at
// a time, each over a fresh connection. The server ends a response by
// closing the connection.
type Controller struct {
	dialer transport.Dialer
	opt    Option

	mu      sync.Mutex
	conn    net.Conn
	state   State
	closing bool

	running      atomic.Bool
	captureFault atomic.Bool
}

// New creates a controller bound to dialer.
func New(dialer transport.Dialer, opt Option) (*Controller, error) {
	if dialer == nil {
		return nil, exception.ErrNilDialer
	}
	return &Controller{dialer: dialer, opt: opt.withDefaults()}, nil
}

// State returns the state of the current or last session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close terminates the active connection. It is idempotent and safe to
// call from any state, any goroutine and from inside the record handler.
// A session ended by Close finishes without error.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closing = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Run opens a connection, writes req and passes every inbound frame to
// onRecord until the peer closes the connection. A handler error aborts the
// session and is returned as is. Transport failures unwrap to
// exception.ErrTransport. The connection is always closed when Run returns.
func (c *Controller) Run(ctx context.Context, req schema.Request, onRecord func(frame []byte) error) (err error) {
	if onRecord == nil {
		return exception.ErrNilHandler
	}
	if !c.running.CompareAndSwap(false, true) {
		return exception.ErrSessionActive
	}
	defer c.running.Store(false)

	var (
		start   = time.Now()
		traceID = c.opt.Traces.Next()
		frames  uint32
	)
	c.begin()
	defer func() {
		outcome := obs.OutcomeClosed
		if err != nil {
			outcome = obs.OutcomeFailed
			c.setState(StateFailed)
			logs.Errorf("session failed, call: %s, param: %d, trace: %016x, frames: %d, err: %+v", req.CallType, req.Param, traceID, frames, err)
		} else {
			c.setState(StateClosed)
			logs.Infof("session closed, call: %s, param: %d, trace: %016x, frames: %d, cost: %s", req.CallType, req.Param, traceID, frames, time.Since(start))
		}
		c.opt.Metrics.ObserveSession(req.CallType, outcome, time.Since(start))
	}()

	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return transportError("dial "+c.dialer.Address(), err)
	}
	if !c.attach(conn) {
		_ = conn.Close()
		return nil
	}
	defer c.release()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-done:
		}
	}()

	c.setState(StateConnected)

	reqBuf := codec.EncodeRequest(nil, req)
	if c.opt.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.opt.WriteTimeout))
	}
	if _, err := conn.Write(reqBuf); err != nil {
		if c.endedLocally() && ctx.Err() == nil {
			return nil
		}
		return c.readWriteError(ctx, "write request", err)
	}
	c.capture(schema.NewHeader(schema.FrameRequest, req.CallType, 0, time.Now().UnixNano(), traceID), reqBuf)

	c.setState(StateExchanging)

	buf := make([]byte, c.opt.FrameSize)
	for {
		if c.opt.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.opt.ReadTimeout))
		}
		n, err := io.ReadFull(conn, buf)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			// Peer closed mid-frame; let the handler reject the partial frame.
		default:
			if c.endedLocally() && ctx.Err() == nil {
				return nil
			}
			return c.readWriteError(ctx, "read frame", err)
		}

		frames++
		c.capture(schema.NewHeader(schema.FrameRecord, req.CallType, frames, time.Now().UnixNano(), traceID), buf[:n])
		c.opt.Metrics.IncFrame(req.CallType)

		if err := onRecord(buf[:n]); err != nil {
			return err
		}
		if n < len(buf) || c.endedLocally() {
			return nil
		}
	}
}

func (c *Controller) begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closing = false
	c.state = StateConnecting
}

// attach publishes conn so Close can reach it. It reports false when Close
// was called while dialing.
func (c *Controller) attach(conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return false
	}
	c.conn = conn
	return true
}

func (c *Controller) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Controller) endedLocally() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Controller) capture(header schema.FrameHeader, payload []byte) {
	if c.opt.Capture == nil {
		return
	}
	if err := c.opt.Capture.TryAppend(header, payload); err != nil && c.captureFault.CompareAndSwap(false, true) {
		logs.Errorf("capture frame dropped, further drops are silent, err: %+v", err)
	}
}

func (c *Controller) readWriteError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return transportError(op, ctxErr)
	}
	return transportError(op, err)
}

func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", exception.ErrTransport, op, err)
}
