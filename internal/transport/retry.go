package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/yanun0323/logs"
)

type retryDialer struct {
	next     Dialer
	attempts int
	backoff  Backoff
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRetryDialer retries failed dials up to attempts times in total.
// Only establishing the connection is retried; an open session never is.
func NewRetryDialer(next Dialer, attempts int, backoff Backoff) Dialer {
	if attempts < 1 {
		attempts = 1
	}
	return &retryDialer{
		next:     next,
		attempts: attempts,
		backoff:  backoff,
		sleep:    sleepContext,
	}
}

func (d *retryDialer) Address() string {
	return d.next.Address()
}

func (d *retryDialer) Dial(ctx context.Context) (net.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		conn, err := d.next.Dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == d.attempts {
			break
		}
		wait := d.backoff.Next(attempt)
		logs.Infof("dial %s failed, attempt %d/%d, retry in %s, err: %+v", d.next.Address(), attempt, d.attempts, wait, err)
		if err := d.sleep(ctx, wait); err != nil {
			break
		}
	}
	return nil, fmt.Errorf("dial %s after %d attempt(s): %w", d.next.Address(), d.attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
