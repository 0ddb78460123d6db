package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"logflow/pkg/apperror"
	"logflow/pkg/logger"
	"logflow/pkg/retry"
)

// Client is a long-lived TCP connection to a transport.Server that
// reconnects on its own whenever the connection drops. Callers only ever
// see Send; reconnection happens transparently underneath it.
type Client struct {
	addr   string
	policy retry.Policy

	mu   sync.Mutex
	conn net.Conn
}

// NewClient returns a Client that dials addr lazily, on the first Send.
func NewClient(addr string, policy retry.Policy) *Client {
	return &Client{addr: addr, policy: policy}
}

// Send writes one frame, reconnecting first if there is no live connection.
// A write failure closes and discards the connection so the next call
// redials.
func (c *Client) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.dialLocked(ctx); err != nil {
			return err
		}
	}

	if err := WriteFrame(c.conn, payload); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return apperror.Wrap(err, apperror.CodeConnectionFailed, "failed to write frame").
			WithDetails("addr", c.addr)
	}
	return nil
}

// dialLocked establishes conn, retrying with the configured backoff policy
// until the policy gives up or ctx is done. Caller must hold c.mu.
func (c *Client) dialLocked(ctx context.Context) error {
	var d net.Dialer
	bo := c.policy.NextBackOff(ctx)

	operation := func() error {
		conn, err := d.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			logger.Log.Warn("transport client dial failed, retrying", "addr", c.addr, "error", err)
			return err
		}
		c.conn = conn
		return nil
	}

	if err := backoff.Retry(operation, bo); err != nil {
		return apperror.Wrap(err, apperror.CodeConnectionFailed, "failed to connect to transport server").
			WithDetails("addr", c.addr)
	}
	return nil
}

// Close closes the underlying connection, if any. Safe to call even if
// never connected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// KeepAlive enables TCP keepalives on the current connection, if one is
// open. It does nothing when not connected, and a connection dialed later
// does not inherit the setting.
func (c *Client) KeepAlive(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tc, ok := c.conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(d)
	}
}
