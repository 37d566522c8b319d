// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package skillrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/hermeskit/skillhost/lib/clock"
	"github.com/hermeskit/skillhost/lib/codec"
	"github.com/hermeskit/skillhost/lib/netutil"
)

// ErrTimeout is wrapped into every Call error caused by the skill not
// answering within the per-call timeout.
var ErrTimeout = errors.New("skill rpc timeout")

// ErrConnectionLost is wrapped into every Call error caused by the
// connection failing: dial refused, reset, closed mid-response, or an
// undecodable reply. It usually means the skill process died.
var ErrConnectionLost = errors.New("skill rpc connection lost")

// defaultCallTimeout applies when the Client is constructed with a
// non-positive timeout.
const defaultCallTimeout = 10 * time.Second

// helloAttemptTimeout bounds a single readiness probe. Probes against
// a port nobody listens on fail immediately; this only matters for a
// process that accepts but never answers.
const helloAttemptTimeout = time.Second

// helloRetryInterval paces readiness probes after a failed attempt.
const helloRetryInterval = 100 * time.Millisecond

// maxResponseSize caps a single CBOR response from a skill.
const maxResponseSize = 1024 * 1024

// Client calls one skill process over its loopback RPC port. Each
// call is a fresh connection; the Client itself holds no state beyond
// configuration and is safe for concurrent use.
type Client struct {
	addr    string
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger
}

// NewClient creates a client for a skill listening on 127.0.0.1:port.
// timeout bounds each Call round trip; non-positive means the
// default. A nil clk means the real clock.
func NewClient(port int, timeout time.Duration, clk clock.Clock, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Client{
		addr:    net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		timeout: timeout,
		clock:   clk,
		logger:  logger,
	}
}

// Call performs one request/response round trip. The outcome is
// exactly one of:
//
//   - a decoded *Response (including OK=false responses, which mean
//     the skill is alive but the request failed),
//   - an error wrapping ErrTimeout,
//   - an error wrapping ErrConnectionLost.
func (c *Client) Call(ctx context.Context, request *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response, err := c.roundTrip(ctx, request)
	if err != nil {
		return nil, classify(request.Action, err)
	}
	return response, nil
}

// WaitReady probes the skill with hello until it answers or the
// window elapses. Used once after spawn: the skill is considered
// ready the moment it serves a successful hello. Returns the hello
// response so the caller can log the skill's self-reported name and
// protocol version.
func (c *Client) WaitReady(ctx context.Context, window time.Duration) (*Response, error) {
	deadline := c.clock.Now().Add(window)

	var lastErr error
	for attempt := 1; ; attempt++ {
		response, err := c.hello(ctx)
		if err == nil {
			return response, nil
		}
		lastErr = err

		// Refused and reset probes are the normal case while the
		// process boots; anything else is worth a trace.
		if !netutil.IsConnectionTeardown(err) {
			c.logger.Debug("readiness probe failed",
				"addr", c.addr,
				"attempt", attempt,
				"error", err,
			)
		}

		remaining := deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			return nil, fmt.Errorf("no hello from %s within %v (%d attempts): %w", c.addr, window, attempt, lastErr)
		}
		wait := helloRetryInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(wait):
		}
	}
}

// Shutdown asks the skill to exit after acknowledging. The caller
// treats failures as advisory: a skill that is already dead cannot
// acknowledge, and the process-level stop sequence follows regardless.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.Call(ctx, &Request{Action: ActionShutdown})
	return err
}

// hello performs one bounded readiness probe.
func (c *Client) hello(ctx context.Context) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, helloAttemptTimeout)
	defer cancel()

	response, err := c.roundTrip(ctx, &Request{Action: ActionHello})
	if err != nil {
		return nil, err
	}
	if !response.OK {
		return nil, fmt.Errorf("hello rejected: %s", response.Error)
	}
	return response, nil
}

// roundTrip dials, writes the request, and reads the response. The
// context deadline bounds the whole exchange.
func (c *Client) roundTrip(ctx context.Context, request *Request) (*Response, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	// A cancelled context must abort the exchange immediately, not
	// after the deadline: closing the connection unblocks any read or
	// write in flight. Deadline expiry is left to the connection
	// deadline so it still surfaces as a timeout.
	exchangeDone := make(chan struct{})
	defer close(exchangeDone)
	go func() {
		select {
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				conn.Close()
			}
		case <-exchangeDone:
		}
	}()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close so the skill's read side sees EOF after the request.
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}

// classify maps a transport failure onto the two sentinels callers
// act on. Deadline expiry in any phase is a timeout; every other
// failure mode counts as the connection being lost.
func classify(action string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%q: %w: %w", action, ErrTimeout, err)
	}
	return fmt.Errorf("%q: %w: %w", action, ErrConnectionLost, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
