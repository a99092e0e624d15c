// Package client is a small, synchronous client for the wire protocol,
// built directly on pkg/connection the way the server itself is, for use
// by the CLI tool and by integration tests that want a real client
// rather than a raw socket.
package client

import (
	"fmt"
	"net"
	"time"

	"pocketredis.dev/pocketredis/pkg/connection"
	"pocketredis.dev/pocketredis/pkg/frame"
)

// Client is a single connection to a server, issuing one command at a
// time and waiting for its reply. It is not safe for concurrent use by
// multiple goroutines; callers that need concurrency should open one
// Client per goroutine.
type Client struct {
	conn *connection.Connection
}

// Dial opens a TCP connection to addr with the given timeout.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	nc, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return &Client{conn: connection.New(nc)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call sends req and waits for the single reply frame.
func (c *Client) call(req frame.Frame) (frame.Frame, error) {
	if err := c.conn.WriteFrame(req); err != nil {
		return frame.Frame{}, err
	}
	reply, err := c.conn.ReadFrame()
	if err != nil {
		return frame.Frame{}, err
	}
	if reply == nil {
		return frame.Frame{}, fmt.Errorf("client: connection closed before a reply arrived")
	}
	if reply.Kind == frame.KindError {
		return frame.Frame{}, &CommandError{Msg: reply.Str}
	}
	return *reply, nil
}

// CommandError wraps a server-side error reply (wire Kind Error).
type CommandError struct {
	Msg string
}

func (e *CommandError) Error() string { return e.Msg }

// Ping sends PING, or PING msg if msg is non-empty, and returns the
// server's reply payload (PONG, or the echoed message).
func (c *Client) Ping(msg string) (string, error) {
	var req frame.Frame
	if msg == "" {
		req = frame.ArrayOf(frame.BulkString("PING"))
	} else {
		req = frame.ArrayOf(frame.BulkString("PING"), frame.BulkString(msg))
	}
	reply, err := c.call(req)
	if err != nil {
		return "", err
	}
	return bulkOrSimpleString(reply), nil
}

// Get issues GET key. ok is false if the key is absent or expired.
func (c *Client) Get(key string) (value []byte, ok bool, err error) {
	reply, err := c.call(frame.ArrayOf(frame.BulkString("GET"), frame.BulkString(key)))
	if err != nil {
		return nil, false, err
	}
	if reply.Kind == frame.KindNull {
		return nil, false, nil
	}
	return reply.Bulk, true, nil
}

// SetOption configures an optional TTL for Set.
type SetOption func(*setArgs)

type setArgs struct {
	ex int64
	px int64
}

// WithEX expires the key after seconds.
func WithEX(seconds int64) SetOption { return func(a *setArgs) { a.ex = seconds } }

// WithPX expires the key after millis.
func WithPX(millis int64) SetOption { return func(a *setArgs) { a.px = millis } }

// Set issues SET key value, with an optional EX or PX option.
func (c *Client) Set(key string, value []byte, opts ...SetOption) error {
	var a setArgs
	for _, opt := range opts {
		opt(&a)
	}

	items := []frame.Frame{frame.BulkString("SET"), frame.BulkString(key), frame.BulkOf(value)}
	switch {
	case a.ex > 0:
		items = append(items, frame.BulkString("EX"), frame.BulkString(fmt.Sprintf("%d", a.ex)))
	case a.px > 0:
		items = append(items, frame.BulkString("PX"), frame.BulkString(fmt.Sprintf("%d", a.px)))
	}

	_, err := c.call(frame.ArrayOf(items...))
	return err
}

// Publish issues PUBLISH channel message and returns the number of
// subscribers that received it.
func (c *Client) Publish(channel string, message []byte) (int64, error) {
	reply, err := c.call(frame.ArrayOf(
		frame.BulkString("PUBLISH"), frame.BulkString(channel), frame.BulkOf(message),
	))
	if err != nil {
		return 0, err
	}
	return int64(reply.Int), nil
}

func bulkOrSimpleString(f frame.Frame) string {
	if f.Kind == frame.KindBulk {
		return string(f.Bulk)
	}
	return f.Str
}
