// Package command turns a parsed Array frame into a typed Command, and
// applies the read-only/write commands (Get, Set, Publish, Ping, Unknown)
// against the shared database. Subscribe and Unsubscribe are parsed here
// too, but applying them needs the per-connection multiplexer that only
// the server's handler owns, so their Apply lives in internal/server.
package command

import (
	"fmt"

	"pocketredis.dev/pocketredis/pkg/frame"
)

// ParseError means the frame was a well-formed Array but its contents do
// not form a valid command: wrong arity, an unknown SET option, or a
// value that does not fit the type it is used as. The caller replies
// `-ERR <message>` on the wire and keeps the connection open, unlike a
// frame.ProtocolError which forces a close.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }

func parseErr(format string, args ...any) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}

// cursor is a cursor-style reader over a command Array's elements: each
// command's parser pulls strings or raw bytes off the front in order,
// with a final check that nothing unexpected is left over.
type cursor struct {
	items []frame.Frame
	pos   int
}

func newCursor(f frame.Frame) (*cursor, error) {
	if f.Kind != frame.KindArray {
		return nil, parseErr("ERR protocol error; expected array for command")
	}
	return &cursor{items: f.Array}, nil
}

func (c *cursor) next() (frame.Frame, bool) {
	if c.pos >= len(c.items) {
		return frame.Frame{}, false
	}
	item := c.items[c.pos]
	c.pos++
	return item, true
}

// nextString returns the next element as a string. ok is false when the
// cursor is exhausted; err is non-nil when an element is present but is
// not a frame kind that can stand in for a string.
func (c *cursor) nextString() (string, bool, error) {
	item, ok := c.next()
	if !ok {
		return "", false, nil
	}
	switch item.Kind {
	case frame.KindSimple:
		return item.Str, true, nil
	case frame.KindBulk:
		return string(item.Bulk), true, nil
	default:
		return "", false, parseErr("ERR protocol error; expected simple or bulk frame")
	}
}

// nextBytes is like nextString but returns the raw bytes, for arguments
// that are not necessarily UTF-8 (SET's value, PUBLISH's message).
func (c *cursor) nextBytes() ([]byte, bool, error) {
	item, ok := c.next()
	if !ok {
		return nil, false, nil
	}
	switch item.Kind {
	case frame.KindSimple:
		return []byte(item.Str), true, nil
	case frame.KindBulk:
		return item.Bulk, true, nil
	default:
		return nil, false, parseErr("ERR protocol error; expected simple or bulk frame")
	}
}

func (c *cursor) remaining() int {
	return len(c.items) - c.pos
}

// finish checks that the command's argument list is fully consumed.
func (c *cursor) finish() error {
	if c.remaining() != 0 {
		return parseErr("ERR protocol error; unexpected trailing argument")
	}
	return nil
}
