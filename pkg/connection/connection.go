// Package connection decorates a net.Conn with frame-level read/write,
// using a bufio.Writer with "Smart Flush" pipelining (buffer replies
// behind a still-unread pipelined command, flush once the pipeline
// drains) built on the frame package's check/parse split decoder.
package connection

import (
	"bufio"
	"errors"
	"io"
	"net"

	"pocketredis.dev/pocketredis/pkg/frame"
)

// ErrConnectionReset is returned by ReadFrame when the peer closes the
// socket mid-frame rather than at a frame boundary.
var ErrConnectionReset = errors.New("connection: reset by peer")

const initialBufferCap = 4 * 1024

// Connection reads and writes frame.Frame values over a socket. It owns a
// growable read buffer, refilled from the socket as needed, and a buffered
// writer flushed explicitly by the caller.
type Connection struct {
	conn   net.Conn
	writer *bufio.Writer

	buf []byte // unconsumed bytes read from the socket
}

// New wraps conn. The read buffer starts at a 4 KiB capacity and grows as
// needed to hold a single frame.
func New(conn net.Conn) *Connection {
	return &Connection{
		conn:   conn,
		writer: bufio.NewWriterSize(conn, 4096),
		buf:    make([]byte, 0, initialBufferCap),
	}
}

// Conn returns the underlying socket, for deadline/address access.
func (c *Connection) Conn() net.Conn { return c.conn }

// ReadFrame blocks until a full frame is available, the peer closes
// cleanly, or an error occurs. A nil Frame with a nil error signals a clean
// close (EOF at a frame boundary).
func (c *Connection) ReadFrame() (*frame.Frame, error) {
	for {
		if f, ok, err := c.tryParse(); err != nil {
			return nil, err
		} else if ok {
			return f, nil
		}

		chunk := make([]byte, 4096)
		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(c.buf) == 0 {
					return nil, nil
				}
				return nil, ErrConnectionReset
			}
			return nil, err
		}
	}
}

// tryParse attempts to decode one frame from the buffered bytes without
// touching the socket. ok is false when more bytes are needed.
func (c *Connection) tryParse() (f *frame.Frame, ok bool, err error) {
	n, err := frame.Check(c.buf)
	if err != nil {
		if errors.Is(err, frame.ErrIncomplete) {
			return nil, false, nil
		}
		return nil, false, err
	}

	decoded, consumed, err := frame.Parse(c.buf)
	if err != nil {
		return nil, false, err
	}
	if consumed != n {
		// Check and Parse must agree on how much of the buffer the frame
		// occupies; any mismatch is a decoder bug, not a protocol error.
		return nil, false, errors.New("connection: check/parse length mismatch")
	}

	remaining := len(c.buf) - consumed
	copy(c.buf, c.buf[consumed:])
	c.buf = c.buf[:remaining]

	return &decoded, true, nil
}

// WriteFrame encodes and flushes f. Every call flushes, so replies are never
// stranded in the write buffer; batching multiple replies into one syscall
// is done by calling Write (not WriteFrame) for each reply and Flush once.
func (c *Connection) WriteFrame(f frame.Frame) error {
	if err := c.Write(f); err != nil {
		return err
	}
	return c.Flush()
}

// Write encodes f into the buffered writer without flushing. Pair with
// Flush to batch several replies into a single write syscall.
func (c *Connection) Write(f frame.Frame) error {
	return frame.Encode(c.writer, f)
}

// Writer exposes the underlying buffered byte writer, for callers (command
// Apply methods) that encode a frame themselves via frame.Encode. Bytes
// written this way are subject to the same Flush as Write.
func (c *Connection) Writer() io.Writer {
	return c.writer
}

// Flush pushes any buffered, unwritten reply bytes to the socket.
func (c *Connection) Flush() error {
	return c.writer.Flush()
}

// Buffered returns the number of unconsumed read bytes; a non-zero count
// means the peer pipelined more bytes right behind the frame just parsed.
func (c *Connection) Buffered() int {
	return len(c.buf)
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	return c.conn.Close()
}
