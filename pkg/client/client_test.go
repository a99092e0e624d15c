package client

import (
	"net"
	"testing"
	"time"

	"pocketredis.dev/pocketredis/pkg/connection"
	"pocketredis.dev/pocketredis/pkg/frame"
)

// pipeClient wires a Client to one end of an in-memory net.Pipe and hands
// the other end back wrapped in a connection.Connection, so tests can act
// as a scripted fake server without a real socket or TCP port.
func pipeClient(t *testing.T) (*Client, *connection.Connection) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	return &Client{conn: connection.New(clientSide)}, connection.New(serverSide)
}

func TestPingSendsMessageWhenGiven(t *testing.T) {
	c, server := pipeClient(t)
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req, err := server.ReadFrame()
		if err != nil || req == nil {
			t.Errorf("server ReadFrame() = %v, %v", req, err)
			return
		}
		if len(req.Array) != 2 || string(req.Array[1].Bulk) != "hello" {
			t.Errorf("request = %+v, want PING hello", req)
		}
		_ = server.WriteFrame(frame.BulkString("hello"))
	}()

	reply, err := c.Ping("hello")
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if reply != "hello" {
		t.Errorf("Ping() = %q, want %q", reply, "hello")
	}
	<-done
}

func TestGetReturnsNotOkOnNullReply(t *testing.T) {
	c, server := pipeClient(t)
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := server.ReadFrame(); err != nil {
			t.Errorf("server ReadFrame() error = %v", err)
		}
		_ = server.WriteFrame(frame.Null())
	}()

	_, ok, err := c.Get("missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for a null reply")
	}
	<-done
}

func TestCallSurfacesServerErrorsAsCommandError(t *testing.T) {
	c, server := pipeClient(t)
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := server.ReadFrame(); err != nil {
			t.Errorf("server ReadFrame() error = %v", err)
		}
		_ = server.WriteFrame(frame.Err("ERR something went wrong"))
	}()

	_, err := c.Ping("")
	if err == nil {
		t.Fatal("expected an error")
	}
	cmdErr, ok := err.(*CommandError)
	if !ok {
		t.Fatalf("error type = %T, want *CommandError", err)
	}
	if cmdErr.Error() != "ERR something went wrong" {
		t.Errorf("CommandError.Error() = %q", cmdErr.Error())
	}
	<-done
}

func TestSetEncodesEXOption(t *testing.T) {
	c, server := pipeClient(t)
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req, err := server.ReadFrame()
		if err != nil || req == nil {
			t.Errorf("server ReadFrame() = %v, %v", req, err)
			return
		}
		if len(req.Array) != 5 {
			t.Errorf("request array len = %d, want 5 (SET key value EX seconds)", len(req.Array))
			return
		}
		if string(req.Array[3].Bulk) != "EX" || string(req.Array[4].Bulk) != "10" {
			t.Errorf("request tail = %q %q, want EX 10", req.Array[3].Bulk, req.Array[4].Bulk)
		}
		_ = server.WriteFrame(frame.Simple("OK"))
	}()

	if err := c.Set("k", []byte("v"), WithEX(10)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	<-done
}

func TestDialTimesOutAgainstAnUnroutableAddress(t *testing.T) {
	// 10.255.255.1 is non-routed in most CI sandboxes; the dial should
	// return an error (a timeout, or an unreachable-network error) rather
	// than hang.
	_, err := Dial("10.255.255.1:1", 50*time.Millisecond)
	if err == nil {
		t.Skip("dial unexpectedly succeeded in this network environment")
	}
}
