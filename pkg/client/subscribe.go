package client

import (
	"fmt"

	"pocketredis.dev/pocketredis/pkg/frame"
)

// Message is one delivered publish, as received by a Subscriber.
type Message struct {
	Channel string
	Payload []byte
}

// Subscriber reads from a Client that has entered subscribe mode. Once
// created, the underlying Client must only be used through it; issuing
// any command other than SUBSCRIBE/UNSUBSCRIBE over the same connection
// would desynchronize the reply stream. channels tracks what the server
// believes this connection is subscribed to, so Unsubscribe with no
// arguments knows how many acks to expect back.
type Subscriber struct {
	client   *Client
	channels map[string]struct{}
}

// Subscribe sends SUBSCRIBE for the given channels and returns a
// Subscriber for reading the subscribe acks and subsequent messages. The
// acks are returned directly so the caller can confirm subscription
// counts before entering the receive loop.
func (c *Client) Subscribe(channels ...string) (*Subscriber, []SubscribeAck, error) {
	items := make([]frame.Frame, 0, len(channels)+1)
	items = append(items, frame.BulkString("SUBSCRIBE"))
	for _, ch := range channels {
		items = append(items, frame.BulkString(ch))
	}
	if err := c.conn.WriteFrame(frame.ArrayOf(items...)); err != nil {
		return nil, nil, err
	}

	sub := &Subscriber{client: c, channels: make(map[string]struct{})}
	acks := make([]SubscribeAck, 0, len(channels))
	for range channels {
		reply, err := c.conn.ReadFrame()
		if err != nil {
			return nil, nil, err
		}
		if reply == nil {
			return nil, nil, fmt.Errorf("client: connection closed during subscribe")
		}
		ack, err := parseAck(*reply, "subscribe")
		if err != nil {
			return nil, nil, err
		}
		sub.channels[ack.Channel] = struct{}{}
		acks = append(acks, ack)
	}

	return sub, acks, nil
}

// SubscribeAck is one ["subscribe"|"unsubscribe", channel, count] reply.
type SubscribeAck struct {
	Channel string
	Count   int64
}

func parseAck(f frame.Frame, want string) (SubscribeAck, error) {
	if f.Kind != frame.KindArray || len(f.Array) != 3 {
		return SubscribeAck{}, fmt.Errorf("client: malformed %s ack", want)
	}
	if kind := bulkOrSimpleString(f.Array[0]); kind != want {
		return SubscribeAck{}, fmt.Errorf("client: expected %s ack, got %q", want, kind)
	}
	return SubscribeAck{Channel: bulkOrSimpleString(f.Array[1]), Count: int64(f.Array[2].Int)}, nil
}

// Unsubscribe sends UNSUBSCRIBE for the given channels, or every channel
// this Subscriber currently tracks if none are given, and reads back one
// ack per channel left.
func (s *Subscriber) Unsubscribe(channels ...string) ([]SubscribeAck, error) {
	if len(channels) == 0 {
		for ch := range s.channels {
			channels = append(channels, ch)
		}
	}
	expected := len(channels)

	items := make([]frame.Frame, 0, len(channels)+1)
	items = append(items, frame.BulkString("UNSUBSCRIBE"))
	for _, ch := range channels {
		items = append(items, frame.BulkString(ch))
	}
	if err := s.client.conn.WriteFrame(frame.ArrayOf(items...)); err != nil {
		return nil, err
	}

	acks := make([]SubscribeAck, 0, expected)
	for i := 0; i < expected; i++ {
		reply, err := s.client.conn.ReadFrame()
		if err != nil {
			return acks, err
		}
		if reply == nil {
			return acks, fmt.Errorf("client: connection closed during unsubscribe")
		}
		ack, err := parseAck(*reply, "unsubscribe")
		if err != nil {
			return acks, err
		}
		delete(s.channels, ack.Channel)
		acks = append(acks, ack)
	}
	return acks, nil
}

// Receive blocks for the next published message.
func (s *Subscriber) Receive() (Message, error) {
	for {
		reply, err := s.client.conn.ReadFrame()
		if err != nil {
			return Message{}, err
		}
		if reply == nil {
			return Message{}, fmt.Errorf("client: connection closed")
		}
		if reply.Kind != frame.KindArray || len(reply.Array) != 3 {
			return Message{}, fmt.Errorf("client: unexpected frame in subscribe mode")
		}
		if bulkOrSimpleString(reply.Array[0]) != "message" {
			continue // an interleaved subscribe/unsubscribe ack; keep reading
		}
		return Message{Channel: bulkOrSimpleString(reply.Array[1]), Payload: reply.Array[2].Bulk}, nil
	}
}

// Close closes the underlying connection.
func (s *Subscriber) Close() error {
	return s.client.Close()
}
