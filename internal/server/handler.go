package server

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pocketredis.dev/pocketredis/internal/command"
	"pocketredis.dev/pocketredis/internal/database"
	"pocketredis.dev/pocketredis/pkg/connection"
	"pocketredis.dev/pocketredis/pkg/frame"
)

// subState tracks one active channel subscription on a connection: the
// Subscription handle itself, and a stop channel that tells the forwarder
// goroutine feeding it into events to exit.
type subState struct {
	sub  *database.Subscription
	stop chan struct{}
}

// pubsubEvent is one message delivered to a subscribed connection, tagged
// with the channel it arrived on.
type pubsubEvent struct {
	channel string
	message []byte
}

// frameResult is one outcome of a socket read: either a frame, a clean
// close (frame == nil, err == nil), or an error.
type frameResult struct {
	frame *frame.Frame
	err   error
}

// handler runs the request/response loop for one connection. Outside
// subscribe mode it behaves as a simple command loop; once at least one
// SUBSCRIBE has been issued, the same loop also delivers published
// messages, multiplexed through a fixed three-case select (shutdown,
// socket reads, subscription fan-in) so Go's static select can express a
// dynamic number of subscribed channels.
type handler struct {
	server *Server
	conn   *connection.Connection
	log    *slog.Logger

	subs map[string]*subState
}

func (h *handler) run() {
	frames := make(chan frameResult)
	done := make(chan struct{})
	defer close(done)
	go h.readLoop(frames, done)

	events := make(chan pubsubEvent, 16)
	defer h.closeAllSubscriptions()
	// Smart Flush defers a reply behind a still-buffered pipelined frame;
	// whatever exit path run takes, any such deferred reply must still go
	// out rather than being stranded in the write buffer.
	defer func() { _ = h.conn.Flush() }()

	for {
		select {
		case <-h.server.shutdown.Done():
			return

		case res, ok := <-frames:
			if !ok {
				return
			}
			if res.err != nil {
				if errors.Is(res.err, connection.ErrConnectionReset) {
					h.log.Warn("connection reset by peer")
				} else {
					h.log.Error("failed to read frame", "error", res.err)
				}
				return
			}
			if res.frame == nil {
				return // clean close
			}
			if !h.handleFrame(*res.frame, events) {
				return
			}

		case ev := <-events:
			if err := h.deliverMessage(ev); err != nil {
				h.log.Warn("failed to deliver message", "error", err)
				return
			}
		}
	}
}

// readLoop continuously reads frames off the socket and feeds them to
// out, one at a time, until an error, a clean close, or done is closed by
// run on its way out (which unblocks a send that would otherwise never
// find a reader once the handler has stopped selecting on frames).
func (h *handler) readLoop(out chan<- frameResult, done <-chan struct{}) {
	defer close(out)
	for {
		if h.server.idleTimeout > 0 {
			_ = h.conn.Conn().SetReadDeadline(time.Now().Add(h.server.idleTimeout))
		}

		frm, err := h.conn.ReadFrame()

		select {
		case out <- frameResult{frame: frm, err: err}:
		case <-done:
			return
		}

		if err != nil || frm == nil {
			return
		}
	}
}

// handleFrame parses and applies one command, replying on the
// connection's write buffer. It returns false when the connection should
// be closed (a write failed).
func (h *handler) handleFrame(f frame.Frame, events chan<- pubsubEvent) bool {
	cmd, err := command.Parse(f)
	if err != nil {
		return h.replyError(err)
	}

	h.server.metrics.CommandsProcessed.WithLabelValues(cmd.Name()).Inc()

	if len(h.subs) > 0 && !validInSubscribeMode(cmd.Kind) {
		return h.replyError(&command.ParseError{
			Msg: fmt.Sprintf("ERR %s is not allowed in subscribe context", cmd.Name()),
		})
	}

	var applyErr error
	switch cmd.Kind {
	case command.KindPing:
		applyErr = cmd.Ping.Apply(h.conn.Writer())
	case command.KindGet:
		applyErr = cmd.Get.Apply(h.server.db, h.conn.Writer())
	case command.KindSet:
		applyErr = cmd.Set.Apply(h.server.db, h.conn.Writer())
	case command.KindPublish:
		applyErr = cmd.Publish.Apply(h.server.db, h.conn.Writer())
	case command.KindSubscribe:
		return h.subscribe(cmd.Subscribe, events)
	case command.KindUnsubscribe:
		if len(h.subs) == 0 {
			return h.replyError(&command.ParseError{Msg: "ERR UNSUBSCRIBE without SUBSCRIBE context"})
		}
		return h.unsubscribe(cmd.Unsubscribe)
	case command.KindUnknown:
		applyErr = cmd.Unknown.Apply(h.conn.Writer())
	}

	if applyErr != nil {
		h.log.Warn("failed to write reply", "error", applyErr)
		return false
	}
	return h.flush()
}

// validInSubscribeMode reports whether kind may be issued once a connection
// holds at least one subscription. Only further SUBSCRIBE/UNSUBSCRIBE and
// PING are allowed; data commands like GET/SET/PUBLISH are rejected, since
// the reply stream is already carrying interleaved published messages.
func validInSubscribeMode(kind command.Kind) bool {
	switch kind {
	case command.KindSubscribe, command.KindUnsubscribe, command.KindPing:
		return true
	default:
		return false
	}
}

// subscribe joins each named channel (creating a forwarder goroutine for
// any not already joined) and writes one subscribe reply per channel
// carrying this connection's subscription count after joining it.
func (h *handler) subscribe(s command.Subscribe, events chan<- pubsubEvent) bool {
	for _, channel := range s.Channels {
		if _, already := h.subs[channel]; !already {
			sub, _ := h.server.db.Subscribe(channel)
			stop := make(chan struct{})
			h.subs[channel] = &subState{sub: sub, stop: stop}
			h.server.metrics.ActiveSubscriptions.Inc()
			go h.forwardSubscription(sub, events, stop)
		}

		reply := frame.ArrayOf(
			frame.BulkString("subscribe"),
			frame.BulkString(channel),
			frame.Integer(uint64(len(h.subs))),
		)
		if err := frame.Encode(h.conn.Writer(), reply); err != nil {
			h.log.Warn("failed to write subscribe reply", "error", err)
			return false
		}
	}
	return h.flush()
}

// unsubscribe leaves each named channel, or every currently subscribed
// channel if none are named, writing one unsubscribe reply per channel
// carrying this connection's remaining subscription count.
func (h *handler) unsubscribe(u command.Unsubscribe) bool {
	channels := u.Channels
	if len(channels) == 0 {
		channels = make([]string, 0, len(h.subs))
		for channel := range h.subs {
			channels = append(channels, channel)
		}
	}

	for _, channel := range channels {
		if st, ok := h.subs[channel]; ok {
			close(st.stop)
			st.sub.Close()
			delete(h.subs, channel)
			h.server.metrics.ActiveSubscriptions.Dec()
		}

		reply := frame.ArrayOf(
			frame.BulkString("unsubscribe"),
			frame.BulkString(channel),
			frame.Integer(uint64(len(h.subs))),
		)
		if err := frame.Encode(h.conn.Writer(), reply); err != nil {
			h.log.Warn("failed to write unsubscribe reply", "error", err)
			return false
		}
	}
	return h.flush()
}

// forwardSubscription relays one Subscription's messages into events
// until stop is closed (on unsubscribe) or the handler's cleanup runs.
// Lag is logged, never delivered to the peer as data.
func (h *handler) forwardSubscription(sub *database.Subscription, events chan<- pubsubEvent, stop <-chan struct{}) {
	for {
		select {
		case msg, ok := <-sub.Messages:
			if !ok {
				return
			}
			select {
			case events <- pubsubEvent{channel: sub.Channel, message: msg}:
			case <-stop:
				return
			}
		case n := <-sub.Lagged:
			h.log.Warn("subscriber fell behind, dropped buffered messages", "channel", sub.Channel, "dropped", n)
		case <-stop:
			return
		}
	}
}

// deliverMessage writes one published message to the peer as a
// ["message", channel, payload] array, flushed immediately since it is
// not part of a pipelined command/reply batch.
func (h *handler) deliverMessage(ev pubsubEvent) error {
	reply := frame.ArrayOf(
		frame.BulkString("message"),
		frame.BulkString(ev.channel),
		frame.BulkOf(ev.message),
	)
	return h.conn.WriteFrame(reply)
}

// replyError writes a command parse error back to the peer. The
// connection stays open; only a write failure closes it.
func (h *handler) replyError(err error) bool {
	if encErr := frame.Encode(h.conn.Writer(), frame.Err(err.Error())); encErr != nil {
		h.log.Warn("failed to write error reply", "error", encErr)
		return false
	}
	return h.flush()
}

// flush pushes buffered replies to the socket, unless the read buffer
// still holds another pipelined command's worth of bytes, in which case
// flushing is deferred until the pipeline drains (Smart Flush).
func (h *handler) flush() bool {
	if h.conn.Buffered() == 0 {
		if err := h.conn.Flush(); err != nil {
			h.log.Warn("failed to flush reply", "error", err)
			return false
		}
	}
	return true
}

// closeAllSubscriptions tears down every active subscription when the
// handler's loop exits, however it exits.
func (h *handler) closeAllSubscriptions() {
	for channel, st := range h.subs {
		close(st.stop)
		st.sub.Close()
		delete(h.subs, channel)
		h.server.metrics.ActiveSubscriptions.Dec()
	}
}
