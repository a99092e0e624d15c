package command

import (
	"io"

	"pocketredis.dev/pocketredis/pkg/frame"
)

// Ping is the PING [msg] command.
type Ping struct {
	Message    []byte
	HasMessage bool
}

func parsePing(cur *cursor) (Ping, error) {
	msg, ok, err := cur.nextBytes()
	if err != nil {
		return Ping{}, err
	}
	if !ok {
		return Ping{}, nil
	}
	if err := cur.finish(); err != nil {
		return Ping{}, err
	}
	return Ping{Message: msg, HasMessage: true}, nil
}

// Apply replies +PONG with no argument, or echoes the argument as Bulk.
func (p Ping) Apply(w io.Writer) error {
	if p.HasMessage {
		return frame.Encode(w, frame.BulkOf(p.Message))
	}
	return frame.Encode(w, frame.Simple("PONG"))
}
