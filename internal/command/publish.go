package command

import (
	"io"

	"pocketredis.dev/pocketredis/internal/database"
	"pocketredis.dev/pocketredis/pkg/frame"
)

// Publish is the PUBLISH channel message command.
type Publish struct {
	Channel string
	Message []byte
}

func parsePublish(cur *cursor) (Publish, error) {
	channel, ok, err := cur.nextString()
	if err != nil {
		return Publish{}, err
	}
	if !ok {
		return Publish{}, parseErr("ERR wrong number of arguments for 'publish' command")
	}

	message, ok, err := cur.nextBytes()
	if err != nil {
		return Publish{}, err
	}
	if !ok {
		return Publish{}, parseErr("ERR wrong number of arguments for 'publish' command")
	}

	if err := cur.finish(); err != nil {
		return Publish{}, err
	}
	return Publish{Channel: channel, Message: message}, nil
}

// Apply broadcasts the message and replies with the subscriber count
// observed at broadcast time.
func (p Publish) Apply(db *database.Database, w io.Writer) error {
	n := db.Publish(p.Channel, p.Message)
	return frame.Encode(w, frame.Integer(uint64(n)))
}
