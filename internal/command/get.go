package command

import (
	"io"

	"pocketredis.dev/pocketredis/internal/database"
	"pocketredis.dev/pocketredis/pkg/frame"
)

// Get is the GET key command.
type Get struct {
	Key string
}

func parseGet(cur *cursor) (Get, error) {
	key, ok, err := cur.nextString()
	if err != nil {
		return Get{}, err
	}
	if !ok {
		return Get{}, parseErr("ERR wrong number of arguments for 'get' command")
	}
	if err := cur.finish(); err != nil {
		return Get{}, err
	}
	return Get{Key: key}, nil
}

// Apply looks up the key and writes a Bulk reply, or Null if the key is
// absent or has expired.
func (g Get) Apply(db *database.Database, w io.Writer) error {
	value, ok := db.Get(g.Key)
	if !ok {
		return frame.Encode(w, frame.Null())
	}
	return frame.Encode(w, frame.BulkOf(value))
}
