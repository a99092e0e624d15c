package command

import (
	"io"
	"strconv"
	"strings"
	"time"

	"pocketredis.dev/pocketredis/internal/database"
	"pocketredis.dev/pocketredis/pkg/frame"
)

// Set is the SET key value [EX seconds | PX millis] command. A zero TTL
// means the key does not expire.
type Set struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

func parseSet(cur *cursor) (Set, error) {
	key, ok, err := cur.nextString()
	if err != nil {
		return Set{}, err
	}
	if !ok {
		return Set{}, parseErr("ERR wrong number of arguments for 'set' command")
	}

	value, ok, err := cur.nextBytes()
	if err != nil {
		return Set{}, err
	}
	if !ok {
		return Set{}, parseErr("ERR wrong number of arguments for 'set' command")
	}

	s := Set{Key: key, Value: value}

	option, ok, err := cur.nextString()
	if err != nil {
		return Set{}, err
	}
	if ok {
		amount, ok, err := cur.nextString()
		if err != nil {
			return Set{}, err
		}
		if !ok {
			return Set{}, parseErr("ERR syntax error")
		}
		n, convErr := strconv.ParseInt(amount, 10, 64)
		if convErr != nil || n <= 0 {
			return Set{}, parseErr("ERR value is not an integer or out of range")
		}
		switch strings.ToUpper(option) {
		case "EX":
			s.TTL = time.Duration(n) * time.Second
		case "PX":
			s.TTL = time.Duration(n) * time.Millisecond
		default:
			return Set{}, parseErr("ERR syntax error")
		}
	}

	if err := cur.finish(); err != nil {
		return Set{}, err
	}
	return s, nil
}

// Apply stores the key/value, replacing any prior entry and its
// expiration, then replies +OK.
func (s Set) Apply(db *database.Database, w io.Writer) error {
	db.Set(s.Key, s.Value, s.TTL)
	return frame.Encode(w, frame.Simple("OK"))
}
