package command

import (
	"strings"

	"pocketredis.dev/pocketredis/pkg/frame"
)

// Kind identifies which command variant a Command holds.
type Kind int

const (
	KindPing Kind = iota
	KindGet
	KindSet
	KindPublish
	KindSubscribe
	KindUnsubscribe
	KindUnknown
)

// Command is a tagged union over the supported command set. Only the
// field matching Kind is meaningful.
type Command struct {
	Kind Kind

	Ping        Ping
	Get         Get
	Set         Set
	Publish     Publish
	Subscribe   Subscribe
	Unsubscribe Unsubscribe
	Unknown     Unknown
}

// Name returns the command's lowercase name, mainly for logging and
// per-command metrics labels. For an Unknown command it returns the name
// exactly as the client sent it, case unchanged.
func (c Command) Name() string {
	switch c.Kind {
	case KindPing:
		return "ping"
	case KindGet:
		return "get"
	case KindSet:
		return "set"
	case KindPublish:
		return "publish"
	case KindSubscribe:
		return "subscribe"
	case KindUnsubscribe:
		return "unsubscribe"
	default:
		return c.Unknown.Name
	}
}

// Parse decodes a top-level Array frame into a Command. The first element
// is the command name, matched case-insensitively; everything after it is
// handed to that command's own parser.
func Parse(f frame.Frame) (Command, error) {
	cur, err := newCursor(f)
	if err != nil {
		return Command{}, err
	}

	name, ok, err := cur.nextString()
	if err != nil {
		return Command{}, err
	}
	if !ok {
		return Command{}, parseErr("ERR protocol error; empty command")
	}

	switch strings.ToUpper(name) {
	case "PING":
		p, err := parsePing(cur)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindPing, Ping: p}, nil
	case "GET":
		g, err := parseGet(cur)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindGet, Get: g}, nil
	case "SET":
		s, err := parseSet(cur)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindSet, Set: s}, nil
	case "PUBLISH":
		p, err := parsePublish(cur)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindPublish, Publish: p}, nil
	case "SUBSCRIBE":
		s, err := parseSubscribe(cur)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindSubscribe, Subscribe: s}, nil
	case "UNSUBSCRIBE":
		u, err := parseUnsubscribe(cur)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindUnsubscribe, Unsubscribe: u}, nil
	default:
		// Unrecognized command name: no arity or option checking applies,
		// there may well be unconsumed arguments left in cur.
		return Command{Kind: KindUnknown, Unknown: Unknown{Name: name}}, nil
	}
}
