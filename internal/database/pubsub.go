package database

// broadcaster is one channel's set of active subscribers. It exists only
// while at least one subscriber holds a Subscription to it; Database
// creates it lazily on first Subscribe and deletes it once the last
// Subscription.Close runs.
type broadcaster struct {
	subs      map[uint64]*subscriber
	nextSubID uint64
}

// subscriber is a single subscriber's inbox. ch delivers published
// payloads in order; lagged fires (non-blocking, best effort) whenever a
// send had to drop a buffered message to make room.
type subscriber struct {
	ch      chan []byte
	lagged  chan uint64
	dropped uint64
}

// send delivers payload without ever blocking the caller (which holds
// Database's lock). If the subscriber's buffer is full, the oldest
// pending message is dropped to make room and the drop is counted and
// surfaced on lagged.
func (s *subscriber) send(payload []byte) {
	select {
	case s.ch <- payload:
		return
	default:
	}

	select {
	case <-s.ch:
	default:
	}
	s.dropped++

	select {
	case s.lagged <- s.dropped:
	default:
	}

	select {
	case s.ch <- payload:
	default:
		// A concurrent receive could have refilled the slot; this
		// message is lost rather than retried, since retrying could
		// loop indefinitely under a published burst.
	}
}

// Subscription is a handle to one subscriber's inbox on one channel.
// Messages delivers published payloads in order; Lagged reports, as a
// cumulative drop count, whenever this subscriber fell behind and lost
// buffered messages. Close unsubscribes.
type Subscription struct {
	db      *Database
	Channel string
	id      uint64

	Messages <-chan []byte
	Lagged   <-chan uint64
}

// Close unsubscribes, pruning the channel's broadcaster if this was its
// last subscriber. It returns the subscriber count remaining afterward.
func (s *Subscription) Close() int {
	return s.db.unsubscribe(s.Channel, s.id)
}
