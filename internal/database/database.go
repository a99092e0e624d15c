// Package database implements the shared, in-memory keyspace: a TTL-aware
// key/value map plus a per-channel publish/subscribe broker, both guarded
// by a single exclusive lock. A background goroutine reaps expired keys,
// woken only when a Set schedules an expiration sooner than anything it
// already knew about, rather than polling on a fixed interval.
package database

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// subscriberBacklog is the per-subscriber channel capacity. A slow
// subscriber that falls this far behind has its oldest buffered message
// dropped to make room for the newest one.
const subscriberBacklog = 32

type entry struct {
	value     []byte
	expiresAt time.Time // zero value means the entry never expires
	id        uint64
}

// expiryKey is one triple in the expiration index: the key expires at
// expiresAt, and id disambiguates entries that expire at the same instant
// (and lets a stale triple be recognized after the key is overwritten).
type expiryKey struct {
	expiresAt time.Time
	id        uint64
	key       string
}

func (a expiryKey) less(b expiryKey) bool {
	if !a.expiresAt.Equal(b.expiresAt) {
		return a.expiresAt.Before(b.expiresAt)
	}
	return a.id < b.id
}

// Database is the shared state handle described in the data model: a
// keyspace, an ordered expiration index, and a pub/sub channel table, all
// mutated under one mutex, plus a single-slot wake signal for the
// background expiration goroutine.
type Database struct {
	mu sync.Mutex

	entries     map[string]entry
	expirations []expiryKey // sorted ascending by (expiresAt, id)
	channels    map[string]*broadcaster
	nextID      uint64
	shutdown    bool

	wake   chan struct{} // capacity 1: background task's wake signal
	closed chan struct{} // closed once the background goroutine exits

	logger *slog.Logger
}

// New creates an empty Database and starts its background expiration
// goroutine. Close must be called once the database is no longer needed
// so that goroutine can exit.
func New(logger *slog.Logger) *Database {
	if logger == nil {
		logger = slog.Default()
	}
	db := &Database{
		entries:  make(map[string]entry),
		channels: make(map[string]*broadcaster),
		wake:     make(chan struct{}, 1),
		closed:   make(chan struct{}),
		logger:   logger,
	}
	go db.purgeLoop()
	return db
}

// Get returns the value stored for key, or ok=false if there is no entry
// or the entry has expired. An expired-but-not-yet-reaped entry is
// treated as absent, never returned.
func (db *Database) Get(key string) (value []byte, ok bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	e, found := db.entries[key]
	if !found {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(time.Now()) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with an optional TTL (ttl <= 0 means no
// expiration), replacing any prior entry and its expiration. If the new
// entry becomes the earliest scheduled expiration, the background
// goroutine is woken so it re-evaluates its sleep.
func (db *Database) Set(key string, value []byte, ttl time.Duration) {
	db.mu.Lock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	notify := false
	if !expiresAt.IsZero() {
		if next, ok := db.nextExpiration(); !ok || expiresAt.Before(next) {
			notify = true
		}
	}

	id := db.nextID
	db.nextID++

	if prev, ok := db.entries[key]; ok && !prev.expiresAt.IsZero() {
		db.removeExpiration(expiryKey{expiresAt: prev.expiresAt, id: prev.id, key: key})
	}

	db.entries[key] = entry{value: value, expiresAt: expiresAt, id: id}

	if !expiresAt.IsZero() {
		db.insertExpiration(expiryKey{expiresAt: expiresAt, id: id, key: key})
	}

	db.mu.Unlock()

	if notify {
		db.signal()
	}
}

// Subscribe creates (or joins) the channel's broadcast endpoint and
// returns a new Subscription plus the channel's current subscriber count,
// including this new subscriber.
func (db *Database) Subscribe(channel string) (*Subscription, int) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, ok := db.channels[channel]
	if !ok {
		b = &broadcaster{subs: make(map[uint64]*subscriber)}
		db.channels[channel] = b
	}

	b.nextSubID++
	id := b.nextSubID
	sub := &subscriber{
		ch:     make(chan []byte, subscriberBacklog),
		lagged: make(chan uint64, 1),
	}
	b.subs[id] = sub

	return &Subscription{
		db:       db,
		Channel:  channel,
		Messages: sub.ch,
		Lagged:   sub.lagged,
		id:       id,
	}, len(b.subs)
}

// unsubscribe removes the given subscriber id from channel, pruning the
// channel's broadcaster entirely once its last subscriber leaves. Returns
// the remaining subscriber count.
func (db *Database) unsubscribe(channel string, id uint64) int {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, ok := db.channels[channel]
	if !ok {
		return 0
	}
	delete(b.subs, id)
	remaining := len(b.subs)
	if remaining == 0 {
		delete(db.channels, channel)
	}
	return remaining
}

// Publish broadcasts message to channel's subscribers and returns how
// many were subscribed at the moment of the call. Sends into each
// subscriber's buffer are always non-blocking: a slow subscriber has its
// oldest buffered message dropped to make room, which surfaces on that
// subscriber's Lagged channel rather than stalling the publisher.
func (db *Database) Publish(channel string, message []byte) int {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, ok := db.channels[channel]
	if !ok {
		return 0
	}
	for _, sub := range b.subs {
		sub.send(message)
	}
	return len(b.subs)
}

// Close signals the background expiration goroutine to exit and blocks
// until it has. Safe to call once, after every handler holding a
// reference to this Database has stopped using it.
func (db *Database) Close() {
	db.mu.Lock()
	db.shutdown = true
	db.mu.Unlock()

	db.signal()
	<-db.closed
}

func (db *Database) signal() {
	select {
	case db.wake <- struct{}{}:
	default:
	}
}

// nextExpiration reports the earliest scheduled expiration. Caller must
// hold db.mu.
func (db *Database) nextExpiration() (time.Time, bool) {
	if len(db.expirations) == 0 {
		return time.Time{}, false
	}
	return db.expirations[0].expiresAt, true
}

// insertExpiration inserts ek into the sorted expiration index. Caller
// must hold db.mu.
func (db *Database) insertExpiration(ek expiryKey) {
	i := sort.Search(len(db.expirations), func(i int) bool {
		return !db.expirations[i].less(ek)
	})
	db.expirations = append(db.expirations, expiryKey{})
	copy(db.expirations[i+1:], db.expirations[i:])
	db.expirations[i] = ek
}

// removeExpiration removes ek from the sorted expiration index, if
// present. Caller must hold db.mu.
func (db *Database) removeExpiration(ek expiryKey) {
	i := sort.Search(len(db.expirations), func(i int) bool {
		return !db.expirations[i].less(ek)
	})
	if i < len(db.expirations) && db.expirations[i] == ek {
		db.expirations = append(db.expirations[:i], db.expirations[i+1:]...)
	}
}

// purgeExpired removes every triple whose timestamp has passed, deleting
// the backing entry whenever its insertion id still matches (a later Set
// on the same key would have already removed the stale triple, but this
// guards against any ordering this code hasn't anticipated). It returns
// the next scheduled expiration, if any, and whether the database is
// shutting down.
func (db *Database) purgeExpired() (next time.Time, shutdown bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.shutdown {
		return time.Time{}, true
	}

	now := time.Now()
	for len(db.expirations) > 0 {
		head := db.expirations[0]
		if head.expiresAt.After(now) {
			return head.expiresAt, false
		}
		db.expirations = db.expirations[1:]
		if e, ok := db.entries[head.key]; ok && e.id == head.id {
			delete(db.entries, head.key)
		}
	}
	return time.Time{}, false
}

// purgeLoop is the background expiration goroutine: reap everything due,
// then sleep until the next expiration or until woken by a Set that
// scheduled something sooner, repeating until shutdown.
func (db *Database) purgeLoop() {
	defer close(db.closed)

	for {
		next, shutdown := db.purgeExpired()
		if shutdown {
			db.logger.Debug("expiration goroutine shutting down")
			return
		}

		if next.IsZero() {
			<-db.wake
			continue
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
		case <-db.wake:
			if !timer.Stop() {
				<-timer.C
			}
		}
	}
}
