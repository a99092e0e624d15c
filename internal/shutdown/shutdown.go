// Package shutdown provides a one-shot, multi-receiver "please stop" signal.
//
// Go has no multi-consumer broadcast channel in the standard library, but
// it has the idiomatic equivalent already built into the language: closing
// a channel wakes every goroutine blocked on a receive from it, exactly
// once, and a later receive on a closed channel returns immediately
// forever after. A Signal is just that channel plus a guard against
// closing it twice.
package shutdown

import "sync"

// Signal is created once per server and shared by every holder that needs
// to observe shutdown: the accept loop and every connection handler. The
// database's background expiration task does not watch it; it stops when
// Database.Close is called.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// New returns a Signal that has not yet fired.
func New() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Trigger fires the signal. Safe to call more than once or from multiple
// goroutines; only the first call has any effect.
func (s *Signal) Trigger() {
	s.once.Do(func() { close(s.ch) })
}

// Done returns a channel that is closed once Trigger has been called.
// Receivers are cheap to share: every caller gets the same underlying
// channel, there is nothing to subscribe or unsubscribe.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

// IsShutdown reports whether Trigger has already fired, without blocking.
func (s *Signal) IsShutdown() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
