// Package server implements the accept loop and per-connection handler:
// a buffered channel used as a connection-limit semaphore (acquiring a
// permit suspends the accept loop at capacity rather than erroring), an
// exponential backoff accept retry, and a graceful shutdown drain.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"pocketredis.dev/pocketredis/internal/database"
	"pocketredis.dev/pocketredis/internal/metrics"
	"pocketredis.dev/pocketredis/internal/shutdown"
	"pocketredis.dev/pocketredis/pkg/connection"
)

// DefaultMaxConnections is the out-of-the-box connection limit.
const DefaultMaxConnections = 250

// Config holds the tunables New needs. Zero values fall back to defaults
// except Logger, which must not be nil if the caller wants anything
// logged anywhere but the default slog handler.
type Config struct {
	MaxConnections  int
	IdleTimeout     time.Duration // 0 disables read deadlines
	ShutdownTimeout time.Duration // 0 waits for the drain unboundedly
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// Server accepts connections on a listener and dispatches each to its own
// handler goroutine, all sharing one Database and one shutdown Signal.
type Server struct {
	db       *database.Database
	shutdown *shutdown.Signal
	logger   *slog.Logger
	metrics  *metrics.Metrics

	permits         chan struct{}
	wg              sync.WaitGroup
	idleTimeout     time.Duration
	shutdownTimeout time.Duration

	entropy *ulidSource
}

// New builds a Server. db and sig are owned by the caller, who is
// responsible for triggering sig and closing db after Serve returns.
func New(db *database.Database, sig *shutdown.Signal, cfg Config) *Server {
	maxConnections := cfg.MaxConnections
	if maxConnections <= 0 {
		maxConnections = DefaultMaxConnections
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		db:              db,
		shutdown:        sig,
		logger:          logger,
		metrics:         m,
		permits:         make(chan struct{}, maxConnections),
		idleTimeout:     cfg.IdleTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		entropy:         newULIDSource(),
	}
}

// Serve accepts connections from ln until it is closed or shutdown is
// triggered, dispatching each to its own handler goroutine. It returns nil
// once the listener is closed (the expected shutdown path), or a non-nil
// error if repeated accept failures exceeded the backoff schedule.
//
// A permit is acquired before every accept: at capacity, acquisition
// suspends rather than erroring, so a burst of connections beyond
// max_connections simply queues in the kernel's TCP accept backlog until
// a permit frees up.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("accepting inbound connections", "address", ln.Addr().String())

	for {
		select {
		case s.permits <- struct{}{}:
		case <-s.shutdown.Done():
			s.logger.Info("listener closed, no longer accepting connections")
			return nil
		}

		conn, err := s.accept(ln)
		if err != nil {
			<-s.permits // release the permit, no connection claimed it
			if errors.Is(err, net.ErrClosed) {
				break
			}
			return fmt.Errorf("server: accept: %w", err)
		}

		s.wg.Add(1)
		s.metrics.ConnectionsAccepted.Inc()
		s.metrics.ActiveConnections.Inc()
		connID := s.entropy.next()
		go s.handleConnection(conn, connID)
	}

	s.logger.Info("listener closed, no longer accepting connections")
	return nil
}

// Drain blocks until every handler goroutine started by Serve has
// returned, or until timeout elapses (a timeout of 0 waits unboundedly).
// Callers trigger the shutdown Signal and close the listener before
// calling Drain.
func (s *Server) Drain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return
	}

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("shutdown timeout exceeded, proceeding with handlers still draining")
	}
}

// accept retries ln.Accept on transient errors with exponential backoff:
// 1s, 2s, 4s, ... doubling on each failure, giving up once the next wait
// would exceed 64s.
func (s *Server) accept(ln net.Listener) (net.Conn, error) {
	backoff := 1 * time.Second
	for {
		conn, err := ln.Accept()
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, err
		}
		if backoff > 64*time.Second {
			return nil, err
		}
		s.logger.Error("failed to accept connection, retrying", "error", err, "backoff", backoff)
		time.Sleep(backoff)
		backoff *= 2
	}
}

func (s *Server) handleConnection(conn net.Conn, connID string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("connection handler panicked", "conn_id", connID, "panic", r)
		}
		_ = conn.Close()
		<-s.permits
		s.metrics.ActiveConnections.Dec()
		s.wg.Done()
	}()

	log := s.logger.With("conn_id", connID, "remote_addr", conn.RemoteAddr().String())
	log.Info("new connection")

	h := &handler{
		server: s,
		conn:   connection.New(conn),
		log:    log,
		subs:   make(map[string]*subState),
	}
	h.run()

	log.Info("connection closed")
}
