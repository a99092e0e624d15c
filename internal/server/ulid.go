package server

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ulidSource hands out monotonically increasing ULIDs for conn_id log
// correlation, serialized behind a mutex since ulid.Monotonic is not
// itself safe for concurrent use.
type ulidSource struct {
	mu      sync.Mutex
	entropy io.Reader
}

func newULIDSource() *ulidSource {
	return &ulidSource{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (s *ulidSource) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), s.entropy)
	if err != nil {
		// Monotonic overflow within the same millisecond is the only
		// documented failure mode; fall back to a fresh, non-monotonic id.
		id, _ = ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	}
	return id.String()
}
