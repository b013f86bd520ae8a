package server

import (
	"errors"
	"sync"
	"time"

	"github.com/evlink-labs/evlink/internal/domain"
	"github.com/evlink-labs/evlink/internal/session"
)

// ErrShutdownTimeout is returned when live sessions do not drain
// within the shutdown timeout.
var ErrShutdownTimeout = errors.New("evlink: shutdown timeout")

// supervisor tracks live sessions so graceful shutdown can close and
// drain them.
type supervisor struct {
	mu       sync.Mutex
	closing  bool
	sessions map[*session.Session]struct{}
	wg       sync.WaitGroup
}

func newSupervisor() *supervisor {
	return &supervisor{
		sessions: make(map[*session.Session]struct{}),
	}
}

// add registers a session. It returns false once shutdown has begun,
// in which case the caller must close the session itself.
func (s *supervisor) add(sess *session.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	return true
}

// remove deregisters a session added earlier.
func (s *supervisor) remove(sess *session.Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	s.wg.Done()
}

// active returns the number of tracked sessions.
func (s *supervisor) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// closeAll stops accepting new sessions and closes every tracked one
// with the given code.
func (s *supervisor) closeAll(code domain.CloseCode) {
	s.mu.Lock()
	s.closing = true
	live := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()

	for _, sess := range live {
		_ = sess.CloseWithCode(code)
	}
}

// waitWithTimeout waits for all tracked sessions to be removed.
// Returns ErrShutdownTimeout if the timeout expires first.
func (s *supervisor) waitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}
