package invoice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// DefaultSessionTTL is how long an idle session keeps its result
const DefaultSessionTTL = 24 * time.Hour

// IDGenerator generates unique session IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Session is one browser session. It holds at most one extraction result;
// each successful extraction replaces it and nothing ever clears it.
type Session struct {
	ID string

	ctx      context.Context
	cancel   context.CancelFunc
	inflight *semaphore.Weighted

	mu       sync.Mutex
	result   *Result
	lastSeen time.Time
}

func newSession(id string, now time.Time) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:       id,
		ctx:      ctx,
		cancel:   cancel,
		inflight: semaphore.NewWeighted(1),
		lastSeen: now,
	}
}

// Result returns the current result without consuming it
func (s *Session) Result() (*Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.result != nil
}

// Done is closed when the session ends
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) store(r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = r
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Sessions keeps the live sessions in memory
type Sessions struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	ttl         time.Duration
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewSessions creates a registry with uuid session IDs
func NewSessions(ttl time.Duration) *Sessions {
	return NewSessionsWithDeps(ttl, &uuidGenerator{}, &defaultTimeSource{})
}

// NewSessionsWithDeps creates a registry with custom dependencies for testing
func NewSessionsWithDeps(ttl time.Duration, idGen IDGenerator, timeSrc TimeSource) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{
		sessions:    make(map[string]*Session),
		ttl:         ttl,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Create starts a new session
func (s *Sessions) Create() *Session {
	sess := newSession(s.idGenerator.Generate(), s.timeSource.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess
}

// Get returns a live session and marks it as active
func (s *Sessions) Get(id string) (*Session, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	sess.touch(s.timeSource.Now())
	return sess, true
}

// Len returns the number of live sessions
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Purge ends every session idle for longer than the TTL and returns how many ended
func (s *Sessions) Purge() int {
	cutoff := s.timeSource.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			sess.cancel()
			delete(s.sessions, id)
			purged++
		}
	}
	return purged
}

// Run purges idle sessions every interval until ctx is done
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Purge(); n > 0 {
				slog.Info("Purged idle sessions", "count", n, "remaining", s.Len())
			}
		}
	}
}

// Close ends every session
func (s *Sessions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.cancel()
		delete(s.sessions, id)
	}
}
