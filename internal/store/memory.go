package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// DefaultIdleTTL is how long a session may stay untouched before the sweep removes it.
const DefaultIdleTTL = 30 * time.Minute

var (
	// ErrNotFound reports that no session exists for a given id.
	ErrNotFound = errors.New("session not found")
)

// ChatSession is the per-conversation state the assistant keeps between questions.
type ChatSession struct {
	ID             string             `json:"sessionId"`
	QuestionCount  int                `json:"questionCount"`
	LastActivity   time.Time          `json:"lastActivity"`
	LastCoordinate weather.Coordinate `json:"location"`
}

// MemoryStore is a concurrency-safe in-memory session store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: session id
	sessions map[string]*ChatSession

	ttl time.Duration
	now func() time.Time
}

// Option customizes a MemoryStore.
type Option func(*MemoryStore)

// WithClock replaces the time source. Used by tests to move time.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty store. A non-positive ttl falls back to DefaultIdleTTL.
func NewMemoryStore(ttl time.Duration, opts ...Option) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	s := &MemoryStore{
		sessions: make(map[string]*ChatSession),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LookupOrCreate reuses candidate when it names an active session. Otherwise it mints a new id
// and reports isFirst. Minting does not insert: the session exists only after Touch.
func (s *MemoryStore) LookupOrCreate(candidate string) (id string, isFirst bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate != "" {
		s.mu.RLock()
		_, ok := s.sessions[candidate]
		s.mu.RUnlock()
		if ok {
			return candidate, false
		}
	}
	return s.newID(), true
}

func (s *MemoryStore) newID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("session_%d_%s", s.now().UnixMilli(), suffix)
}

// Touch records one more question on the session, creating it if needed.
func (s *MemoryStore) Touch(id string, coord weather.Coordinate) ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &ChatSession{ID: id}
		s.sessions[id] = sess
	}
	sess.QuestionCount++
	sess.LastActivity = s.now()
	sess.LastCoordinate = coord
	return *sess
}

// EvictIdle removes every session idle for longer than the ttl and returns how many went.
func (s *MemoryStore) EvictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActivity) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Sweep is EvictIdle against the store's own clock.
func (s *MemoryStore) Sweep() int {
	return s.EvictIdle(s.now())
}

// Delete removes a session. It reports false when the id was unknown.
func (s *MemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// List returns a snapshot of all sessions, most recently active first.
func (s *MemoryStore) List() []ChatSession {
	s.mu.RLock()
	out := make([]ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Len returns the number of active sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
