package store

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/weather-assistant/internal/weather"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
	return NewMemoryStore(30*time.Minute, WithClock(clock.Now)), clock
}

var mumbai = weather.Coordinate{Lat: 19.07, Lon: 72.88}

func sessionOf(s *MemoryStore, id string) (ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ChatSession{}, false
	}
	return *sess, true
}

func TestSessionLifecycleCounts(t *testing.T) {
	s, _ := newTestStore()

	id, isFirst := s.LookupOrCreate("")
	if !isFirst {
		t.Fatalf("expected first question for new session")
	}
	if !strings.HasPrefix(id, "session_") {
		t.Fatalf("unexpected id format %q", id)
	}
	if s.Len() != 0 {
		t.Fatalf("minting must not insert, got %d sessions", s.Len())
	}

	sess := s.Touch(id, mumbai)
	if sess.QuestionCount != 1 {
		t.Fatalf("expected count 1, got %d", sess.QuestionCount)
	}

	again, isFirst := s.LookupOrCreate(id)
	if isFirst || again != id {
		t.Fatalf("expected reuse of %q, got %q (first=%v)", id, again, isFirst)
	}
	sess = s.Touch(again, mumbai)
	if sess.QuestionCount != 2 {
		t.Fatalf("expected count 2, got %d", sess.QuestionCount)
	}
}

func TestLookupOrCreateUnknownCandidateMintsNewID(t *testing.T) {
	s, _ := newTestStore()

	id, isFirst := s.LookupOrCreate("session_1_stale")
	if !isFirst || id == "session_1_stale" {
		t.Fatalf("expected a fresh id, got %q (first=%v)", id, isFirst)
	}
}

func TestMintedIDsAreUnique(t *testing.T) {
	s, _ := newTestStore()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, _ := s.LookupOrCreate("")
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestEvictIdle(t *testing.T) {
	s, clock := newTestStore()
	start := clock.Now()

	s.Touch("stale", mumbai)
	clock.Advance(2 * time.Minute)
	s.Touch("fresh", mumbai)

	// stale is 31 minutes idle, fresh 29.
	removed := s.EvictIdle(start.Add(31 * time.Minute))
	if removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if _, ok := sessionOf(s, "stale"); ok {
		t.Fatal("expected stale session gone")
	}
	if _, ok := sessionOf(s, "fresh"); !ok {
		t.Fatal("expected fresh session to survive")
	}
}

func TestSweepUsesStoreClock(t *testing.T) {
	s, clock := newTestStore()
	s.Touch("a", mumbai)

	clock.Advance(30 * time.Minute)
	if n := s.Sweep(); n != 0 {
		t.Fatalf("exactly ttl idle must survive, removed %d", n)
	}
	clock.Advance(time.Second)
	if n := s.Sweep(); n != 1 {
		t.Fatalf("expected eviction past ttl, removed %d", n)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, _ := newTestStore()
	s.Touch("a", mumbai)

	if !s.Delete("a") {
		t.Fatal("expected first delete to report found")
	}
	if s.Delete("a") {
		t.Fatal("expected second delete to report not found")
	}
}

func TestListNewestFirst(t *testing.T) {
	s, clock := newTestStore()
	s.Touch("old", mumbai)
	clock.Advance(time.Minute)
	s.Touch("new", weather.Coordinate{Lat: 28.61, Lon: 77.21})

	list := s.List()
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if list[0].LastCoordinate.Lat != 28.61 {
		t.Fatalf("expected last coordinate recorded, got %+v", list[0].LastCoordinate)
	}
}

func TestConcurrentTouch(t *testing.T) {
	s, _ := newTestStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Touch("shared", mumbai)
			s.List()
		}()
	}
	wg.Wait()

	sess, ok := sessionOf(s, "shared")
	if !ok || sess.QuestionCount != 50 {
		t.Fatalf("expected 50 touches, got %+v", sess)
	}
}
