// Package session keeps the per-session log of question and SQL turns.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrInvalidID = errors.New("invalid session id")

type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

type Turn struct {
	Question  string    `json:"question"`
	SQL       string    `json:"sql"`
	Outcome   Outcome   `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}

var placeholderIDs = map[string]struct{}{
	"null":      {},
	"undefined": {},
	"none":      {},
	"nil":       {},
}

// ValidateID rejects empty ids and the placeholder tokens clients send when
// they lost their id.
func ValidateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ErrInvalidID
	}
	if _, ok := placeholderIDs[strings.ToLower(trimmed)]; ok {
		return ErrInvalidID
	}
	return nil
}

type log struct {
	mu       sync.Mutex
	turns    []Turn
	lastSeen time.Time
	evicted  bool
}

// Store holds session logs in memory. Appends to one session are serialized;
// different sessions never block each other beyond the map lookup.
type Store struct {
	// MaxTurns bounds each log, dropping the oldest turns. Zero means unbounded.
	MaxTurns int
	Clock    func() time.Time

	mu   sync.Mutex
	logs map[string]*log
}

func NewStore(maxTurns int) *Store {
	return &Store{MaxTurns: maxTurns, Clock: time.Now, logs: map[string]*log{}}
}

func (s *Store) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

func (s *Store) logFor(id string) *log {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logs == nil {
		s.logs = map[string]*log{}
	}
	l, ok := s.logs[id]
	if !ok {
		l = &log{}
		s.logs[id] = l
	}
	return l
}

// Get returns a copy of the session's turns, oldest first.
func (s *Store) Get(id string) []Turn {
	s.mu.Lock()
	l, ok := s.logs[id]
	s.mu.Unlock()
	if !ok {
		return []Turn{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Turn{}, l.turns...)
}

func (s *Store) Append(id string, turn Turn) {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}
	for {
		l := s.logFor(id)
		l.mu.Lock()
		if l.evicted {
			// lost a race with EvictIdle; the next lookup creates a fresh log
			l.mu.Unlock()
			continue
		}
		l.turns = append(l.turns, turn)
		if s.MaxTurns > 0 && len(l.turns) > s.MaxTurns {
			drop := len(l.turns) - s.MaxTurns
			l.turns = append(l.turns[:0:0], l.turns[drop:]...)
		}
		l.lastSeen = s.now()
		l.mu.Unlock()
		return
	}
}

// EvictIdle removes sessions whose last append is before cutoff and returns
// how many were removed.
func (s *Store) EvictIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, l := range s.logs {
		l.mu.Lock()
		if l.lastSeen.Before(cutoff) {
			l.evicted = true
			delete(s.logs, id)
			removed++
		}
		l.mu.Unlock()
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}
