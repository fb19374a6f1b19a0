// Package session keeps uncommitted and in-edit drafts in memory, one per
// author. Drafts idle for longer than the configured threshold are swept.
package session

import (
	"sync"
	"time"

	"gatherbot/internal/model"
)

// DefaultIdle is how long a draft survives without being touched.
const DefaultIdle = 2 * time.Hour

type entry struct {
	draft   *model.EventDraft
	touched time.Time
}

type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	idle    time.Duration
	now     func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(idle time.Duration, opts ...Option) *Store {
	if idle <= 0 {
		idle = DefaultIdle
	}
	s := &Store{entries: make(map[string]entry), idle: idle, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns a copy of the author's draft and refreshes its idle timer.
func (s *Store) Get(authorID string) (*model.EventDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[authorID]
	if !ok {
		return nil, false
	}
	e.touched = s.now()
	s.entries[authorID] = e
	return e.draft.Clone(), true
}

// Peek is Get without touching.
func (s *Store) Peek(authorID string) (*model.EventDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[authorID]
	if !ok {
		return nil, false
	}
	return e.draft.Clone(), true
}

// Save stores a copy of d under its author, replacing any previous draft of
// that author.
func (s *Store) Save(d *model.EventDraft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[d.AuthorID] = entry{draft: d.Clone(), touched: s.now()}
}

// Delete reports whether the author had a draft.
func (s *Store) Delete(authorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[authorID]; !ok {
		return false
	}
	delete(s.entries, authorID)
	return true
}

// Release deletes the author's draft only if it is draftID. It reports
// whether anything was removed.
func (s *Store) Release(authorID, draftID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[authorID]
	if !ok || e.draft.ID != draftID {
		return false
	}
	delete(s.entries, authorID)
	return true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops every draft idle longer than the threshold at now and returns
// the authors whose drafts were dropped.
func (s *Store) Sweep(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dropped []string
	for id, e := range s.entries {
		if now.Sub(e.touched) > s.idle {
			delete(s.entries, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}
