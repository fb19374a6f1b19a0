package model

import (
	"sort"
	"strconv"
)

// AttendeeSet is a membership set of user ids. Order is irrelevant; Sorted
// gives a stable order for rendering.
type AttendeeSet map[string]struct{}

func NewAttendeeSet(ids ...string) AttendeeSet {
	s := make(AttendeeSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add reports whether id was newly added.
func (s AttendeeSet) Add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Remove reports whether id was present.
func (s AttendeeSet) Remove(id string) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

func (s AttendeeSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s AttendeeSet) Len() int { return len(s) }

func (s AttendeeSet) Clone() AttendeeSet {
	c := make(AttendeeSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Sorted orders numeric ids numerically and everything else lexically.
func (s AttendeeSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.ParseUint(ids[i], 10, 64)
		b, errB := strconv.ParseUint(ids[j], 10, 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}
