package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatherbot/internal/model"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestSweepIdleThreshold(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(0, WithClock(c.now))
	d := model.NewDraft("g", "42", "Alice")
	s.Save(d)

	assert.Empty(t, s.Sweep(c.t.Add(time.Hour+59*time.Minute)))
	assert.Equal(t, 1, s.Len())

	assert.Equal(t, []string{"42"}, s.Sweep(c.t.Add(2*time.Hour+time.Minute)))
	_, ok := s.Get("42")
	assert.False(t, ok)
}

func TestGetTouches(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(time.Hour, WithClock(c.now))
	d := model.NewDraft("g", "42", "Alice")
	s.Save(d)

	c.t = c.t.Add(50 * time.Minute)
	_, ok := s.Get("42")
	require.True(t, ok)

	assert.Empty(t, s.Sweep(c.t.Add(50*time.Minute)))
}

func TestSaveAndGetCopy(t *testing.T) {
	s := NewStore(time.Hour)
	d := model.NewDraft("g", "42", "Alice")
	d.Name = "first"
	s.Save(d)
	d.Name = "mutated"

	got, ok := s.Get("42")
	require.True(t, ok)
	assert.Equal(t, "first", got.Name)
	got.Name = "again"

	got2, _ := s.Get("42")
	assert.Equal(t, "first", got2.Name)
}

func TestOneDraftPerAuthor(t *testing.T) {
	s := NewStore(time.Hour)
	first := model.NewDraft("g", "42", "Alice")
	second := model.NewDraft("g", "42", "Alice")
	s.Save(first)
	s.Save(second)
	assert.Equal(t, 1, s.Len())

	got, _ := s.Get("42")
	assert.Equal(t, second.ID, got.ID)
}

func TestReleaseMatchesDraft(t *testing.T) {
	s := NewStore(time.Hour)
	d := model.NewDraft("g", "42", "Alice")
	s.Save(d)

	assert.False(t, s.Release("42", "other"))
	assert.True(t, s.Release("42", d.ID))
	assert.False(t, s.Release("42", d.ID))
	assert.False(t, s.Delete("42"))
}

func TestPeekDoesNotTouch(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(time.Hour, WithClock(c.now))
	s.Save(model.NewDraft("g", "42", "Alice"))

	c.t = c.t.Add(50 * time.Minute)
	_, ok := s.Peek("42")
	require.True(t, ok)

	assert.Equal(t, []string{"42"}, s.Sweep(c.t.Add(20*time.Minute)))
}
