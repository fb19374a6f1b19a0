package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsDeep(t *testing.T) {
	d := NewDraft("1", "42", "Alice")
	d.Attendees.Add("42")
	d.Recurrence = NewRecurrence(time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC), UnitWeeks, 1)

	c := d.Clone()
	c.Attendees.Add("43")
	c.Recurrence.TimesHeld = 5
	c.Name = "changed"

	assert.Equal(t, 1, d.Attendees.Len())
	assert.Equal(t, 0, d.Recurrence.TimesHeld)
	assert.Empty(t, d.Name)
	assert.Equal(t, d.ID, c.ID)
}

func TestSetIntervalClearsPreviousUnit(t *testing.T) {
	r := NewRecurrence(time.Time{}, UnitDays, 3)
	r.SetInterval(UnitMonths, 1)
	assert.Equal(t, Interval{Unit: UnitMonths, Every: 1}, r.Interval)
}

func TestParseUnit(t *testing.T) {
	for in, want := range map[string]Unit{"hours": UnitHours, "Day": UnitDays, "weeks": UnitWeeks, "month": UnitMonths} {
		got, err := ParseUnit(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseUnit("fortnight")
	assert.Error(t, err)
}

func TestAttendeeSetSorted(t *testing.T) {
	s := NewAttendeeSet("100", "9", "42")
	assert.Equal(t, []string{"9", "42", "100"}, s.Sorted())
	assert.False(t, s.Add("9"))
	assert.True(t, s.Remove("9"))
	assert.False(t, s.Has("9"))
}

func TestVenueKinds(t *testing.T) {
	d := NewDraft("1", "42", "Alice")
	assert.Equal(t, KindExternal, d.Kind())

	d.Venue = ChannelVenue(KindStage, "77")
	assert.Equal(t, KindStage, d.Kind())
	id, ok := VenueChannelID(d.Venue)
	assert.True(t, ok)
	assert.Equal(t, "77", id)

	assert.Nil(t, ChannelVenue(KindExternal, "77"))
}
