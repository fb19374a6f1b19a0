package model

import (
	"time"

	"github.com/google/uuid"
)

// EventDraft is the mutable unit of work edited by the editor and persisted
// by the codec. Until committed it is owned by its author; afterwards its
// identity and recurrence are re-read from the rendered state message.
type EventDraft struct {
	// ID is generated once and used as the join key for every lookup.
	ID string

	AuthorID   string
	AuthorName string // cosmetic, never used for identity
	GuildID    string

	// TypeName names the catalog entry this draft was created from. It is
	// not persisted; a committed event's type is the thread's parent channel.
	TypeName string

	Name        string
	Description string
	ImageURL    string

	Venue         Venue
	Start         time.Time
	DurationHours int

	// Capacity is the attendance cap, 0 when unlimited.
	Capacity  int
	Attendees AttendeeSet

	Recurrence *Recurrence

	// Back-references, set once committed.
	ThreadID         string
	MessageID        string
	ScheduledEventID string
}

// NewDraft returns a draft with a fresh id.
func NewDraft(guildID, authorID, authorName string) *EventDraft {
	return &EventDraft{
		ID:         uuid.NewString(),
		GuildID:    guildID,
		AuthorID:   authorID,
		AuthorName: authorName,
		Attendees:  NewAttendeeSet(),
	}
}

// End is Start plus the duration in whole hours.
func (d *EventDraft) End() time.Time {
	return d.Start.Add(time.Duration(d.DurationHours) * time.Hour)
}

// Committed reports whether the draft already has a published thread.
func (d *EventDraft) Committed() bool {
	return d.ThreadID != ""
}

// Kind returns the entity kind of the venue, KindExternal when unset.
func (d *EventDraft) Kind() EntityKind {
	if d.Venue == nil {
		return KindExternal
	}
	return d.Venue.Kind()
}

// Clone returns a deep copy so a page submission can be staged and
// discarded without touching the original.
func (d *EventDraft) Clone() *EventDraft {
	if d == nil {
		return nil
	}
	c := *d
	c.Attendees = d.Attendees.Clone()
	if d.Recurrence != nil {
		r := *d.Recurrence
		c.Recurrence = &r
	}
	return &c
}

// Occurrence is a single concrete instance of a committed event, after
// recurrence expansion and timezone normalization.
type Occurrence struct {
	EventID string

	// InstanceKey uniquely identifies one occurrence of a recurring event.
	InstanceKey string

	Summary     string
	Description string
	Location    string
	// URL points at the event's discussion thread.
	URL string

	Start time.Time
	End   time.Time
}
