package ics

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"gatherbot/internal/codec"
	appLog "gatherbot/internal/log"
	"gatherbot/internal/model"
	"gatherbot/internal/recurrence"
)

// UIDSuffix is appended to event ids to form VEVENT UIDs.
const UIDSuffix = "@gatherbot"

// BuildCalendar renders committed events as one VCALENDAR. Recurring events
// get an RRULE anchored at their current occurrence; drafts with an invalid
// recurrence are exported as single events.
func BuildCalendar(name string, drafts []*model.EventDraft, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendarFor("gatherbot")
	cal.SetMethod(ical.MethodPublish)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, d := range drafts {
		if d.Start.IsZero() {
			continue
		}
		ev := cal.AddEvent(d.ID + UIDSuffix)
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(d.Start)
		ev.SetEndAt(d.End())
		ev.SetSummary(d.Name)
		if d.Description != "" {
			ev.SetDescription(d.Description)
		}
		if loc := venueText(d); loc != "" {
			ev.SetLocation(loc)
		}
		if d.ThreadID != "" {
			ev.SetURL(codec.ChannelURL(d.GuildID, d.ThreadID))
		}

		if d.Recurrence != nil {
			rule, err := recurrence.RRuleString(d.Recurrence)
			if err != nil {
				appLog.Error("ics: skipping invalid recurrence", err, "event", d.ID)
				continue
			}
			ev.AddRrule(rule)
			ev.SetSequence(d.Recurrence.TimesHeld)
		}
	}
	return cal
}

// WriteCalendar serializes BuildCalendar's output to w.
func WriteCalendar(w io.Writer, name string, drafts []*model.EventDraft, stamp time.Time) error {
	return BuildCalendar(name, drafts, stamp).SerializeTo(w)
}
