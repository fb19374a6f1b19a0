package ics

import (
	"errors"
	"sort"
	"time"

	"gatherbot/internal/codec"
	appLog "gatherbot/internal/log"
	"gatherbot/internal/model"
	"gatherbot/internal/recurrence"
)

const (
	defaultMaxOccurrencesPerEvent = 500
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, time.UTC is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap for short intervals over long
	// windows. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the list of expanded occurrences and optionally
// information about truncation.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// TruncatedEvents records event ids that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// ExpandOccurrences turns committed events into concrete occurrences within
// the configured range, ordered by start.
//
// A recurring event contributes its current occurrence (the draft's Start,
// which may have been pushed by the catch-up grace window) followed by the
// later grid points of its recurrence. Grid points at or before Start are
// already held and are not listed.
func ExpandOccurrences(drafts []*model.EventDraft, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.UTC
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	all := make([]model.Occurrence, 0, len(drafts))
	for _, d := range drafts {
		if d.Start.IsZero() {
			continue
		}
		occ, hitCap := expandEvent(d, cfg)
		all = append(all, occ...)

		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, d.ID)
			appLog.Error("expand: truncated occurrences due to cap",
				errors.New("max occurrences reached"),
				"event", d.ID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })
	result.Occurrences = all
	return result, nil
}

func expandEvent(d *model.EventDraft, cfg ExpandConfig) ([]model.Occurrence, bool) {
	var out []model.Occurrence
	duration := d.End().Sub(d.Start)

	if timeRangesOverlap(d.Start, d.End(), cfg.RangeStart, cfg.RangeEnd) {
		out = append(out, makeOccurrence(d, d.Start, d.End(), cfg.DisplayLocation))
	}
	if d.Recurrence == nil {
		return out, false
	}

	// Later occurrences that started before the window may still overlap it.
	from := d.Start.Add(time.Nanosecond)
	if early := cfg.RangeStart.Add(-duration); early.After(from) {
		from = early
	}
	limit := cfg.MaxOccurrencesPerEvent - len(out)
	if limit <= 0 {
		return out, true
	}

	times, err := recurrence.Upcoming(d.Recurrence, from, cfg.RangeEnd.Add(time.Nanosecond), limit+1)
	if err != nil {
		appLog.Error("expand: invalid recurrence", err, "event", d.ID)
		return out, false
	}
	hitCap := false
	if len(times) > limit {
		times = times[:limit]
		hitCap = true
	}
	for _, start := range times {
		out = append(out, makeOccurrence(d, start, start.Add(duration), cfg.DisplayLocation))
	}
	return out, hitCap
}

// makeOccurrence converts a draft plus a specific start/end into a
// model.Occurrence normalized into displayLoc.
func makeOccurrence(d *model.EventDraft, start, end time.Time, displayLoc *time.Location) model.Occurrence {
	startLocal := start.In(displayLoc)

	occ := model.Occurrence{
		EventID:     d.ID,
		Summary:     d.Name,
		Description: d.Description,
		Location:    venueText(d),
		Start:       startLocal,
		End:         end.In(displayLoc),
	}
	if d.ThreadID != "" {
		occ.URL = codec.ChannelURL(d.GuildID, d.ThreadID)
	}

	// InstanceKey: event id plus UTC start is stable across display zones.
	occ.InstanceKey = d.ID + "@" + start.UTC().Format(time.RFC3339)
	return occ
}

func venueText(d *model.EventDraft) string {
	switch v := d.Venue.(type) {
	case model.ExternalVenue:
		return v.Location
	case nil:
		return ""
	default:
		id, _ := model.VenueChannelID(v)
		if id == "" {
			return ""
		}
		return codec.ChannelURL(d.GuildID, id)
	}
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
