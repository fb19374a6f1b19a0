// Package recurrence computes occurrences of repeating events.
//
// Arithmetic is calendar based: months roll over the way time.AddDate
// normalizes them and hour-of-day is preserved in the wall clock of
// FirstStart's location, so results may shift by a civil offset across
// daylight-saving transitions.
package recurrence

import (
	"fmt"
	"time"

	"gatherbot/internal/apperr"
	"gatherbot/internal/model"
)

// GraceWindow is how far behind now an occurrence may lag before catch-up
// keeps advancing. Inside the window the occurrence is pushed forward by
// exactly GraceWindow instead.
const GraceWindow = 5 * time.Minute

// maxCatchUpSteps guards against runaway loops on absurd inputs.
const maxCatchUpSteps = 1 << 20

// Schedule is the start/end pair produced by CatchUp.
type Schedule struct {
	Start time.Time
	End   time.Time
}

// Validate rejects a zero or negative magnitude and a missing or unknown
// unit.
func Validate(rec *model.Recurrence) error {
	if rec == nil {
		return apperr.Validation("Recurrence", "No recurrence configured.")
	}
	switch u := rec.Interval.Unit; {
	case u == model.UnitNone:
		return apperr.Validation("Unit", "Recurrence unit is missing.")
	case u < model.UnitHours || u > model.UnitMonths:
		return apperr.Validation("Unit", "Recurrence unit is not one of hours, days, weeks or months.")
	}
	if rec.Interval.Every <= 0 {
		return apperr.Validation("Every", "Recurrence interval must be a positive number.")
	}
	if rec.TimesHeld < 0 {
		return apperr.Validation("TimesHeld", "Times held cannot be negative.")
	}
	return nil
}

// add moves t forward by n units.
func add(t time.Time, unit model.Unit, n int) time.Time {
	switch unit {
	case model.UnitHours:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+n, t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	case model.UnitDays:
		return t.AddDate(0, 0, n)
	case model.UnitWeeks:
		return t.AddDate(0, 0, 7*n)
	case model.UnitMonths:
		return t.AddDate(0, n, 0)
	default:
		panic(fmt.Sprintf("recurrence: unit %d", unit))
	}
}

// NextOccurrence is FirstStart plus Every*(TimesHeld+1) units.
func NextOccurrence(rec *model.Recurrence) (time.Time, error) {
	if err := Validate(rec); err != nil {
		return time.Time{}, err
	}
	return add(rec.FirstStart, rec.Interval.Unit, rec.Interval.Every*(rec.TimesHeld+1)), nil
}

// CatchUp advances rec until its next occurrence is at or after now. It
// always advances at least once and mutates rec.TimesHeld.
func CatchUp(rec *model.Recurrence, durationHours int, now time.Time) (Schedule, error) {
	if err := Validate(rec); err != nil {
		return Schedule{}, err
	}
	duration := time.Duration(durationHours) * time.Hour

	var s Schedule
	for step := 0; ; step++ {
		if step >= maxCatchUpSteps {
			return Schedule{}, apperr.Validation("Recurrence", "Recurrence is too far behind to catch up.")
		}
		next, _ := NextOccurrence(rec)
		rec.TimesHeld++
		s = Schedule{Start: next, End: next.Add(duration)}

		if !next.Before(now) {
			return s, nil
		}
		if now.Sub(next) < GraceWindow {
			s.Start = next.Add(GraceWindow)
			s.End = s.Start.Add(duration)
			return s, nil
		}
	}
}

// Upcoming lists occurrences of rec that start in [from, to), beginning at
// FirstStart (index 0) and stopping after limit results. rec is not mutated.
func Upcoming(rec *model.Recurrence, from, to time.Time, limit int) ([]time.Time, error) {
	if err := Validate(rec); err != nil {
		return nil, err
	}
	var out []time.Time
	for i := 0; i < maxCatchUpSteps && len(out) < limit; i++ {
		t := add(rec.FirstStart, rec.Interval.Unit, rec.Interval.Every*i)
		if !t.Before(to) {
			break
		}
		if !t.Before(from) {
			out = append(out, t)
		}
	}
	return out, nil
}
