package model

import (
	"fmt"
	"strings"
	"time"
)

// Unit is the interval unit of a Recurrence.
type Unit int

const (
	UnitNone Unit = iota
	UnitHours
	UnitDays
	UnitWeeks
	UnitMonths
)

func (u Unit) String() string {
	switch u {
	case UnitHours:
		return "hour"
	case UnitDays:
		return "day"
	case UnitWeeks:
		return "week"
	case UnitMonths:
		return "month"
	default:
		return ""
	}
}

// ParseUnit accepts singular or plural unit names.
func ParseUnit(s string) (Unit, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s") {
	case "hour":
		return UnitHours, nil
	case "day":
		return UnitDays, nil
	case "week":
		return UnitWeeks, nil
	case "month":
		return UnitMonths, nil
	default:
		return UnitNone, fmt.Errorf("unknown unit %q", s)
	}
}

// Interval is a unit tag paired with a magnitude. Holding both in one value
// means exactly one unit is ever set.
type Interval struct {
	Unit  Unit
	Every int
}

// Recurrence anchors a repeating event.
type Recurrence struct {
	FirstStart time.Time
	TimesHeld  int
	Interval   Interval
}

// NewRecurrence starts a recurrence anchored at first.
func NewRecurrence(first time.Time, unit Unit, every int) *Recurrence {
	return &Recurrence{
		FirstStart: first,
		Interval:   Interval{Unit: unit, Every: every},
	}
}

// SetInterval replaces the interval; any previously set unit is cleared.
func (r *Recurrence) SetInterval(unit Unit, every int) {
	r.Interval = Interval{Unit: unit, Every: every}
}
