package recurrence

import (
	"github.com/teambition/rrule-go"

	"gatherbot/internal/model"
)

var frequencies = map[model.Unit]rrule.Frequency{
	model.UnitHours:  rrule.HOURLY,
	model.UnitDays:   rrule.DAILY,
	model.UnitWeeks:  rrule.WEEKLY,
	model.UnitMonths: rrule.MONTHLY,
}

// RRule expresses rec as an RFC 5545 rule anchored at FirstStart, for
// calendar exports. Monthly rules follow RFC 5545 and skip months that lack
// the anchor's day, unlike NextOccurrence which rolls over.
func RRule(rec *model.Recurrence) (*rrule.RRule, error) {
	if err := Validate(rec); err != nil {
		return nil, err
	}
	return rrule.NewRRule(rrule.ROption{
		Freq:     frequencies[rec.Interval.Unit],
		Interval: rec.Interval.Every,
		Dtstart:  rec.FirstStart,
	})
}

// RRuleString is the RRULE property value, e.g. "FREQ=WEEKLY;INTERVAL=2".
func RRuleString(rec *model.Recurrence) (string, error) {
	r, err := RRule(rec)
	if err != nil {
		return "", err
	}
	return r.OrigOptions.RRuleString(), nil
}
