package temporal

import (
	"fmt"
	"strings"
	"time"
)

// Bound is one end of a validity window. Year 0 means the bound repeats every
// year; otherwise it is an absolute point in time. Bounds are UTC.
type Bound struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// ParseBound accepts "MM-DD HH:MM" (annual) or "YYYY-MM-DD HH:MM" (absolute).
func ParseBound(s string) (Bound, error) {
	s = strings.TrimSpace(s)
	layout := "01-02 15:04"
	annual := true
	if strings.Count(s, "-") == 2 {
		layout = "2006-01-02 15:04"
		annual = false
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Bound{}, fmt.Errorf("invalid window bound %q: %w", s, err)
	}
	b := Bound{Month: t.Month(), Day: t.Day(), Hour: t.Hour(), Minute: t.Minute()}
	if !annual {
		b.Year = t.Year()
	}
	return b, nil
}

func (b Bound) Annual() bool { return b.Year == 0 }

func (b Bound) String() string {
	if b.Annual() {
		return fmt.Sprintf("%02d-%02d %02d:%02d", int(b.Month), b.Day, b.Hour, b.Minute)
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d", b.Year, int(b.Month), b.Day, b.Hour, b.Minute)
}

func (b Bound) key() int {
	return int(b.Month)*1_000_000 + b.Day*10_000 + b.Hour*100 + b.Minute
}

func (b Bound) time() time.Time {
	return time.Date(b.Year, b.Month, b.Day, b.Hour, b.Minute, 0, 0, time.UTC)
}

func yearKey(t time.Time) int {
	t = t.UTC()
	return int(t.Month())*1_000_000 + t.Day()*10_000 + t.Hour()*100 + t.Minute()
}

// Window is the half-open interval [Start, End). Annual windows whose start
// is after their end wrap across the new year; equal annual bounds cover the
// whole year.
type Window struct {
	Start Bound
	End   Bound
}

// ParseWindow parses both bounds and validates the result.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseBound(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseBound(end)
	if err != nil {
		return Window{}, err
	}
	w := Window{Start: s, End: e}
	if err := w.validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func (w Window) validate() error {
	if w.Start.Annual() != w.End.Annual() {
		return fmt.Errorf("window %s..%s mixes annual and absolute bounds", w.Start, w.End)
	}
	if !w.Start.Annual() && !w.Start.time().Before(w.End.time()) {
		return fmt.Errorf("window %s..%s is empty", w.Start, w.End)
	}
	return nil
}

func (w Window) Contains(t time.Time) bool {
	if !w.Start.Annual() {
		t = t.UTC()
		return !t.Before(w.Start.time()) && t.Before(w.End.time())
	}
	k, s, e := yearKey(t), w.Start.key(), w.End.key()
	switch {
	case s == e:
		return true
	case s < e:
		return k >= s && k < e
	default:
		return k >= s || k < e
	}
}

// Rule is a named UTC-hour offset valid inside Window.
type Rule struct {
	Name   string
	Offset int
	Window Window
}

// Location is the fixed zone for the rule.
func (r Rule) Location() *time.Location {
	return time.FixedZone(r.Name, r.Offset*3600)
}

// RuleSet is searched in order; the first containing rule wins.
type RuleSet []Rule

func (rs RuleSet) ByName(name string) (Rule, bool) {
	for _, r := range rs {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}
