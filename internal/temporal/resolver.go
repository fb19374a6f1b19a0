package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"gatherbot/internal/apperr"
)

// DefaultCacheSize bounds the format cache when the caller passes zero.
const DefaultCacheSize = 4096

// Layout is the wall-clock part of every rendered time. The rule name is
// appended after a space.
const Layout = "01/02/06 03:04 PM"

var dateRe = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4}|\d{2}) (\d{2}):(\d{2}) (AM|PM)$`)

// ResolveRule returns the first rule whose window contains date.
func ResolveRule(date time.Time, rules RuleSet) (Rule, error) {
	for _, r := range rules {
		if r.Window.Contains(date) {
			return r, nil
		}
	}
	return Rule{}, apperr.Configuration("no timezone rule covers %s", date.UTC().Format(time.RFC3339))
}

// Parse reads "MM/DD/YY[YY] HH:MM AM|PM" as wall-clock time in rule.
func Parse(text string, rule Rule) (time.Time, error) {
	y, mo, d, h, mi, err := parseWall(text)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y, mo, d, h, mi, 0, 0, rule.Location()), nil
}

// Format renders t in rule followed by the rule name.
func Format(t time.Time, rule Rule) string {
	return t.In(rule.Location()).Format(Layout) + " " + rule.Name
}

func parseWall(text string) (year int, month time.Month, day, hour, minute int, err error) {
	invalid := apperr.Validation("", "Invalid date format.")
	m := dateRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, 0, 0, 0, 0, invalid
	}
	mo, _ := strconv.Atoi(m[1])
	day, _ = strconv.Atoi(m[2])
	year, _ = strconv.Atoi(m[3])
	hour, _ = strconv.Atoi(m[4])
	minute, _ = strconv.Atoi(m[5])
	if len(m[3]) == 2 {
		year += 2000
	}
	if hour < 1 || hour > 12 || minute > 59 {
		return 0, 0, 0, 0, 0, invalid
	}
	hour %= 12
	if m[6] == "PM" {
		hour += 12
	}
	// Reject dates that time.Date would normalize, e.g. 02/30.
	norm := time.Date(year, time.Month(mo), day, 0, 0, 0, 0, time.UTC)
	if norm.Month() != time.Month(mo) || norm.Day() != day {
		return 0, 0, 0, 0, 0, invalid
	}
	return year, time.Month(mo), day, hour, minute, nil
}

type cacheKey struct {
	unix int64
	rule string
}

// Resolver binds a guild's rule table. Formatting is memoized in a bounded
// LRU; the cache only ever holds values Format would recompute.
type Resolver struct {
	rules RuleSet
	cache *lru.Cache[cacheKey, string]
}

// NewResolver validates every window. Coverage is not checked here; see
// CheckCoverage.
func NewResolver(rules RuleSet, cacheSize int) (*Resolver, error) {
	if len(rules) == 0 {
		return nil, apperr.Configuration("timezone rule table is empty")
	}
	for _, r := range rules {
		if r.Name == "" || strings.ContainsAny(r.Name, " \t\n") {
			return nil, apperr.Configuration("timezone rule name %q must be a single word", r.Name)
		}
		if err := r.Window.validate(); err != nil {
			return nil, &apperr.ConfigurationError{Msg: "timezone rule " + r.Name, Err: err}
		}
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{rules: rules, cache: cache}, nil
}

func (r *Resolver) Rules() RuleSet { return r.rules }

func (r *Resolver) Resolve(t time.Time) (Rule, error) {
	return ResolveRule(t, r.rules)
}

func (r *Resolver) RuleByName(name string) (Rule, bool) {
	return r.rules.ByName(name)
}

// Format renders t under whichever rule covers it.
func (r *Resolver) Format(t time.Time) (string, error) {
	rule, err := r.Resolve(t)
	if err != nil {
		return "", err
	}
	return r.FormatIn(t, rule), nil
}

// FormatIn renders t under rule, memoized.
func (r *Resolver) FormatIn(t time.Time, rule Rule) string {
	key := cacheKey{unix: t.Unix(), rule: rule.Name}
	if s, ok := r.cache.Get(key); ok {
		return s
	}
	s := Format(t, rule)
	r.cache.Add(key, s)
	return s
}

// ParseLocal reads user input as wall-clock time in whichever rule is in
// effect at that moment.
func (r *Resolver) ParseLocal(text string) (time.Time, Rule, error) {
	y, mo, d, h, mi, err := parseWall(text)
	if err != nil {
		return time.Time{}, Rule{}, err
	}
	for _, rule := range r.rules {
		t := time.Date(y, mo, d, h, mi, 0, 0, rule.Location())
		if rule.Window.Contains(t) {
			return t, rule, nil
		}
	}
	// Wall times inside a transition gap belong to no rule exactly; fall
	// back to the rule covering the naive UTC reading.
	naive := time.Date(y, mo, d, h, mi, 0, 0, time.UTC)
	rule, err := r.Resolve(naive)
	if err != nil {
		return time.Time{}, Rule{}, err
	}
	return time.Date(y, mo, d, h, mi, 0, 0, rule.Location()), rule, nil
}

// ParseNamed parses text rendered by Format, looking the rule up by name.
func (r *Resolver) ParseNamed(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	i := strings.LastIndexByte(text, ' ')
	if i < 0 {
		return time.Time{}, apperr.Validation("", "Invalid date format.")
	}
	rule, ok := r.RuleByName(text[i+1:])
	if !ok {
		return time.Time{}, apperr.Validation("", "Unknown timezone "+text[i+1:]+".")
	}
	return Parse(text[:i], rule)
}

// CheckCoverage tests every half hour of the given calendar year (UTC) and
// reports the first instant no rule covers.
func (r *Resolver) CheckCoverage(year int) error {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	for t := start; t.Before(end); t = t.Add(30 * time.Minute) {
		if _, err := r.Resolve(t); err != nil {
			return err
		}
	}
	return nil
}
