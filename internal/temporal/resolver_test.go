package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatherbot/internal/apperr"
)

func mustBound(t *testing.T, s string) Bound {
	t.Helper()
	b, err := ParseBound(s)
	require.NoError(t, err)
	return b
}

// pacific is a simplified Pacific table: PDT from 03-10 10:00 UTC to
// 11-03 09:00 UTC, PST for the rest of the year.
func pacific(t *testing.T) RuleSet {
	return RuleSet{
		{Name: "PDT", Offset: -7, Window: Window{Start: mustBound(t, "03-10 10:00"), End: mustBound(t, "11-03 09:00")}},
		{Name: "PST", Offset: -8, Window: Window{Start: mustBound(t, "11-03 09:00"), End: mustBound(t, "03-10 10:00")}},
	}
}

func TestResolveRule(t *testing.T) {
	rules := pacific(t)

	r, err := ResolveRule(time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC), rules)
	require.NoError(t, err)
	assert.Equal(t, "PST", r.Name)

	r, err = ResolveRule(time.Date(2024, 7, 4, 12, 0, 0, 0, time.UTC), rules)
	require.NoError(t, err)
	assert.Equal(t, "PDT", r.Name)

	// Half-open: the end bound belongs to the next rule.
	r, err = ResolveRule(time.Date(2024, 11, 3, 9, 0, 0, 0, time.UTC), rules)
	require.NoError(t, err)
	assert.Equal(t, "PST", r.Name)
}

func TestResolveRuleGap(t *testing.T) {
	rules := RuleSet{{Name: "PDT", Offset: -7, Window: Window{Start: mustBound(t, "03-10 10:00"), End: mustBound(t, "11-03 09:00")}}}

	_, err := ResolveRule(time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC), rules)
	require.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))

	res, err := NewResolver(rules, 0)
	require.NoError(t, err)
	assert.True(t, apperr.IsConfiguration(res.CheckCoverage(2024)))
}

func TestAbsoluteWindows(t *testing.T) {
	rules := RuleSet{
		{Name: "EST", Offset: -5, Window: Window{Start: mustBound(t, "2024-01-01 00:00"), End: mustBound(t, "2025-01-01 00:00")}},
	}
	res, err := NewResolver(rules, 0)
	require.NoError(t, err)
	assert.NoError(t, res.CheckCoverage(2024))
	assert.Error(t, res.CheckCoverage(2025))
}

func TestNewResolverRejectsMixedWindow(t *testing.T) {
	_, err := NewResolver(RuleSet{{Name: "X", Window: Window{Start: mustBound(t, "01-01 00:00"), End: mustBound(t, "2025-01-01 00:00")}}}, 0)
	assert.True(t, apperr.IsConfiguration(err))

	_, err = NewResolver(nil, 0)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestParse(t *testing.T) {
	pst := RuleSet(pacific(t))[1]

	got, err := Parse("01/20/24 06:00 PM", pst)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 21, 2, 0, 0, 0, time.UTC)))

	got, err = Parse("01/05/2024 12:30 AM", pst)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 5, 8, 30, 0, 0, time.UTC)))

	for _, bad := range []string{
		"", "2024-01-20 18:00", "01/20/24 18:00",
		"1/5/2024 12:30 AM", "01/20/24 6:00 PM", "01/20/24 06:00PM", "01/20/24 06:00 pm",
		"13/01/24 06:00 PM", "02/30/24 06:00 PM", "01/20/24 06:61 PM", "01/20/24 00:10 PM"} {
		_, err := Parse(bad, pst)
		require.Error(t, err, bad)
		assert.True(t, apperr.IsValidation(err), bad)
		assert.Equal(t, "Invalid date format.", apperr.UserMessage(err), bad)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	res, err := NewResolver(pacific(t), 8)
	require.NoError(t, err)

	start := time.Date(2024, 1, 20, 18, 0, 0, 0, time.FixedZone("PST", -8*3600))
	text, err := res.Format(start)
	require.NoError(t, err)
	assert.Equal(t, "01/20/24 06:00 PM PST", text)

	// Second call is served from the cache and identical.
	again, err := res.Format(start)
	require.NoError(t, err)
	assert.Equal(t, text, again)

	back, err := res.ParseNamed(text)
	require.NoError(t, err)
	assert.True(t, back.Equal(start))
}

func TestFormatCacheIsBounded(t *testing.T) {
	res, err := NewResolver(pacific(t), 4)
	require.NoError(t, err)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		_, err := res.Format(base.Add(time.Duration(i) * time.Hour))
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, res.cache.Len(), 4)
}

func TestParseLocalPicksRuleInEffect(t *testing.T) {
	res, err := NewResolver(pacific(t), 0)
	require.NoError(t, err)

	got, rule, err := res.ParseLocal("07/04/24 08:00 PM")
	require.NoError(t, err)
	assert.Equal(t, "PDT", rule.Name)
	assert.True(t, got.Equal(time.Date(2024, 7, 5, 3, 0, 0, 0, time.UTC)))

	got, rule, err = res.ParseLocal("12/24/2024 09:00 AM")
	require.NoError(t, err)
	assert.Equal(t, "PST", rule.Name)
	assert.True(t, got.Equal(time.Date(2024, 12, 24, 17, 0, 0, 0, time.UTC)))
}

func TestFullYearWindow(t *testing.T) {
	w := Window{Start: mustBound(t, "01-01 00:00"), End: mustBound(t, "01-01 00:00")}
	assert.True(t, w.Contains(time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)))
}
