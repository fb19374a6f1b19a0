package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatherbot/internal/apperr"
	"gatherbot/internal/model"
	"gatherbot/internal/platform"
	"gatherbot/internal/temporal"
)

func pacific(t *testing.T) *temporal.Resolver {
	t.Helper()
	pdt, err := temporal.ParseWindow("03-10 10:00", "11-03 09:00")
	require.NoError(t, err)
	pst, err := temporal.ParseWindow("11-03 09:00", "03-10 10:00")
	require.NoError(t, err)
	r, err := temporal.NewResolver(temporal.RuleSet{
		{Name: "PDT", Offset: -7, Window: pdt},
		{Name: "PST", Offset: -8, Window: pst},
	}, 16)
	require.NoError(t, err)
	return r
}

func boardGameNight() *model.EventDraft {
	pst := time.FixedZone("PST", -8*3600)
	d := model.NewDraft("100", "42", "Alice")
	d.Name = "Board Game Night"
	d.Description = "Bring snacks.\nNo spoilers."
	d.Venue = model.ExternalVenue{Location: "Community Hall"}
	d.Start = time.Date(2024, 1, 20, 18, 0, 0, 0, pst)
	d.DurationHours = 3
	return d
}

func TestEncodeTitle(t *testing.T) {
	c := New(pacific(t))
	e, err := c.Encode(boardGameNight())
	require.NoError(t, err)
	assert.Equal(t, "01/20/24 06:00 PM PST - Board Game Night hosted by Alice", e.Title)
	assert.Equal(t, "Alice (42)", e.Author)

	dur, ok := e.Field(FieldDuration)
	require.True(t, ok)
	assert.Equal(t, "3 hours", dur)
}

func TestRoundTrip(t *testing.T) {
	c := New(pacific(t))
	d := boardGameNight()

	e, err := c.Encode(d)
	require.NoError(t, err)
	got, err := c.Decode(e)
	require.NoError(t, err)

	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, d.Name, got.Name)
	assert.Equal(t, d.Description, got.Description)
	assert.Equal(t, d.AuthorID, got.AuthorID)
	assert.Equal(t, d.AuthorName, got.AuthorName)
	assert.Equal(t, d.Venue, got.Venue)
	assert.Equal(t, d.DurationHours, got.DurationHours)
	assert.True(t, d.Start.Equal(got.Start))
	assert.Nil(t, got.Recurrence)
}

func TestRoundTripRecurringChannelEvent(t *testing.T) {
	c := New(pacific(t), WithChannelKinds(func(id string) model.EntityKind {
		if id == "555" {
			return model.KindStage
		}
		return model.KindVoice
	}))
	d := boardGameNight()
	d.Venue = model.StageVenue{ChannelID: "555"}
	d.ScheduledEventID = "777"
	d.DurationHours = 1
	d.Recurrence = model.NewRecurrence(d.Start.AddDate(0, 0, -14), model.UnitWeeks, 1)
	d.Recurrence.TimesHeld = 2

	e, err := c.Encode(d)
	require.NoError(t, err)

	freq, _ := e.Field(FieldFrequency)
	assert.Equal(t, "Occurs every 1 week\nFirst held 01/06/24 06:00 PM PST, and held 2 times since then!", freq)
	link, _ := e.Field(FieldEventLink)
	assert.Equal(t, "https://discord.com/events/100/777", link)

	got, err := c.Decode(e)
	require.NoError(t, err)
	assert.Equal(t, model.StageVenue{ChannelID: "555"}, got.Venue)
	assert.Equal(t, "100", got.GuildID)
	assert.Equal(t, "777", got.ScheduledEventID)
	assert.Equal(t, 1, got.DurationHours)
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, model.Interval{Unit: model.UnitWeeks, Every: 1}, got.Recurrence.Interval)
	assert.Equal(t, 2, got.Recurrence.TimesHeld)
	assert.True(t, d.Recurrence.FirstStart.Equal(got.Recurrence.FirstStart))
}

func TestDecodeDefaultsChannelToVoice(t *testing.T) {
	c := New(pacific(t))
	d := boardGameNight()
	d.Venue = model.VoiceVenue{ChannelID: "9"}
	e, err := c.Encode(d)
	require.NoError(t, err)

	got, err := c.Decode(e)
	require.NoError(t, err)
	assert.Equal(t, model.VoiceVenue{ChannelID: "9"}, got.Venue)
}

func TestRoundTripAuthorNameWithSeparator(t *testing.T) {
	c := New(pacific(t))
	d := boardGameNight()
	d.AuthorName = "Bob hosted by Carol"

	e, err := c.Encode(d)
	require.NoError(t, err)
	got, err := c.Decode(e)
	require.NoError(t, err)
	assert.Equal(t, "Board Game Night", got.Name)
	assert.Equal(t, "Bob hosted by Carol", got.AuthorName)

	d.Name = "Chess hosted by Dana"
	e, err = c.Encode(d)
	require.NoError(t, err)
	got, err = c.Decode(e)
	require.NoError(t, err)
	assert.Equal(t, "Chess hosted by Dana", got.Name)
}

func TestDecodeTitleAuthorMismatch(t *testing.T) {
	c := New(pacific(t))
	e, err := c.Encode(boardGameNight())
	require.NoError(t, err)
	e.Author = "Mallory (42)"

	_, err = c.Decode(e)
	var pe *apperr.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FieldTitle, pe.Field)
}

func TestDecodeMalformedTitle(t *testing.T) {
	c := New(pacific(t))
	e, err := c.Encode(boardGameNight())
	require.NoError(t, err)
	e.Title = "- Board Game Night hosted by Alice"

	_, err = c.Decode(e)
	require.Error(t, err)
	var pe *apperr.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FieldTitle, pe.Field)
}

func TestDecodeMissingEventID(t *testing.T) {
	c := New(pacific(t))
	e, err := c.Encode(boardGameNight())
	require.NoError(t, err)
	fields := e.Fields[:0]
	for _, f := range e.Fields {
		if f.Name != FieldEventID {
			fields = append(fields, f)
		}
	}
	e.Fields = fields

	_, err = c.Decode(e)
	var pe *apperr.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FieldEventID, pe.Field)
}

func TestEncodeRejectsMultilineName(t *testing.T) {
	c := New(pacific(t))
	d := boardGameNight()
	d.Name = "two\nlines"
	_, err := c.Encode(d)
	assert.True(t, apperr.IsValidation(err))
}

func TestAttendance(t *testing.T) {
	c := New(pacific(t))

	empty := c.EncodeAttendance(model.NewAttendeeSet(), 0)
	assert.Equal(t, "Attendees (0)", empty.Title)
	assert.Equal(t, NoAttendees, empty.Description)
	set, capacity, err := c.DecodeAttendance(empty)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
	assert.Equal(t, 0, capacity)

	set = model.NewAttendeeSet("42", "7")
	e := c.EncodeAttendance(set, 10)
	assert.Equal(t, "Attendees (2/10)", e.Title)
	assert.Equal(t, "<@7>\n<@42>", e.Description)
	got, capacity, err := c.DecodeAttendance(e)
	require.NoError(t, err)
	assert.Equal(t, 10, capacity)
	assert.True(t, got.Has("42"))
	assert.True(t, got.Has("7"))

	e.Title = "Attendees (3/10)"
	_, _, err = c.DecodeAttendance(e)
	assert.True(t, apperr.IsParse(err))
}

func TestFindState(t *testing.T) {
	c := New(pacific(t))
	d := boardGameNight()
	out, err := EncodeMessage(c, d)
	require.NoError(t, err)

	pinned := []platform.Message{
		{ID: "1", ChannelID: "thread", AuthorID: "someone", Embeds: []platform.Embed{{Title: "rules"}}},
		{ID: "2", ChannelID: "thread", AuthorID: "bot", Embeds: out.Embeds},
	}
	got, err := FindState(c, pinned, "bot")
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, "2", got.MessageID)
	assert.Equal(t, "thread", got.ThreadID)

	_, err = FindState(c, pinned[:1], "bot")
	assert.True(t, apperr.IsParse(err))
}
