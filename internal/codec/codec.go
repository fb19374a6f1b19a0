// Package codec maps an EventDraft to chat message embeds and back. The
// rendered message is the only durable copy of a committed event, so Decode
// is strict: required parts must match their pattern exactly or the whole
// decode fails with a ParseError naming the part.
package codec

import (
	"strconv"
	"strings"

	"gatherbot/internal/apperr"
	"gatherbot/internal/model"
	"gatherbot/internal/platform"
	"gatherbot/internal/recurrence"
	"gatherbot/internal/temporal"
)

// Codec is the text contract between drafts and chat messages.
type Codec interface {
	Encode(d *model.EventDraft) (platform.Embed, error)
	Decode(e platform.Embed) (*model.EventDraft, error)
	EncodeAttendance(attendees model.AttendeeSet, capacity int) platform.Embed
	DecodeAttendance(e platform.Embed) (model.AttendeeSet, int, error)
}

// ChannelKindFunc tells voice channels from stage channels when decoding a
// Channel field. It must not block.
type ChannelKindFunc func(channelID string) model.EntityKind

// TextCodec implements Codec with grammar v1.
type TextCodec struct {
	resolver    *temporal.Resolver
	channelKind ChannelKindFunc
}

type Option func(*TextCodec)

// WithChannelKinds installs the voice/stage lookup; without it every
// channel decodes as a voice venue.
func WithChannelKinds(fn ChannelKindFunc) Option {
	return func(c *TextCodec) { c.channelKind = fn }
}

func New(resolver *temporal.Resolver, opts ...Option) *TextCodec {
	c := &TextCodec{resolver: resolver}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *TextCodec) Encode(d *model.EventDraft) (platform.Embed, error) {
	if strings.TrimSpace(d.Name) == "" || strings.ContainsRune(d.Name, '\n') {
		return platform.Embed{}, apperr.Validation("Name", "Event name is required and must be one line.")
	}
	if d.Start.IsZero() {
		return platform.Embed{}, apperr.Validation("Start", "Start time is required.")
	}
	if d.DurationHours <= 0 {
		return platform.Embed{}, apperr.Validation("Duration", "Duration must be at least one hour.")
	}
	start, err := c.resolver.Format(d.Start)
	if err != nil {
		return platform.Embed{}, err
	}

	e := platform.Embed{
		Title:       start + " - " + d.Name + HostedBy + d.AuthorName,
		Author:      d.AuthorName + " (" + d.AuthorID + ")",
		Description: d.Description,
		ImageURL:    d.ImageURL,
	}

	switch v := d.Venue.(type) {
	case model.ExternalVenue:
		e.Fields = append(e.Fields, platform.Field{Name: FieldLocation, Value: v.Location, Inline: true})
	case model.VoiceVenue, model.StageVenue:
		id, _ := model.VenueChannelID(v)
		e.Fields = append(e.Fields, platform.Field{Name: FieldChannel, Value: ChannelURL(d.GuildID, id), Inline: true})
	}

	e.Fields = append(e.Fields, platform.Field{
		Name:   FieldDuration,
		Value:  strconv.Itoa(d.DurationHours) + " " + plural(d.DurationHours, "hour"),
		Inline: true,
	})

	if d.Recurrence != nil {
		freq, err := c.describe(d.Recurrence)
		if err != nil {
			return platform.Embed{}, err
		}
		e.Fields = append(e.Fields, platform.Field{Name: FieldFrequency, Value: freq})
	}
	if d.ScheduledEventID != "" {
		e.Fields = append(e.Fields, platform.Field{Name: FieldEventLink, Value: EventURL(d.GuildID, d.ScheduledEventID)})
	}
	e.Fields = append(e.Fields, platform.Field{Name: FieldEventID, Value: d.ID})
	return e, nil
}

func (c *TextCodec) describe(rec *model.Recurrence) (string, error) {
	if err := recurrence.Validate(rec); err != nil {
		return "", err
	}
	first, err := c.resolver.Format(rec.FirstStart)
	if err != nil {
		return "", err
	}
	n := rec.Interval.Every
	return "Occurs every " + strconv.Itoa(n) + " " + plural(n, rec.Interval.Unit.String()) +
		"\nFirst held " + first + ", and held " + strconv.Itoa(rec.TimesHeld) + " " + plural(rec.TimesHeld, "time") + " since then!", nil
}

func (c *TextCodec) Decode(e platform.Embed) (*model.EventDraft, error) {
	d := &model.EventDraft{Attendees: model.NewAttendeeSet()}

	m := titleRe.FindStringSubmatch(e.Title)
	if m == nil {
		return nil, apperr.Parse(FieldTitle, "%q does not match \"<time> - <name> hosted by <author>\"", e.Title)
	}
	start, err := c.resolver.ParseNamed(m[1])
	if err != nil {
		return nil, apperr.Parse(FieldTitle, "start time %q: %v", m[1], err)
	}
	d.Start = start

	am := authorRe.FindStringSubmatch(e.Author)
	if am == nil {
		return nil, apperr.Parse(FieldAuthor, "%q does not match \"<username> (<id>)\"", e.Author)
	}
	d.AuthorName = am[1]
	d.AuthorID = am[2]

	// The author name may itself contain the separator, so the name is
	// whatever precedes the exact suffix for this author.
	suffix := HostedBy + d.AuthorName
	if !strings.HasSuffix(m[2], suffix) || len(m[2]) == len(suffix) {
		return nil, apperr.Parse(FieldTitle, "%q does not end with %q after an event name", e.Title, suffix)
	}
	d.Name = strings.TrimSuffix(m[2], suffix)
	d.Description = e.Description
	d.ImageURL = e.ImageURL

	if loc, ok := e.Field(FieldLocation); ok {
		d.Venue = model.ExternalVenue{Location: loc}
	} else if link, ok := e.Field(FieldChannel); ok {
		guildID, channelID, err := splitLink(link, ChannelURLPrefix, FieldChannel)
		if err != nil {
			return nil, err
		}
		d.GuildID = guildID
		kind := model.KindVoice
		if c.channelKind != nil && c.channelKind(channelID) == model.KindStage {
			kind = model.KindStage
		}
		d.Venue = model.ChannelVenue(kind, channelID)
	}

	dur, ok := e.Field(FieldDuration)
	if !ok {
		return nil, apperr.Parse(FieldDuration, "field is missing")
	}
	dm := durationRe.FindStringSubmatch(dur)
	if dm == nil {
		return nil, apperr.Parse(FieldDuration, "%q does not match \"<n> hour[s]\"", dur)
	}
	d.DurationHours, _ = strconv.Atoi(dm[1])

	if freq, ok := e.Field(FieldFrequency); ok {
		rec, err := c.parseFrequency(freq)
		if err != nil {
			return nil, err
		}
		d.Recurrence = rec
	}

	if link, ok := e.Field(FieldEventLink); ok {
		guildID, eventID, err := splitLink(link, EventURLPrefix, FieldEventLink)
		if err != nil {
			return nil, err
		}
		d.GuildID = guildID
		d.ScheduledEventID = eventID
	}

	id, ok := e.Field(FieldEventID)
	if !ok || strings.TrimSpace(id) == "" {
		return nil, apperr.Parse(FieldEventID, "field is missing")
	}
	d.ID = id
	return d, nil
}

func (c *TextCodec) parseFrequency(s string) (*model.Recurrence, error) {
	m := frequencyRe.FindStringSubmatch(s)
	if m == nil {
		return nil, apperr.Parse(FieldFrequency, "%q does not match the recurrence sentence", s)
	}
	every, _ := strconv.Atoi(m[1])
	unit, err := model.ParseUnit(m[2])
	if err != nil {
		return nil, apperr.Parse(FieldFrequency, "%v", err)
	}
	first, err := c.resolver.ParseNamed(m[3])
	if err != nil {
		return nil, apperr.Parse(FieldFrequency, "first held %q: %v", m[3], err)
	}
	held, _ := strconv.Atoi(m[4])
	rec := model.NewRecurrence(first, unit, every)
	rec.TimesHeld = held
	return rec, nil
}

// splitLink reads "<prefix><guild>/<id>".
func splitLink(link, prefix, field string) (guildID, id string, err error) {
	m := trailingIDRe.FindStringSubmatch(link)
	if m == nil || !strings.HasPrefix(link, prefix) {
		return "", "", apperr.Parse(field, "%q is not a link ending in an id", link)
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(link, prefix), "/")
	if i := strings.IndexByte(rest, '/'); i > 0 {
		guildID = rest[:i]
	}
	return guildID, m[1], nil
}

// EncodeAttendance renders the attendance block.
func (c *TextCodec) EncodeAttendance(attendees model.AttendeeSet, capacity int) platform.Embed {
	title := AttendanceTitle + " (" + strconv.Itoa(attendees.Len())
	if capacity > 0 {
		title += "/" + strconv.Itoa(capacity)
	}
	title += ")"

	body := NoAttendees
	if attendees.Len() > 0 {
		ids := attendees.Sorted()
		lines := make([]string, len(ids))
		for i, id := range ids {
			lines[i] = "<@" + id + ">"
		}
		body = strings.Join(lines, "\n")
	}
	return platform.Embed{Title: title, Description: body}
}

// DecodeAttendance returns the attendee set and the cap (0 when unlimited).
func (c *TextCodec) DecodeAttendance(e platform.Embed) (model.AttendeeSet, int, error) {
	m := attendanceRe.FindStringSubmatch(e.Title)
	if m == nil {
		return nil, 0, apperr.Parse(FieldAttendance, "title %q does not match \"Attendees (<n>[/<cap>])\"", e.Title)
	}
	count, _ := strconv.Atoi(m[1])
	capacity := 0
	if m[2] != "" {
		capacity, _ = strconv.Atoi(m[2])
	}

	set := model.NewAttendeeSet()
	if e.Description != NoAttendees {
		for _, line := range strings.Split(e.Description, "\n") {
			mm := mentionRe.FindStringSubmatch(strings.TrimSpace(line))
			if mm == nil {
				return nil, 0, apperr.Parse(FieldAttendance, "line %q is not a mention", line)
			}
			set.Add(mm[1])
		}
	}
	if set.Len() != count {
		return nil, 0, apperr.Parse(FieldAttendance, "title counts %d attendees, body lists %d", count, set.Len())
	}
	return set, capacity, nil
}
