package editor

import (
	"context"
	"strconv"
	"strings"

	"gatherbot/internal/apperr"
	appLog "gatherbot/internal/log"
	"gatherbot/internal/model"
	"gatherbot/internal/platform"
	"gatherbot/internal/recurrence"
)

// Modal and input ids.
const (
	pageDetails    = "page:details"
	pageSchedule   = "page:schedule"
	pageRecurrence = "page:recurrence"

	inName        = "name"
	inDescription = "description"
	inLocation    = "location"
	inChannel     = "channel"
	inStart       = "start"
	inDuration    = "duration"
	inCapacity    = "capacity"
	inEvery       = "every"
	inUnit        = "unit"
)

const (
	maxName        = 100
	maxDescription = 1000
	maxDuration    = 72
)

// page is one modal form. apply validates every input and writes them into
// a staged copy; any error discards the whole submission.
type page struct {
	title string
	build func(m *Machine, d *model.EventDraft) []platform.TextInput
	apply func(ctx context.Context, m *Machine, d *model.EventDraft, values map[string]string) error
}

var pages = map[string]page{
	pageDetails:    {title: "Details", build: buildDetails, apply: applyDetails},
	pageSchedule:   {title: "Schedule", build: buildSchedule, apply: applySchedule},
	pageRecurrence: {title: "Recurrence", build: buildRecurrence, apply: applyRecurrence},
}

var buttonPages = map[string]string{
	btnDetails:    pageDetails,
	btnSchedule:   pageSchedule,
	btnRecurrence: pageRecurrence,
}

func (m *Machine) showPage(ctx context.Context, p *panel, in platform.Interaction) {
	id := buttonPages[in.CustomID]
	pg := pages[id]

	m.mu.Lock()
	d := p.draft
	m.mu.Unlock()

	modal := &platform.Modal{ID: id, Title: pg.title, Inputs: pg.build(m, d)}
	if err := m.plat.Respond(ctx, in, platform.Response{Kind: platform.ShowModal, Modal: modal}); err != nil {
		appLog.Error("show modal failed", err, "draft", d.ID)
		return
	}
	m.transition(p, AwaitingModalSubmit)
}

func (m *Machine) submitPage(ctx context.Context, p *panel, in platform.Interaction) {
	pg, ok := pages[in.CustomID]
	if !ok {
		m.reply(ctx, in, "Unknown form.")
		return
	}

	m.mu.Lock()
	d := p.draft
	m.mu.Unlock()

	staged := d.Clone()
	if err := pg.apply(ctx, m, staged, in.Values); err != nil {
		m.stash(p, d)
		m.transition(p, Drafting)
		if !apperr.IsValidation(err) {
			appLog.Error("apply page failed", err, "draft", d.ID)
		}
		m.reply(ctx, in, apperr.UserMessage(err))
		return
	}

	m.mu.Lock()
	p.draft = staged
	m.mu.Unlock()
	m.stash(p, staged)
	m.transition(p, Drafting)

	msg := m.render(staged, Drafting)
	if err := m.plat.Respond(ctx, in, platform.Response{Kind: platform.UpdateMessage, Message: &msg}); err != nil {
		appLog.Error("update panel failed", err, "draft", d.ID)
	}
}

func buildDetails(_ *Machine, d *model.EventDraft) []platform.TextInput {
	inputs := []platform.TextInput{
		{ID: inName, Label: "Name", Value: d.Name, Required: true, MaxLength: maxName},
		{ID: inDescription, Label: "Description", Value: d.Description, Paragraph: true, MaxLength: maxDescription},
	}
	switch v := d.Venue.(type) {
	case model.ExternalVenue:
		inputs = append(inputs, platform.TextInput{ID: inLocation, Label: "Location", Value: v.Location, Required: true, MaxLength: maxName})
	default:
		id, _ := model.VenueChannelID(v)
		inputs = append(inputs, platform.TextInput{ID: inChannel, Label: "Channel (name or id)", Value: id, Required: true, MaxLength: maxName})
	}
	return inputs
}

func applyDetails(ctx context.Context, m *Machine, d *model.EventDraft, values map[string]string) error {
	name := strings.TrimSpace(values[inName])
	if name == "" || len(name) > maxName || strings.ContainsAny(name, "\r\n") {
		return apperr.Validation(inName, "The name must be one line of at most 100 characters.")
	}
	desc := strings.TrimSpace(values[inDescription])
	if len(desc) > maxDescription {
		return apperr.Validation(inDescription, "The description must be at most 1000 characters.")
	}

	var venue model.Venue
	switch d.Venue.(type) {
	case model.ExternalVenue, nil:
		loc := strings.TrimSpace(values[inLocation])
		if loc == "" || strings.ContainsAny(loc, "\r\n") {
			return apperr.Validation(inLocation, "The location is required and must be one line.")
		}
		venue = model.ExternalVenue{Location: loc}
	default:
		ref := strings.TrimPrefix(strings.TrimSpace(values[inChannel]), "#")
		if ref == "" {
			return apperr.Validation(inChannel, "A channel is required.")
		}
		ch, err := m.plat.ResolveChannel(ctx, d.GuildID, ref)
		if err != nil || ch == nil {
			return apperr.Validation(inChannel, "Could not find the channel \""+ref+"\".")
		}
		if ch.Kind != model.KindVoice && ch.Kind != model.KindStage {
			return apperr.Validation(inChannel, "\""+ch.Name+"\" is not a voice or stage channel.")
		}
		venue = model.ChannelVenue(ch.Kind, ch.ID)
	}

	d.Name = name
	d.Description = desc
	d.Venue = venue
	return nil
}

func buildSchedule(m *Machine, d *model.EventDraft) []platform.TextInput {
	start := ""
	if !d.Start.IsZero() {
		if s, err := m.resolver.Format(d.Start); err == nil {
			// Drop the zone name; input is read in the zone in effect.
			start = s[:strings.LastIndexByte(s, ' ')]
		}
	}
	capacity := ""
	if d.Capacity > 0 {
		capacity = strconv.Itoa(d.Capacity)
	}
	return []platform.TextInput{
		{ID: inStart, Label: "Start (MM/DD/YY HH:MM AM/PM)", Value: start, Placeholder: "01/20/24 06:00 PM", Required: true, MaxLength: 20},
		{ID: inDuration, Label: "Duration in hours", Value: strconv.Itoa(d.DurationHours), Required: true, MaxLength: 2},
		{ID: inCapacity, Label: "Attendance cap (empty for none)", Value: capacity, MaxLength: 4},
	}
}

func applySchedule(_ context.Context, m *Machine, d *model.EventDraft, values map[string]string) error {
	start, _, err := m.resolver.ParseLocal(values[inStart])
	if err != nil {
		if apperr.IsValidation(err) {
			return apperr.Validation(inStart, "Invalid date format.")
		}
		return err
	}
	hours, err := strconv.Atoi(strings.TrimSpace(values[inDuration]))
	if err != nil || hours < 1 || hours > maxDuration {
		return apperr.Validation(inDuration, "The duration must be a whole number of hours from 1 to 72.")
	}
	capacity := 0
	if s := strings.TrimSpace(values[inCapacity]); s != "" {
		capacity, err = strconv.Atoi(s)
		if err != nil || capacity < 1 {
			return apperr.Validation(inCapacity, "The attendance cap must be a positive number.")
		}
		if capacity < d.Attendees.Len() {
			return apperr.Validation(inCapacity, "More people have already joined than that cap allows.")
		}
	}

	d.Start = start
	d.DurationHours = hours
	d.Capacity = capacity
	if d.Recurrence != nil && d.Recurrence.TimesHeld == 0 {
		d.Recurrence.FirstStart = start
	}
	return nil
}

func buildRecurrence(_ *Machine, d *model.EventDraft) []platform.TextInput {
	every, unit := "", ""
	if d.Recurrence != nil {
		every = strconv.Itoa(d.Recurrence.Interval.Every)
		unit = d.Recurrence.Interval.Unit.String() + "s"
	}
	return []platform.TextInput{
		{ID: inEvery, Label: "Repeat every (empty for a one-off)", Value: every, MaxLength: 3},
		{ID: inUnit, Label: "Unit (hours, days, weeks, months)", Value: unit, Placeholder: "weeks", MaxLength: 6},
	}
}

func applyRecurrence(_ context.Context, _ *Machine, d *model.EventDraft, values map[string]string) error {
	everyText := strings.TrimSpace(values[inEvery])
	if everyText == "" {
		d.Recurrence = nil
		return nil
	}
	every, err := strconv.Atoi(everyText)
	if err != nil || every < 1 {
		return apperr.Validation(inEvery, "Repeat every must be a positive number.")
	}
	unit, err := model.ParseUnit(values[inUnit])
	if err != nil {
		return apperr.Validation(inUnit, "The unit must be hours, days, weeks or months.")
	}
	if d.Start.IsZero() {
		return apperr.Validation(inEvery, "Set a start time before making the event repeat.")
	}

	if d.Recurrence == nil {
		d.Recurrence = model.NewRecurrence(d.Start, unit, every)
	} else {
		d.Recurrence.SetInterval(unit, every)
	}
	return recurrence.Validate(d.Recurrence)
}
