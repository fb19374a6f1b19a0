package editor

import (
	"strconv"
	"time"

	"gatherbot/internal/codec"
	"gatherbot/internal/model"
	"gatherbot/internal/platform"
	"gatherbot/internal/temporal"
)

// Panel button ids.
const (
	btnDetails    = "edit:details"
	btnSchedule   = "edit:schedule"
	btnRecurrence = "edit:recurrence"
	btnImage      = "edit:image"
	btnSave       = "edit:save"
	btnFinish     = "edit:finish"
	btnCancel     = "edit:cancel"
)

// State message button ids.
const (
	statePrefix = "state:"
	BtnJoin     = statePrefix + "join"
	BtnLeave    = statePrefix + "leave"
	BtnEdit     = statePrefix + "edit"
)

const notSet = "Not set"

func displayName(d *model.EventDraft) string {
	if d.Name == "" {
		return "Untitled event"
	}
	return d.Name
}

// render builds the panel message for d in state s.
func (m *Machine) render(d *model.EventDraft, s State) platform.OutgoingMessage {
	msg := platform.OutgoingMessage{Embeds: []platform.Embed{m.preview(d)}}
	switch s {
	case Drafting, AwaitingModalSubmit:
		msg.Content = "Editing **" + displayName(d) + "**"
		msg.Rows = panelRows(d, false)
	case TimedOut:
		msg.Content = "This editor timed out. Your draft was kept, run /event to continue."
		msg.Rows = panelRows(d, true)
	case Saved:
		msg.Content = "Draft saved. Run /event to continue."
	case Finished:
		msg.Content = "**" + displayName(d) + "** is published."
		if d.ThreadID != "" {
			msg.Rows = [][]platform.Button{{{
				Label: "Open thread",
				Style: platform.ButtonLink,
				URL:   codec.ChannelURL(d.GuildID, d.ThreadID),
			}}}
		}
	case Cancelled:
		msg.Content = "**" + displayName(d) + "** was cancelled."
	}
	return msg
}

func panelRows(d *model.EventDraft, disabled bool) [][]platform.Button {
	finishLabel := "Publish"
	if d.Committed() {
		finishLabel = "Update"
	}
	return [][]platform.Button{
		{
			{ID: btnDetails, Label: "Details", Style: platform.ButtonSecondary, Disabled: disabled},
			{ID: btnSchedule, Label: "Schedule", Style: platform.ButtonSecondary, Disabled: disabled},
			{ID: btnRecurrence, Label: "Recurrence", Style: platform.ButtonSecondary, Disabled: disabled},
			{ID: btnImage, Label: "Image", Style: platform.ButtonSecondary, Disabled: disabled},
		},
		{
			{ID: btnSave, Label: "Save", Style: platform.ButtonPrimary, Disabled: disabled},
			{ID: btnFinish, Label: finishLabel, Style: platform.ButtonSuccess, Disabled: disabled},
			{ID: btnCancel, Label: "Cancel event", Style: platform.ButtonDanger, Disabled: disabled},
		},
	}
}

// preview renders through the codec when the draft is complete enough and
// falls back to a field list otherwise.
func (m *Machine) preview(d *model.EventDraft) platform.Embed {
	if e, err := m.codec.Encode(d); err == nil {
		return e
	}

	e := platform.Embed{
		Title:       displayName(d),
		Author:      d.AuthorName + " (" + d.AuthorID + ")",
		Description: d.Description,
		ImageURL:    d.ImageURL,
	}
	e.Fields = append(e.Fields, platform.Field{Name: "Start", Value: formatStart(m.resolver, d), Inline: true})

	switch v := d.Venue.(type) {
	case model.ExternalVenue:
		e.Fields = append(e.Fields, platform.Field{Name: codec.FieldLocation, Value: orNotSet(v.Location), Inline: true})
	case model.VoiceVenue, model.StageVenue:
		id, _ := model.VenueChannelID(v)
		val := notSet
		if id != "" {
			val = codec.ChannelURL(d.GuildID, id)
		}
		e.Fields = append(e.Fields, platform.Field{Name: codec.FieldChannel, Value: val, Inline: true})
	}
	e.Fields = append(e.Fields, platform.Field{Name: codec.FieldDuration, Value: strconv.Itoa(d.DurationHours) + " hour(s)", Inline: true})
	if d.Capacity > 0 {
		e.Fields = append(e.Fields, platform.Field{Name: "Capacity", Value: strconv.Itoa(d.Capacity), Inline: true})
	}
	if d.Recurrence != nil {
		e.Fields = append(e.Fields, platform.Field{
			Name:  codec.FieldFrequency,
			Value: "Every " + strconv.Itoa(d.Recurrence.Interval.Every) + " " + d.Recurrence.Interval.Unit.String() + "(s)",
		})
	}
	return e
}

func orNotSet(s string) string {
	if s == "" {
		return notSet
	}
	return s
}

// StateButtons are the components of a committed state message.
func StateButtons() [][]platform.Button {
	return [][]platform.Button{{
		{ID: BtnJoin, Label: "Join", Style: platform.ButtonSuccess},
		{ID: BtnLeave, Label: "Leave", Style: platform.ButtonSecondary},
		{ID: BtnEdit, Label: "Edit", Style: platform.ButtonSecondary},
	}}
}

// StateMessage renders the full state message of a committed draft.
func StateMessage(c codec.Codec, d *model.EventDraft) (platform.OutgoingMessage, error) {
	msg, err := codec.EncodeMessage(c, d)
	if err != nil {
		return platform.OutgoingMessage{}, err
	}
	msg.Rows = StateButtons()
	return msg, nil
}

// formatStart is the rendered start of d or notSet.
func formatStart(r *temporal.Resolver, d *model.EventDraft) string {
	if d.Start.IsZero() {
		return notSet
	}
	s, err := r.Format(d.Start)
	if err != nil {
		return notSet
	}
	return s
}

func shortDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return strconv.Itoa(h) + " hours"
	}
	return strconv.Itoa(int(d/time.Minute)) + " minutes"
}
