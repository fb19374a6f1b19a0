package discord

import (
	"strings"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/utils/json/option"

	"gatherbot/internal/apperr"
	"gatherbot/internal/model"
	"gatherbot/internal/platform"
)

func parseID(field, s string) (discord.Snowflake, error) {
	sf, err := discord.ParseSnowflake(strings.TrimSpace(s))
	if err != nil || !sf.IsValid() {
		return 0, apperr.Validation(field, "not a valid id: "+s)
	}
	return sf, nil
}

func channelID(s string) (discord.ChannelID, error) {
	sf, err := parseID("channel", s)
	return discord.ChannelID(sf), err
}

func messageID(s string) (discord.MessageID, error) {
	sf, err := parseID("message", s)
	return discord.MessageID(sf), err
}

func guildID(s string) (discord.GuildID, error) {
	sf, err := parseID("guild", s)
	return discord.GuildID(sf), err
}

func eventID(s string) (discord.EventID, error) {
	sf, err := parseID("event", s)
	return discord.EventID(sf), err
}

func messageRef(ref platform.MessageRef) (discord.ChannelID, discord.MessageID, error) {
	ch, err := channelID(ref.ChannelID)
	if err != nil {
		return 0, 0, err
	}
	msg, err := messageID(ref.MessageID)
	if err != nil {
		return 0, 0, err
	}
	return ch, msg, nil
}

func idString(sf discord.Snowflake) string {
	if !sf.IsValid() {
		return ""
	}
	return sf.String()
}

func nullable(s option.NullableString) string {
	if s == nil {
		return ""
	}
	return s.Val
}

func toEmbed(e platform.Embed) discord.Embed {
	out := discord.Embed{
		Title:       e.Title,
		Description: e.Description,
	}
	if e.Author != "" {
		out.Author = &discord.EmbedAuthor{Name: e.Author}
	}
	if e.ImageURL != "" {
		out.Image = &discord.EmbedImage{URL: e.ImageURL}
	}
	if e.Footer != "" {
		out.Footer = &discord.EmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, discord.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

func fromEmbed(e discord.Embed) platform.Embed {
	out := platform.Embed{
		Title:       e.Title,
		Description: e.Description,
	}
	if e.Author != nil {
		out.Author = e.Author.Name
	}
	if e.Image != nil {
		out.ImageURL = e.Image.URL
	}
	if e.Footer != nil {
		out.Footer = e.Footer.Text
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, platform.Field{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

func toEmbeds(in []platform.Embed) []discord.Embed {
	out := make([]discord.Embed, 0, len(in))
	for _, e := range in {
		out = append(out, toEmbed(e))
	}
	return out
}

func buttonStyle(b platform.Button) discord.ButtonComponentStyle {
	switch b.Style {
	case platform.ButtonSecondary:
		return discord.SecondaryButtonStyle()
	case platform.ButtonSuccess:
		return discord.SuccessButtonStyle()
	case platform.ButtonDanger:
		return discord.DangerButtonStyle()
	case platform.ButtonLink:
		return discord.LinkButtonStyle(discord.URL(b.URL))
	default:
		return discord.PrimaryButtonStyle()
	}
}

// toComponents lays rows of buttons out as action rows. An empty result still
// clears existing components when sent as an edit.
func toComponents(rows [][]platform.Button) discord.ContainerComponents {
	out := make(discord.ContainerComponents, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		ar := make(discord.ActionRowComponent, 0, len(row))
		for _, b := range row {
			btn := &discord.ButtonComponent{
				Style:    buttonStyle(b),
				Label:    b.Label,
				Disabled: b.Disabled,
			}
			if b.Style != platform.ButtonLink {
				btn.CustomID = discord.ComponentID(b.ID)
			}
			ar = append(ar, btn)
		}
		out = append(out, &ar)
	}
	return out
}

// toModalComponents puts every input on its own row.
func toModalComponents(inputs []platform.TextInput) discord.ContainerComponents {
	out := make(discord.ContainerComponents, 0, len(inputs))
	for _, in := range inputs {
		style := discord.TextInputShortStyle
		if in.Paragraph {
			style = discord.TextInputParagraphStyle
		}
		ti := &discord.TextInputComponent{
			CustomID: discord.ComponentID(in.ID),
			Style:    style,
			Label:    in.Label,
			Required: in.Required,
		}
		if in.Value != "" {
			ti.Value = option.NewNullableString(in.Value)
		}
		if in.Placeholder != "" {
			ti.Placeholder = option.NewNullableString(in.Placeholder)
		}
		ti.LengthLimits.Max = in.MaxLength
		out = append(out, &discord.ActionRowComponent{ti})
	}
	return out
}

// modalValues flattens submitted modal rows into input id -> value.
func modalValues(rows discord.ContainerComponents) map[string]string {
	values := make(map[string]string)
	for _, row := range rows {
		ar, ok := row.(*discord.ActionRowComponent)
		if !ok {
			continue
		}
		for _, c := range *ar {
			if ti, ok := c.(*discord.TextInputComponent); ok {
				values[string(ti.CustomID)] = nullable(ti.Value)
			}
		}
	}
	return values
}

func fromMessage(m discord.Message) platform.Message {
	out := platform.Message{
		ID:        idString(discord.Snowflake(m.ID)),
		ChannelID: idString(discord.Snowflake(m.ChannelID)),
		AuthorID:  idString(discord.Snowflake(m.Author.ID)),
		Content:   m.Content,
		Pinned:    m.Pinned,
	}
	for _, e := range m.Embeds {
		out.Embeds = append(out.Embeds, fromEmbed(e))
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, a.URL)
	}
	return out
}

// fromInteraction converts a gateway interaction. admin reports whether a
// member's roles pass the administrative check.
func fromInteraction(e *discord.InteractionEvent, admin func([]discord.RoleID) bool, at time.Time) (platform.Interaction, bool) {
	in := platform.Interaction{
		ID:         idString(discord.Snowflake(e.ID)),
		Token:      e.Token,
		GuildID:    idString(discord.Snowflake(e.GuildID)),
		ChannelID:  idString(discord.Snowflake(e.ChannelID)),
		ReceivedAt: at,
	}
	if u := e.Sender(); u != nil {
		in.UserID = idString(discord.Snowflake(u.ID))
		in.Username = u.Username
	}
	if e.Member != nil && admin != nil {
		in.Privileged = admin(e.Member.RoleIDs)
	}
	if e.Message != nil {
		in.MessageID = idString(discord.Snowflake(e.Message.ID))
	}

	switch data := e.Data.(type) {
	case *discord.CommandInteraction:
		in.Kind = platform.CommandInteraction
		in.CommandName = data.Name
		in.Options = make(map[string]string, len(data.Options))
		for _, o := range data.Options {
			in.Options[o.Name] = o.String()
		}
	case *discord.ButtonInteraction:
		in.Kind = platform.ButtonInteraction
		in.CustomID = string(data.CustomID)
	case *discord.ModalInteraction:
		in.Kind = platform.ModalSubmitInteraction
		in.CustomID = string(data.CustomID)
		in.Values = modalValues(data.Components)
	default:
		return platform.Interaction{}, false
	}
	return in, true
}

func entityType(k model.EntityKind) discord.EntityType {
	switch k {
	case model.KindVoice:
		return discord.VoiceEntity
	case model.KindStage:
		return discord.StageInstanceEntity
	default:
		return discord.ExternalEntity
	}
}

func entityKind(t discord.EntityType) model.EntityKind {
	switch t {
	case discord.VoiceEntity:
		return model.KindVoice
	case discord.StageInstanceEntity:
		return model.KindStage
	default:
		return model.KindExternal
	}
}

func eventStatus(s discord.EventStatus) platform.EventStatus {
	switch s {
	case discord.Active:
		return platform.EventActive
	case discord.Completed:
		return platform.EventCompleted
	case discord.Cancelled:
		return platform.EventCanceled
	default:
		return platform.EventScheduled
	}
}

func fromScheduledEvent(ev *discord.GuildScheduledEvent) platform.ScheduledEvent {
	out := platform.ScheduledEvent{
		ID:          idString(discord.Snowflake(ev.ID)),
		Name:        ev.Name,
		Description: nullable(ev.Description),
		Kind:        entityKind(ev.EntityType),
		ChannelID:   idString(discord.Snowflake(ev.ChannelID)),
		Start:       ev.StartTime,
		Status:      eventStatus(ev.Status),
	}
	if ev.EndTime != nil {
		out.End = *ev.EndTime
	}
	if ev.EntityMetadata != nil {
		out.Location = ev.EntityMetadata.Location
	}
	return out
}

func channelKind(t discord.ChannelType) model.EntityKind {
	switch t {
	case discord.GuildVoice:
		return model.KindVoice
	case discord.GuildStageVoice:
		return model.KindStage
	default:
		return model.KindExternal
	}
}

func fromThread(ch discord.Channel) platform.Thread {
	th := platform.Thread{
		ID:       idString(discord.Snowflake(ch.ID)),
		ParentID: idString(discord.Snowflake(ch.ParentID)),
		Name:     ch.Name,
	}
	if ch.ThreadMetadata != nil {
		th.Archived = ch.ThreadMetadata.Archived
		th.Locked = ch.ThreadMetadata.Locked
	}
	return th
}
