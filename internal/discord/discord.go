// Package discord implements platform.Platform on top of arikawa and routes
// gateway events to the per-guild editors.
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/state"
	"github.com/diamondburned/arikawa/v3/utils/json/option"

	"gatherbot/internal/apperr"
	"gatherbot/internal/model"
	"gatherbot/internal/platform"
)

// threadArchive is the auto-archive duration for event threads. Stale
// threads are closed explicitly by maintenance.
const threadArchive = discord.SevenDaysArchive

// Client is a platform.Platform backed by a gateway state.
type Client struct {
	s     *state.State
	appID discord.AppID
}

// NewClient wraps s. appID is needed for follow-up messages.
func NewClient(s *state.State, appID discord.AppID) *Client {
	return &Client{s: s, appID: appID}
}

func (c *Client) with(ctx context.Context) *state.State {
	return c.s.WithContext(ctx)
}

func (c *Client) SendMessage(ctx context.Context, chID string, msg platform.OutgoingMessage) (*platform.Message, error) {
	ch, err := channelID(chID)
	if err != nil {
		return nil, err
	}
	sent, err := c.with(ctx).SendMessageComplex(ch, api.SendMessageData{
		Content:    msg.Content,
		Embeds:     toEmbeds(msg.Embeds),
		Components: toComponents(msg.Rows),
		// Reminders mention attendees; nothing else may ping.
		AllowedMentions: &api.AllowedMentions{Parse: []api.AllowedMentionType{api.AllowUserMention}},
	})
	if err != nil {
		return nil, apperr.External("send message", err)
	}
	out := fromMessage(*sent)
	return &out, nil
}

func (c *Client) EditMessage(ctx context.Context, ref platform.MessageRef, msg platform.OutgoingMessage) (*platform.Message, error) {
	ch, id, err := messageRef(ref)
	if err != nil {
		return nil, err
	}
	embeds := toEmbeds(msg.Embeds)
	components := toComponents(msg.Rows)
	edited, err := c.with(ctx).EditMessageComplex(ch, id, api.EditMessageData{
		Content:    option.NewNullableString(msg.Content),
		Embeds:     &embeds,
		Components: &components,
	})
	if err != nil {
		return nil, apperr.External("edit message", err)
	}
	out := fromMessage(*edited)
	return &out, nil
}

func (c *Client) FetchMessage(ctx context.Context, ref platform.MessageRef) (*platform.Message, error) {
	ch, id, err := messageRef(ref)
	if err != nil {
		return nil, err
	}
	m, err := c.with(ctx).Message(ch, id)
	if err != nil {
		return nil, apperr.External("fetch message", err)
	}
	out := fromMessage(*m)
	return &out, nil
}

func (c *Client) PinnedMessages(ctx context.Context, chID string) ([]platform.Message, error) {
	ch, err := channelID(chID)
	if err != nil {
		return nil, err
	}
	msgs, err := c.with(ctx).PinnedMessages(ch)
	if err != nil {
		return nil, apperr.External("pinned messages", err)
	}
	out := make([]platform.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, fromMessage(m))
	}
	return out, nil
}

func (c *Client) PinMessage(ctx context.Context, ref platform.MessageRef) error {
	ch, id, err := messageRef(ref)
	if err != nil {
		return err
	}
	return apperr.External("pin message", c.with(ctx).PinMessage(ch, id, ""))
}

func (c *Client) Respond(ctx context.Context, in platform.Interaction, resp platform.Response) error {
	sf, err := parseID("interaction", in.ID)
	if err != nil {
		return err
	}
	r, err := interactionResponse(resp)
	if err != nil {
		return err
	}
	return apperr.External("respond", c.with(ctx).RespondInteraction(discord.InteractionID(sf), in.Token, r))
}

func interactionResponse(resp platform.Response) (api.InteractionResponse, error) {
	switch resp.Kind {
	case platform.ReplyEphemeral:
		return api.InteractionResponse{
			Type: api.MessageInteractionWithSource,
			Data: &api.InteractionResponseData{
				Content: option.NewNullableString(resp.Content),
				Flags:   discord.EphemeralMessage,
			},
		}, nil
	case platform.UpdateMessage:
		if resp.Message == nil {
			return api.InteractionResponse{}, fmt.Errorf("update response without a message")
		}
		embeds := toEmbeds(resp.Message.Embeds)
		components := toComponents(resp.Message.Rows)
		return api.InteractionResponse{
			Type: api.UpdateMessage,
			Data: &api.InteractionResponseData{
				Content:    option.NewNullableString(resp.Message.Content),
				Embeds:     &embeds,
				Components: &components,
			},
		}, nil
	case platform.ShowModal:
		if resp.Modal == nil {
			return api.InteractionResponse{}, fmt.Errorf("modal response without a modal")
		}
		components := toModalComponents(resp.Modal.Inputs)
		return api.InteractionResponse{
			Type: api.ModalResponse,
			Data: &api.InteractionResponseData{
				CustomID:   option.NewNullableString(resp.Modal.ID),
				Title:      option.NewNullableString(resp.Modal.Title),
				Components: &components,
			},
		}, nil
	case platform.DeferUpdate:
		return api.InteractionResponse{Type: api.DeferredMessageUpdate}, nil
	default:
		return api.InteractionResponse{}, fmt.Errorf("unknown response kind %d", resp.Kind)
	}
}

func (c *Client) FollowUp(ctx context.Context, in platform.Interaction, content string) error {
	_, err := c.with(ctx).FollowUpInteraction(c.appID, in.Token, api.InteractionResponseData{
		Content: option.NewNullableString(content),
		Flags:   discord.EphemeralMessage,
	})
	return apperr.External("follow up", err)
}

func (c *Client) StartThread(ctx context.Context, parentID, name string) (*platform.Thread, error) {
	parent, err := channelID(parentID)
	if err != nil {
		return nil, err
	}
	ch, err := c.with(ctx).StartThreadWithoutMessage(parent, api.StartThreadData{
		Name:                name,
		AutoArchiveDuration: threadArchive,
		Type:                discord.GuildPublicThread,
	})
	if err != nil {
		return nil, apperr.External("start thread", err)
	}
	th := fromThread(*ch)
	if th.ParentID == "" {
		th.ParentID = parentID
	}
	return &th, nil
}

// CloseThread archives and locks a thread.
func (c *Client) CloseThread(ctx context.Context, threadID string) error {
	ch, err := channelID(threadID)
	if err != nil {
		return err
	}
	return apperr.External("close thread", c.with(ctx).ModifyChannel(ch, api.ModifyChannelData{
		Archived: option.True,
		Locked:   option.True,
	}))
}

func (c *Client) ActiveThreads(ctx context.Context, gID string) ([]platform.Thread, error) {
	g, err := guildID(gID)
	if err != nil {
		return nil, err
	}
	active, err := c.with(ctx).ActiveThreads(g)
	if err != nil {
		return nil, apperr.External("active threads", err)
	}
	out := make([]platform.Thread, 0, len(active.Threads))
	for _, ch := range active.Threads {
		out = append(out, fromThread(ch))
	}
	return out, nil
}

func (c *Client) CreateScheduledEvent(ctx context.Context, gID string, ev platform.ScheduledEvent) (*platform.ScheduledEvent, error) {
	g, err := guildID(gID)
	if err != nil {
		return nil, err
	}
	data := api.CreateScheduledEventData{
		Name:         ev.Name,
		Description:  ev.Description,
		PrivacyLevel: discord.GuildOnly,
		StartTime:    discord.NewTimestamp(ev.Start),
		EntityType:   entityType(ev.Kind),
	}
	if !ev.End.IsZero() {
		end := discord.NewTimestamp(ev.End)
		data.EndTime = &end
	}
	if ev.Kind == model.KindExternal {
		data.EntityMetadata = &discord.EntityMetadata{Location: ev.Location}
	} else if data.ChannelID, err = channelID(ev.ChannelID); err != nil {
		return nil, err
	}
	created, err := c.with(ctx).CreateScheduledEvent(g, "", data)
	if err != nil {
		return nil, apperr.External("create scheduled event", err)
	}
	out := fromScheduledEvent(created)
	return &out, nil
}

func (c *Client) EditScheduledEvent(ctx context.Context, gID string, ev platform.ScheduledEvent) (*platform.ScheduledEvent, error) {
	g, err := guildID(gID)
	if err != nil {
		return nil, err
	}
	id, err := eventID(ev.ID)
	if err != nil {
		return nil, err
	}
	start := discord.NewTimestamp(ev.Start)
	data := api.EditScheduledEventData{
		Name:        option.NewNullableString(ev.Name),
		Description: option.NewNullableString(ev.Description),
		StartTime:   &start,
		EntityType:  entityType(ev.Kind),
	}
	if !ev.End.IsZero() {
		end := discord.NewTimestamp(ev.End)
		data.EndTime = &end
	}
	if ev.Kind == model.KindExternal {
		data.EntityMetadata = &discord.EntityMetadata{Location: ev.Location}
	} else if data.ChannelID, err = channelID(ev.ChannelID); err != nil {
		return nil, err
	}
	edited, err := c.with(ctx).EditScheduledEvent(g, id, "", data)
	if err != nil {
		return nil, apperr.External("edit scheduled event", err)
	}
	out := fromScheduledEvent(edited)
	return &out, nil
}

func (c *Client) DeleteScheduledEvent(ctx context.Context, gID, evID string) error {
	g, err := guildID(gID)
	if err != nil {
		return err
	}
	id, err := eventID(evID)
	if err != nil {
		return err
	}
	return apperr.External("delete scheduled event", c.with(ctx).DeleteScheduledEvent(g, id))
}

func (c *Client) ScheduledEvents(ctx context.Context, gID string) ([]platform.ScheduledEvent, error) {
	g, err := guildID(gID)
	if err != nil {
		return nil, err
	}
	evs, err := c.with(ctx).ListScheduledEvents(g, false)
	if err != nil {
		return nil, apperr.External("list scheduled events", err)
	}
	out := make([]platform.ScheduledEvent, 0, len(evs))
	for _, ev := range evs {
		out = append(out, fromScheduledEvent(ev))
	}
	return out, nil
}

// ResolveChannel accepts a channel id, a mention or a name (with or without
// the leading '#').
func (c *Client) ResolveChannel(ctx context.Context, gID, nameOrID string) (*platform.Channel, error) {
	g, err := guildID(gID)
	if err != nil {
		return nil, err
	}
	chans, err := c.with(ctx).Channels(g)
	if err != nil {
		return nil, apperr.External("list channels", err)
	}
	ch, ok := matchChannel(chans, nameOrID)
	if !ok {
		return nil, apperr.Validation("channel", fmt.Sprintf("No channel named %q was found.", nameOrID))
	}
	return &platform.Channel{
		ID:   ch.ID.String(),
		Name: ch.Name,
		Kind: channelKind(ch.Type),
	}, nil
}

func matchChannel(chans []discord.Channel, query string) (discord.Channel, bool) {
	q := strings.TrimSpace(query)
	q = strings.TrimSuffix(strings.TrimPrefix(q, "<#"), ">")
	if sf, err := discord.ParseSnowflake(q); err == nil && sf.IsValid() {
		for _, ch := range chans {
			if discord.Snowflake(ch.ID) == sf {
				return ch, true
			}
		}
	}
	name := strings.TrimPrefix(q, "#")
	for _, ch := range chans {
		if strings.EqualFold(ch.Name, name) {
			return ch, true
		}
	}
	return discord.Channel{}, false
}

// ChannelKind reports the kind of a venue channel for the codec. Lookups go
// through the state cache first. Channels that cannot be read count as voice.
func (c *Client) ChannelKind(id string) model.EntityKind {
	ch, err := channelID(id)
	if err != nil {
		return model.KindVoice
	}
	got, err := c.s.Channel(ch)
	if err != nil {
		return model.KindVoice
	}
	if k := channelKind(got.Type); k != model.KindExternal {
		return k
	}
	return model.KindVoice
}

var _ platform.Platform = (*Client)(nil)
