// Package platform is the contract with the chat platform: message, thread
// and scheduled-event CRUD plus interaction replies. The types here are
// platform neutral; internal/discord implements Platform on top of arikawa.
package platform

import (
	"context"
	"time"

	"gatherbot/internal/model"
)

// Field is a keyed name/value pair inside an Embed.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is one structured block of a message: title line, author line,
// description, image and keyed fields.
type Embed struct {
	Title       string
	Author      string
	Description string
	ImageURL    string
	Fields      []Field
	Footer      string
}

// Field returns the value of the first field named name.
func (e Embed) Field(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
	ButtonLink
)

type Button struct {
	ID       string
	Label    string
	Style    ButtonStyle
	URL      string
	Disabled bool
}

// OutgoingMessage is what gets sent or written over an existing message.
// Rows are rows of buttons; nil Rows removes all components.
type OutgoingMessage struct {
	Content string
	Embeds  []Embed
	Rows    [][]Button
}

// Message is a message as fetched back from the platform.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	Content   string
	Embeds    []Embed
	Pinned    bool
	// Attachments holds attachment URLs.
	Attachments []string
}

// MessageRef addresses a message.
type MessageRef struct {
	ChannelID string
	MessageID string
}

type InteractionKind int

const (
	CommandInteraction InteractionKind = iota
	ButtonInteraction
	ModalSubmitInteraction
)

// Interaction is a user action delivered by the platform.
type Interaction struct {
	ID    string
	Token string
	Kind  InteractionKind

	GuildID   string
	ChannelID string
	// MessageID is the message a button or modal was attached to.
	MessageID string

	UserID   string
	Username string
	// Privileged is set by the adapter when the user passes the
	// administrative check.
	Privileged bool

	// CommandName and Options are set for CommandInteraction.
	CommandName string
	Options     map[string]string

	// CustomID is the button or modal id.
	CustomID string
	// Values holds submitted modal inputs keyed by input id.
	Values map[string]string

	ReceivedAt time.Time
}

// TextInput is one modal input.
type TextInput struct {
	ID          string
	Label       string
	Value       string
	Placeholder string
	Paragraph   bool
	Required    bool
	MaxLength   int
}

type Modal struct {
	ID     string
	Title  string
	Inputs []TextInput
}

type ResponseKind int

const (
	// ReplyEphemeral answers privately with Content.
	ReplyEphemeral ResponseKind = iota
	// UpdateMessage rewrites the message the interaction came from.
	UpdateMessage
	// ShowModal opens Modal.
	ShowModal
	// DeferUpdate acknowledges without changing anything yet.
	DeferUpdate
)

type Response struct {
	Kind    ResponseKind
	Content string
	Message *OutgoingMessage
	Modal   *Modal
}

// ScheduledEvent is the platform's native event resource.
type ScheduledEvent struct {
	ID          string
	Name        string
	Description string
	Kind        model.EntityKind
	ChannelID   string
	Location    string
	Start       time.Time
	End         time.Time
	Status      EventStatus
}

type EventStatus int

const (
	EventScheduled EventStatus = iota
	EventActive
	EventCompleted
	EventCanceled
)

// Thread is a discussion thread under a parent channel.
type Thread struct {
	ID       string
	ParentID string
	Name     string
	Archived bool
	Locked   bool
}

// Channel is a guild channel as returned by a lookup.
type Channel struct {
	ID   string
	Name string
	// Kind is KindVoice or KindStage for channels that can host an
	// event, KindExternal for everything else.
	Kind model.EntityKind
}

// Messenger covers messages and interaction replies.
type Messenger interface {
	SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) (*Message, error)
	EditMessage(ctx context.Context, ref MessageRef, msg OutgoingMessage) (*Message, error)
	FetchMessage(ctx context.Context, ref MessageRef) (*Message, error)
	PinnedMessages(ctx context.Context, channelID string) ([]Message, error)
	PinMessage(ctx context.Context, ref MessageRef) error

	Respond(ctx context.Context, in Interaction, resp Response) error
	FollowUp(ctx context.Context, in Interaction, content string) error
}

// Threads covers discussion threads.
type Threads interface {
	StartThread(ctx context.Context, channelID, name string) (*Thread, error)
	CloseThread(ctx context.Context, threadID string) error
	ActiveThreads(ctx context.Context, guildID string) ([]Thread, error)
}

// Events covers scheduled-event resources.
type Events interface {
	CreateScheduledEvent(ctx context.Context, guildID string, ev ScheduledEvent) (*ScheduledEvent, error)
	EditScheduledEvent(ctx context.Context, guildID string, ev ScheduledEvent) (*ScheduledEvent, error)
	DeleteScheduledEvent(ctx context.Context, guildID, eventID string) error
	ScheduledEvents(ctx context.Context, guildID string) ([]ScheduledEvent, error)
}

// Directory resolves channels by name or id.
type Directory interface {
	ResolveChannel(ctx context.Context, guildID, nameOrID string) (*Channel, error)
}

// Platform is everything the core consumes.
type Platform interface {
	Messenger
	Threads
	Events
	Directory
}

// EventFromDraft maps a draft onto the platform's scheduled-event resource.
func EventFromDraft(d *model.EventDraft) ScheduledEvent {
	ev := ScheduledEvent{
		ID:          d.ScheduledEventID,
		Name:        d.Name,
		Description: d.Description,
		Kind:        d.Kind(),
		Start:       d.Start,
		End:         d.End(),
	}
	switch v := d.Venue.(type) {
	case model.ExternalVenue:
		ev.Location = v.Location
	default:
		ev.ChannelID, _ = model.VenueChannelID(v)
	}
	return ev
}
