package model

import (
	"fmt"
	"strings"
)

// EntityKind is the scheduled-event entity type.
type EntityKind int

const (
	KindExternal EntityKind = iota
	KindVoice
	KindStage
)

func (k EntityKind) String() string {
	switch k {
	case KindExternal:
		return "external"
	case KindVoice:
		return "voice"
	case KindStage:
		return "stage"
	default:
		return fmt.Sprintf("EntityKind(%d)", int(k))
	}
}

// ParseEntityKind accepts the String forms, case-insensitively.
func ParseEntityKind(s string) (EntityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "external":
		return KindExternal, nil
	case "voice":
		return KindVoice, nil
	case "stage":
		return KindStage, nil
	default:
		return KindExternal, fmt.Errorf("unknown entity kind %q", s)
	}
}

// Venue is where an event happens: a free-text location for external
// events or a channel for voice and stage events.
type Venue interface {
	Kind() EntityKind
	venue()
}

type ExternalVenue struct {
	Location string
}

type VoiceVenue struct {
	ChannelID string
}

type StageVenue struct {
	ChannelID string
}

func (ExternalVenue) Kind() EntityKind { return KindExternal }
func (VoiceVenue) Kind() EntityKind    { return KindVoice }
func (StageVenue) Kind() EntityKind    { return KindStage }

func (ExternalVenue) venue() {}
func (VoiceVenue) venue()    {}
func (StageVenue) venue()    {}

// ChannelVenue builds the venue for a channel of the given kind. External
// kinds have no channel and yield nil.
func ChannelVenue(kind EntityKind, channelID string) Venue {
	switch kind {
	case KindVoice:
		return VoiceVenue{ChannelID: channelID}
	case KindStage:
		return StageVenue{ChannelID: channelID}
	default:
		return nil
	}
}

// VenueChannelID returns the channel id of a voice or stage venue.
func VenueChannelID(v Venue) (string, bool) {
	switch v := v.(type) {
	case VoiceVenue:
		return v.ChannelID, true
	case StageVenue:
		return v.ChannelID, true
	default:
		return "", false
	}
}

// EventType is one entry of a guild's event-type catalog. Committed events
// of this type get their thread under ChannelID.
type EventType struct {
	Name        string
	Description string
	ChannelID   string
	Kind        EntityKind
}

// DefaultVenue is the empty venue of the type's kind.
func (t EventType) DefaultVenue() Venue {
	if t.Kind == KindExternal {
		return ExternalVenue{}
	}
	return ChannelVenue(t.Kind, "")
}
