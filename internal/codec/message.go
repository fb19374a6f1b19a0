package codec

import (
	"gatherbot/internal/apperr"
	"gatherbot/internal/model"
	"gatherbot/internal/platform"
)

// DecodeMessage reads a state message: the event embed first, the
// attendance embed second. The message and channel ids become the draft's
// back-references.
func DecodeMessage(c Codec, msg platform.Message) (*model.EventDraft, error) {
	if len(msg.Embeds) < 2 {
		return nil, apperr.Parse(FieldTitle, "state message %s has %d embeds, want 2", msg.ID, len(msg.Embeds))
	}
	d, err := c.Decode(msg.Embeds[0])
	if err != nil {
		return nil, err
	}
	attendees, capacity, err := c.DecodeAttendance(msg.Embeds[1])
	if err != nil {
		return nil, err
	}
	d.Attendees = attendees
	d.Capacity = capacity
	d.MessageID = msg.ID
	d.ThreadID = msg.ChannelID
	return d, nil
}

// EncodeMessage is the inverse of DecodeMessage, without components.
func EncodeMessage(c Codec, d *model.EventDraft) (platform.OutgoingMessage, error) {
	e, err := c.Encode(d)
	if err != nil {
		return platform.OutgoingMessage{}, err
	}
	return platform.OutgoingMessage{
		Embeds: []platform.Embed{e, c.EncodeAttendance(d.Attendees, d.Capacity)},
	}, nil
}

// FindState picks the state message out of a thread's pinned messages.
// Pins written by someone other than botID are ignored when botID is set.
func FindState(c Codec, pinned []platform.Message, botID string) (*model.EventDraft, error) {
	var firstErr error
	for _, m := range pinned {
		if botID != "" && m.AuthorID != botID {
			continue
		}
		d, err := DecodeMessage(c, m)
		if err == nil {
			return d, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, apperr.Parse(FieldEventID, "no pinned state message")
}
