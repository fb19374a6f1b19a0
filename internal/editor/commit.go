package editor

import (
	"context"
	"strings"

	"gatherbot/internal/apperr"
	"gatherbot/internal/collector"
	appLog "gatherbot/internal/log"
	"gatherbot/internal/model"
	"gatherbot/internal/platform"
)

// collectImage waits for the owner to post an image in the panel's
// channel. Nothing but ImageURL changes, and a timeout leaves the draft as
// it was. The wait ends early once stop is done.
func (m *Machine) collectImage(ctx, stop context.Context, p *panel, in platform.Interaction) {
	m.mu.Lock()
	d := p.draft
	m.mu.Unlock()

	m.reply(ctx, in, "Send an image (or an image link) in this channel within "+m.cfg.ImageTimeout.String()+".")
	res := m.collectors.ExpectMessage(stop, p.ref.ChannelID, in.UserID, m.cfg.ImageTimeout)

	switch res.Outcome {
	case collector.Collected:
		url := imageURL(res.Message)
		if url == "" {
			m.followUp(ctx, in, "That message had no image, nothing changed.")
			return
		}
		staged := d.Clone()
		staged.ImageURL = url
		m.mu.Lock()
		p.draft = staged
		m.mu.Unlock()
		m.stash(p, staged)
		if _, err := m.plat.EditMessage(ctx, p.ref, m.render(staged, Drafting)); err != nil {
			appLog.Error("update panel failed", err, "draft", d.ID)
		}
	case collector.WaitTimedOut:
		m.followUp(ctx, in, "No image received, nothing changed.")
		if _, err := m.plat.EditMessage(ctx, p.ref, m.render(d, Drafting)); err != nil {
			appLog.Error("update panel failed", err, "draft", d.ID)
		}
	}
}

func imageURL(msg platform.Message) string {
	if len(msg.Attachments) > 0 {
		return msg.Attachments[0]
	}
	s := strings.TrimSpace(msg.Content)
	if strings.HasPrefix(s, "https://") && !strings.ContainsAny(s, " \n") {
		return s
	}
	return ""
}

func (m *Machine) save(ctx context.Context, p *panel, in platform.Interaction) {
	m.mu.Lock()
	d := p.draft
	m.mu.Unlock()

	m.stash(p, d)
	if !m.terminate(p, Saved) {
		return
	}
	msg := m.render(d, Saved)
	if err := m.plat.Respond(ctx, in, platform.Response{Kind: platform.UpdateMessage, Message: &msg}); err != nil {
		appLog.Error("update panel failed", err, "draft", d.ID)
	}
}

// complete checks the fields a published event needs.
func complete(d *model.EventDraft) error {
	if d.Name == "" {
		return apperr.Validation(inName, "Give the event a name first (Details).")
	}
	switch v := d.Venue.(type) {
	case model.ExternalVenue:
		if v.Location == "" {
			return apperr.Validation(inLocation, "Set a location first (Details).")
		}
	case nil:
		return apperr.Validation(inLocation, "Set a location first (Details).")
	default:
		if id, _ := model.VenueChannelID(v); id == "" {
			return apperr.Validation(inChannel, "Pick a channel first (Details).")
		}
	}
	if d.Start.IsZero() {
		return apperr.Validation(inStart, "Set a start time first (Schedule).")
	}
	if d.DurationHours < 1 {
		return apperr.Validation(inDuration, "Set a duration first (Schedule).")
	}
	return nil
}

func (m *Machine) finish(ctx context.Context, p *panel, in platform.Interaction) {
	m.mu.Lock()
	d := p.draft
	m.mu.Unlock()

	if err := complete(d); err != nil {
		m.reply(ctx, in, apperr.UserMessage(err))
		return
	}
	if !in.Privileged && d.Start.Before(m.now().Add(m.cfg.FinishLead)) {
		m.reply(ctx, in, "The event must start more than "+shortDuration(m.cfg.FinishLead)+" from now.")
		return
	}

	if !m.terminate(p, Finished) {
		return
	}
	if err := m.plat.Respond(ctx, in, platform.Response{Kind: platform.DeferUpdate}); err != nil {
		appLog.Error("defer failed", err, "draft", d.ID)
	}

	committed, err := m.commit(ctx, d)
	if err != nil {
		appLog.Error("commit failed", err, "draft", d.ID)
		m.stash(p, d)
		m.transition(p, Saved)
		m.followUp(ctx, in, apperr.UserMessage(err))
		msg := m.render(d, TimedOut)
		msg.Content = "Publishing failed. Your draft was kept, run /event to try again."
		if _, err := m.plat.EditMessage(ctx, p.ref, msg); err != nil {
			appLog.Error("lock panel failed", err, "draft", d.ID)
		}
		return
	}
	appLog.Info("event published", "draft", d.ID, "thread", committed.ThreadID, "scheduled_event", committed.ScheduledEventID)
	if _, err := m.plat.EditMessage(ctx, p.ref, m.render(committed, Finished)); err != nil {
		appLog.Error("update panel failed", err, "draft", d.ID)
	}
}

// commit publishes d and returns it with back-references filled in. d
// itself is never modified.
func (m *Machine) commit(ctx context.Context, d *model.EventDraft) (*model.EventDraft, error) {
	if d.Committed() {
		return m.update(ctx, d.Clone())
	}

	et, ok := m.cfg.EventType(d.TypeName)
	if !ok {
		return nil, apperr.Configuration("event type %q is not configured", d.TypeName)
	}

	c := d.Clone()
	sev, err := m.plat.CreateScheduledEvent(ctx, c.GuildID, platform.EventFromDraft(c))
	if err != nil {
		return nil, apperr.External("create scheduled event", err)
	}
	c.ScheduledEventID = sev.ID

	th, err := m.plat.StartThread(ctx, et.ChannelID, c.Name)
	if err != nil {
		m.rollback(ctx, c)
		return nil, apperr.External("start thread", err)
	}
	c.ThreadID = th.ID

	out, err := StateMessage(m.codec, c)
	if err != nil {
		m.rollback(ctx, c)
		return nil, err
	}
	msg, err := m.plat.SendMessage(ctx, th.ID, out)
	if err != nil {
		m.rollback(ctx, c)
		return nil, apperr.External("send state message", err)
	}
	c.MessageID = msg.ID

	if err := m.plat.PinMessage(ctx, platform.MessageRef{ChannelID: th.ID, MessageID: msg.ID}); err != nil {
		m.rollback(ctx, c)
		return nil, apperr.External("pin state message", err)
	}
	return c, nil
}

// update rewrites an already published event in place. The attendance
// block is taken from the live message so joins made during the edit are
// kept.
func (m *Machine) update(ctx context.Context, d *model.EventDraft) (*model.EventDraft, error) {
	ref := platform.MessageRef{ChannelID: d.ThreadID, MessageID: d.MessageID}
	live, err := m.plat.FetchMessage(ctx, ref)
	if err != nil {
		return nil, apperr.External("fetch state message", err)
	}
	if len(live.Embeds) > 1 {
		attendees, _, err := m.codec.DecodeAttendance(live.Embeds[1])
		if err != nil {
			return nil, err
		}
		d.Attendees = attendees
	}
	if d.Capacity > 0 && d.Attendees.Len() > d.Capacity {
		return nil, apperr.Validation(inCapacity, "More people have already joined than that cap allows.")
	}

	if d.ScheduledEventID != "" {
		if _, err := m.plat.EditScheduledEvent(ctx, d.GuildID, platform.EventFromDraft(d)); err != nil {
			return nil, apperr.External("edit scheduled event", err)
		}
	} else {
		sev, err := m.plat.CreateScheduledEvent(ctx, d.GuildID, platform.EventFromDraft(d))
		if err != nil {
			return nil, apperr.External("create scheduled event", err)
		}
		d.ScheduledEventID = sev.ID
	}

	out, err := StateMessage(m.codec, d)
	if err != nil {
		return nil, err
	}
	if _, err := m.plat.EditMessage(ctx, ref, out); err != nil {
		return nil, apperr.External("edit state message", err)
	}
	return d, nil
}

// rollback releases what a failed commit already allocated.
func (m *Machine) rollback(ctx context.Context, d *model.EventDraft) {
	if d.ScheduledEventID != "" {
		if err := m.plat.DeleteScheduledEvent(ctx, d.GuildID, d.ScheduledEventID); err != nil {
			appLog.Error("rollback scheduled event failed", err, "draft", d.ID, "scheduled_event", d.ScheduledEventID)
		}
	}
	if d.ThreadID != "" {
		if err := m.plat.CloseThread(ctx, d.ThreadID); err != nil {
			appLog.Error("rollback thread failed", err, "draft", d.ID, "thread", d.ThreadID)
		}
	}
}

func (m *Machine) cancel(ctx context.Context, p *panel, in platform.Interaction) {
	m.mu.Lock()
	d := p.draft
	m.mu.Unlock()

	if !m.terminate(p, Cancelled) {
		return
	}
	msg := m.render(d, Cancelled)
	if err := m.plat.Respond(ctx, in, platform.Response{Kind: platform.UpdateMessage, Message: &msg}); err != nil {
		appLog.Error("update panel failed", err, "draft", d.ID)
	}
	m.rollback(ctx, d)
	appLog.Info("event cancelled", "draft", d.ID)
}

// handleStateButton serves Join, Leave and Edit on a state message. Join
// and Leave rewrite only the attendance block.
func (m *Machine) handleStateButton(ctx context.Context, in platform.Interaction) {
	if in.CustomID == BtnEdit {
		m.Resume(ctx, in)
		return
	}

	unlock, ok := m.tryLock(in.MessageID)
	if !ok {
		m.reply(ctx, in, "Still working on the last change, try again in a moment.")
		return
	}
	defer unlock()

	msg, err := m.plat.FetchMessage(ctx, platform.MessageRef{ChannelID: in.ChannelID, MessageID: in.MessageID})
	if err != nil {
		appLog.Error("fetch state message failed", err, "message", in.MessageID)
		m.reply(ctx, in, apperr.UserMessage(err))
		return
	}
	if len(msg.Embeds) < 2 {
		appLog.Warn("state message has no attendance block", "message", in.MessageID)
		m.reply(ctx, in, "This event's message can no longer be read.")
		return
	}
	attendees, capacity, err := m.codec.DecodeAttendance(msg.Embeds[1])
	if err != nil {
		appLog.Error("decode attendance failed", err, "message", in.MessageID)
		m.reply(ctx, in, "This event's message can no longer be read.")
		return
	}

	switch in.CustomID {
	case BtnJoin:
		if attendees.Has(in.UserID) {
			m.reply(ctx, in, "You already joined.")
			return
		}
		if capacity > 0 && attendees.Len() >= capacity {
			m.reply(ctx, in, "This event is full.")
			return
		}
		attendees.Add(in.UserID)
	case BtnLeave:
		if !attendees.Remove(in.UserID) {
			m.reply(ctx, in, "You are not on the list.")
			return
		}
	default:
		m.reply(ctx, in, "Unknown action.")
		return
	}

	out := platform.OutgoingMessage{
		Embeds: []platform.Embed{msg.Embeds[0], m.codec.EncodeAttendance(attendees, capacity)},
		Rows:   StateButtons(),
	}
	if err := m.plat.Respond(ctx, in, platform.Response{Kind: platform.UpdateMessage, Message: &out}); err != nil {
		appLog.Error("update attendance failed", err, "message", in.MessageID)
	}
}

func (m *Machine) followUp(ctx context.Context, in platform.Interaction, content string) {
	if err := m.plat.FollowUp(ctx, in, content); err != nil {
		appLog.Error("follow-up failed", err, "interaction", in.ID)
	}
}
