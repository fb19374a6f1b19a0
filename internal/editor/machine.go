// Package editor drives the interactive flow that creates and edits event
// drafts: a panel message with page buttons, modal forms per page, an image
// sub-flow and the terminal transitions Saved, Finished, Cancelled and
// TimedOut.
package editor

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"gatherbot/internal/apperr"
	"gatherbot/internal/codec"
	"gatherbot/internal/collector"
	appLog "gatherbot/internal/log"
	"gatherbot/internal/model"
	"gatherbot/internal/platform"
	"gatherbot/internal/session"
	"gatherbot/internal/temporal"
)

type State int

const (
	Drafting State = iota
	AwaitingModalSubmit
	Saved
	Finished
	Cancelled
	TimedOut
)

func (s State) String() string {
	switch s {
	case Drafting:
		return "drafting"
	case AwaitingModalSubmit:
		return "awaiting_modal_submit"
	case Saved:
		return "saved"
	case Finished:
		return "finished"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s >= Saved
}

const (
	DefaultEditingTimeout = 15 * time.Minute
	DefaultImageTimeout   = 2 * time.Minute
	DefaultFinishLead     = 30 * time.Minute
)

// Config is the per-guild editor configuration.
type Config struct {
	GuildID        string
	EventTypes     []model.EventType
	EditingTimeout time.Duration
	ImageTimeout   time.Duration
	// FinishLead is how far in the future an event must start to be
	// finished by a non-privileged user.
	FinishLead time.Duration
	// BotID filters pinned messages when looking for a state message.
	BotID string
}

func (c *Config) normalize() {
	if c.EditingTimeout <= 0 {
		c.EditingTimeout = DefaultEditingTimeout
	}
	if c.ImageTimeout <= 0 {
		c.ImageTimeout = DefaultImageTimeout
	}
	if c.FinishLead <= 0 {
		c.FinishLead = DefaultFinishLead
	}
}

// EventType looks up a catalog entry by name, case-insensitively.
func (c *Config) EventType(name string) (model.EventType, bool) {
	for _, t := range c.EventTypes {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return model.EventType{}, false
}

// panel is one live editor message.
type panel struct {
	ref     platform.MessageRef
	ownerID string
	draft   *model.EventDraft
	state   State
}

// Machine is the edit state machine for one guild. The session store and
// collector registry may be shared between guilds.
type Machine struct {
	cfg        Config
	plat       platform.Platform
	codec      codec.Codec
	resolver   *temporal.Resolver
	sessions   *session.Store
	collectors *collector.Registry
	now        func() time.Time

	mu     sync.Mutex
	panels map[string]*panel // by draft id
	locks  map[string]*semaphore.Weighted

	// OnTransition, when set, observes every state change.
	OnTransition func(draftID string, from, to State)
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func New(cfg Config, plat platform.Platform, c codec.Codec, resolver *temporal.Resolver,
	sessions *session.Store, collectors *collector.Registry, opts ...Option) (*Machine, error) {
	if len(cfg.EventTypes) == 0 {
		return nil, apperr.Configuration("guild %s has an empty event-type catalog", cfg.GuildID)
	}
	cfg.normalize()
	m := &Machine{
		cfg:        cfg,
		plat:       plat,
		codec:      c,
		resolver:   resolver,
		sessions:   sessions,
		collectors: collectors,
		now:        time.Now,
		panels:     make(map[string]*panel),
		locks:      make(map[string]*semaphore.Weighted),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

func (m *Machine) Config() Config { return m.cfg }

// HandleInteraction routes one interaction of this guild.
func (m *Machine) HandleInteraction(ctx context.Context, in platform.Interaction) {
	switch {
	case in.Kind == platform.CommandInteraction:
		m.Start(ctx, in)
	case in.Kind == platform.ButtonInteraction && strings.HasPrefix(in.CustomID, statePrefix):
		m.handleStateButton(ctx, in)
	default:
		if !m.collectors.Dispatch(in) {
			m.reply(ctx, in, "This editor is no longer active. Run /event to pick up where you left off.")
		}
	}
}

// HandleMessage feeds a posted message to any waiting image sub-flow.
func (m *Machine) HandleMessage(msg platform.Message) bool {
	return m.collectors.DispatchMessage(msg)
}

// Start is the command entry point. Inside an event thread it resumes
// editing that event; elsewhere it resumes the author's saved draft or
// creates a new one of the requested type.
func (m *Machine) Start(ctx context.Context, in platform.Interaction) {
	if pinned, err := m.plat.PinnedMessages(ctx, in.ChannelID); err == nil && len(pinned) > 0 {
		if d, err := codec.FindState(m.codec, pinned, m.cfg.BotID); err == nil {
			m.resume(ctx, in, d)
			return
		}
	}

	if d, ok := m.sessions.Get(in.UserID); ok {
		m.open(ctx, in, d)
		return
	}

	typeName := strings.TrimSpace(in.Options["type"])
	var et model.EventType
	switch {
	case typeName == "" && len(m.cfg.EventTypes) == 1:
		et = m.cfg.EventTypes[0]
	default:
		var ok bool
		et, ok = m.cfg.EventType(typeName)
		if !ok {
			m.reply(ctx, in, "Pick an event type: "+m.typeNames()+".")
			return
		}
	}

	d := model.NewDraft(m.cfg.GuildID, in.UserID, in.Username)
	d.TypeName = et.Name
	d.Venue = et.DefaultVenue()
	d.DurationHours = 1
	appLog.Info("draft created", "draft", d.ID, "author", d.AuthorID, "type", et.Name)
	m.open(ctx, in, d)
}

// Resume is the entry point for the Edit button on a state message.
func (m *Machine) Resume(ctx context.Context, in platform.Interaction) {
	msg, err := m.plat.FetchMessage(ctx, platform.MessageRef{ChannelID: in.ChannelID, MessageID: in.MessageID})
	if err != nil {
		appLog.Error("fetch state message failed", err, "message", in.MessageID)
		m.reply(ctx, in, apperr.UserMessage(err))
		return
	}
	d, err := codec.DecodeMessage(m.codec, *msg)
	if err != nil {
		appLog.Error("decode state message failed", err, "message", in.MessageID)
		m.reply(ctx, in, "This event's message can no longer be read.")
		return
	}
	m.resume(ctx, in, d)
}

func (m *Machine) resume(ctx context.Context, in platform.Interaction, d *model.EventDraft) {
	if in.UserID != d.AuthorID && !in.Privileged {
		m.reply(ctx, in, "Only the host can edit this event.")
		return
	}
	// An earlier edit of the same event that timed out or was saved wins
	// over the published copy.
	if saved, ok := m.sessions.Get(d.AuthorID); ok && saved.ID == d.ID {
		d = saved
	}
	if d.GuildID == "" {
		d.GuildID = m.cfg.GuildID
	}
	m.open(ctx, in, d)
}

// open shows the panel for d and attaches its collector. A draft that
// already has a panel reuses that message; the previous collector is
// replaced.
func (m *Machine) open(ctx context.Context, in platform.Interaction, d *model.EventDraft) {
	if in.UserID == d.AuthorID {
		m.sessions.Save(d)
	}

	m.mu.Lock()
	p, exists := m.panels[d.ID]
	m.mu.Unlock()

	if exists {
		if _, err := m.plat.EditMessage(ctx, p.ref, m.render(d, Drafting)); err != nil {
			exists = false
		}
	}
	if !exists {
		msg, err := m.plat.SendMessage(ctx, in.ChannelID, m.render(d, Drafting))
		if err != nil {
			appLog.Error("send panel failed", err, "draft", d.ID)
			m.reply(ctx, in, apperr.UserMessage(err))
			return
		}
		p = &panel{ref: platform.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}}
	}

	m.mu.Lock()
	prev := p.state
	p.ownerID = in.UserID
	p.draft = d
	p.state = Drafting
	m.panels[d.ID] = p
	m.mu.Unlock()
	if exists {
		m.notify(d.ID, prev, Drafting)
	}

	m.collectors.Attach(p.ref.MessageID, m.cfg.EditingTimeout,
		func(stop context.Context, in platform.Interaction) { m.handle(stop, p, in) },
		func(reason collector.Reason) { m.ended(p, reason) },
	)
	m.reply(ctx, in, "Editing **"+displayName(d)+"**. Use the buttons on the panel.")
}

// handle runs one panel interaction. Calls for one panel are serial. Only
// waits observe the cancellation of stop; platform calls outlive it so a
// handler that ends its own panel can still answer.
func (m *Machine) handle(stop context.Context, p *panel, in platform.Interaction) {
	ctx := context.WithoutCancel(stop)
	m.mu.Lock()
	owner, state, d := p.ownerID, p.state, p.draft
	m.mu.Unlock()

	if state.Terminal() {
		m.reply(ctx, in, "This editor is closed.")
		return
	}
	if in.UserID != owner {
		m.reply(ctx, in, "This panel belongs to someone else.")
		return
	}

	unlock, ok := m.tryLock(lockKey(d))
	if !ok {
		m.reply(ctx, in, "Still working on your last change, try again in a moment.")
		return
	}
	defer unlock()

	if in.Kind == platform.ModalSubmitInteraction {
		m.submitPage(ctx, p, in)
		return
	}

	switch in.CustomID {
	case btnDetails, btnSchedule, btnRecurrence:
		m.showPage(ctx, p, in)
	case btnImage:
		m.collectImage(ctx, stop, p, in)
	case btnSave:
		m.save(ctx, p, in)
	case btnFinish:
		m.finish(ctx, p, in)
	case btnCancel:
		m.cancel(ctx, p, in)
	default:
		m.reply(ctx, in, "Unknown action.")
	}
}

// ended runs when the panel's collector stops.
func (m *Machine) ended(p *panel, reason collector.Reason) {
	if reason != collector.TimedOut {
		return
	}
	m.mu.Lock()
	if p.state.Terminal() {
		m.mu.Unlock()
		return
	}
	d := p.draft
	m.mu.Unlock()

	m.stash(p, d)
	m.transition(p, TimedOut)
	appLog.Info("editor timed out", "draft", d.ID)
	if _, err := m.plat.EditMessage(context.Background(), p.ref, m.render(d, TimedOut)); err != nil {
		appLog.Error("lock panel failed", err, "draft", d.ID)
	}
}

// terminate moves p into a terminal state. Only the first call for a panel
// returns true; it stops the collector and drops the panel so duplicate
// submissions are no-ops.
func (m *Machine) terminate(p *panel, to State) bool {
	m.mu.Lock()
	if p.state.Terminal() {
		m.mu.Unlock()
		return false
	}
	d, owner := p.draft, p.ownerID
	m.mu.Unlock()

	m.collectors.Stop(p.ref.MessageID)
	if to != Saved && owner == d.AuthorID {
		m.sessions.Release(d.AuthorID, d.ID)
	}
	m.transition(p, to)

	if to == Finished || to == Cancelled {
		m.mu.Lock()
		if m.panels[d.ID] == p {
			delete(m.panels, d.ID)
		}
		m.mu.Unlock()
	}
	return true
}

// stash saves d as its author's draft. A panel opened by someone else keeps
// its draft to itself so the author's own draft is never replaced.
func (m *Machine) stash(p *panel, d *model.EventDraft) {
	m.mu.Lock()
	owner := p.ownerID
	m.mu.Unlock()
	if owner == d.AuthorID {
		m.sessions.Save(d)
	}
}

// Prune forgets locked panels whose draft is no longer in the session
// store, and idle locks.
func (m *Machine) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, p := range m.panels {
		if !p.state.Terminal() {
			continue
		}
		if d, ok := m.sessions.Peek(p.draft.AuthorID); ok && d.ID == id {
			continue
		}
		delete(m.panels, id)
		n++
	}
	for key, sem := range m.locks {
		if sem.TryAcquire(1) {
			delete(m.locks, key)
			sem.Release(1)
		}
	}
	return n
}

func (m *Machine) transition(p *panel, to State) {
	m.mu.Lock()
	from := p.state
	p.state = to
	id := p.draft.ID
	m.mu.Unlock()
	m.notify(id, from, to)
}

func (m *Machine) notify(id string, from, to State) {
	appLog.Debug("editor transition", "draft", id, "from", from, "to", to)
	if m.OnTransition != nil {
		m.OnTransition(id, from, to)
	}
}

// State reports the panel state of a draft, false when it has no panel.
func (m *Machine) State(draftID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.panels[draftID]
	if !ok {
		return 0, false
	}
	return p.state, true
}

// PanelRef returns the panel message of a draft.
func (m *Machine) PanelRef(draftID string) (platform.MessageRef, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.panels[draftID]
	if !ok {
		return platform.MessageRef{}, false
	}
	return p.ref, true
}

// tryLock enforces one in-flight handler per key.
func (m *Machine) tryLock(key string) (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sem, ok := m.locks[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		m.locks[key] = sem
	}
	if !sem.TryAcquire(1) {
		return nil, false
	}
	return func() { sem.Release(1) }, true
}

// TryLockEvent takes the lock of a committed event's state message so that
// maintenance never rewrites it while a handler is in flight. The returned
// func releases it.
func (m *Machine) TryLockEvent(messageID string) (func(), bool) {
	return m.tryLock(messageID)
}

// lockKey is the state message id once committed so that attendance
// buttons and edits of the same event share one lock.
func lockKey(d *model.EventDraft) string {
	if d.MessageID != "" {
		return d.MessageID
	}
	return d.ID
}

func (m *Machine) reply(ctx context.Context, in platform.Interaction, content string) {
	if err := m.plat.Respond(ctx, in, platform.Response{Kind: platform.ReplyEphemeral, Content: content}); err != nil {
		appLog.Error("respond failed", err, "interaction", in.ID)
	}
}

func (m *Machine) typeNames() string {
	names := make([]string, len(m.cfg.EventTypes))
	for i, t := range m.cfg.EventTypes {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}
