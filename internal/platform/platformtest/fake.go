// Package platformtest provides an in-memory Platform for tests.
package platformtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/atomic"

	"gatherbot/internal/platform"
)

// ErrInjected is returned by calls listed in Fake.Fail.
var ErrInjected = errors.New("injected failure")

// Fake records every call. Set Fail["CreateScheduledEvent"] (or any other
// method name) to make that method return ErrInjected.
type Fake struct {
	mu sync.Mutex

	ids atomic.Uint64

	Messages  map[string]*platform.Message
	Threads   map[string]*platform.Thread
	Events    map[string]*platform.ScheduledEvent
	Channels  map[string]platform.Channel
	Responses []Reply
	FollowUps []string
	Calls     []string
	Fail      map[string]bool

	BotID string
}

// Reply is one recorded Respond call.
type Reply struct {
	Interaction platform.Interaction
	Response    platform.Response
}

func New() *Fake {
	return &Fake{
		Messages: make(map[string]*platform.Message),
		Threads:  make(map[string]*platform.Thread),
		Events:   make(map[string]*platform.ScheduledEvent),
		Channels: make(map[string]platform.Channel),
		Fail:     make(map[string]bool),
		BotID:    "bot",
	}
}

func (f *Fake) call(name string) error {
	f.Calls = append(f.Calls, name)
	if f.Fail[name] {
		return fmt.Errorf("%s: %w", name, ErrInjected)
	}
	return nil
}

func (f *Fake) nextID() string {
	return fmt.Sprintf("%d", 1000+f.ids.Inc())
}

// AddChannel registers a channel for ResolveChannel.
func (f *Fake) AddChannel(ch platform.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Channels[ch.ID] = ch
}

// Called reports how many times name was invoked.
func (f *Fake) Called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == name {
			n++
		}
	}
	return n
}

// LastReply returns the most recent Respond call.
func (f *Fake) LastReply() (Reply, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Responses) == 0 {
		return Reply{}, false
	}
	return f.Responses[len(f.Responses)-1], true
}

// Message returns a copy of a stored message.
func (f *Fake) Message(id string) (platform.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Messages[id]
	if !ok {
		return platform.Message{}, false
	}
	return *m, true
}

// Event returns a copy of a stored scheduled event.
func (f *Fake) Event(id string) (platform.ScheduledEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.Events[id]
	if !ok {
		return platform.ScheduledEvent{}, false
	}
	return *e, true
}

// Thread returns a copy of a stored thread.
func (f *Fake) Thread(id string) (platform.Thread, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	th, ok := f.Threads[id]
	if !ok {
		return platform.Thread{}, false
	}
	return *th, true
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg platform.OutgoingMessage) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SendMessage"); err != nil {
		return nil, err
	}
	m := &platform.Message{ID: f.nextID(), ChannelID: channelID, AuthorID: f.BotID, Content: msg.Content, Embeds: msg.Embeds}
	f.Messages[m.ID] = m
	cp := *m
	return &cp, nil
}

func (f *Fake) EditMessage(_ context.Context, ref platform.MessageRef, msg platform.OutgoingMessage) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("EditMessage"); err != nil {
		return nil, err
	}
	m, ok := f.Messages[ref.MessageID]
	if !ok {
		return nil, fmt.Errorf("unknown message %s", ref.MessageID)
	}
	m.Content = msg.Content
	m.Embeds = msg.Embeds
	cp := *m
	return &cp, nil
}

func (f *Fake) FetchMessage(_ context.Context, ref platform.MessageRef) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FetchMessage"); err != nil {
		return nil, err
	}
	m, ok := f.Messages[ref.MessageID]
	if !ok {
		return nil, fmt.Errorf("unknown message %s", ref.MessageID)
	}
	cp := *m
	return &cp, nil
}

func (f *Fake) PinnedMessages(_ context.Context, channelID string) ([]platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("PinnedMessages"); err != nil {
		return nil, err
	}
	var out []platform.Message
	for _, m := range f.Messages {
		if m.ChannelID == channelID && m.Pinned {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) PinMessage(_ context.Context, ref platform.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("PinMessage"); err != nil {
		return err
	}
	m, ok := f.Messages[ref.MessageID]
	if !ok {
		return fmt.Errorf("unknown message %s", ref.MessageID)
	}
	m.Pinned = true
	return nil
}

func (f *Fake) Respond(_ context.Context, in platform.Interaction, resp platform.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("Respond"); err != nil {
		return err
	}
	f.Responses = append(f.Responses, Reply{Interaction: in, Response: resp})
	if resp.Kind == platform.UpdateMessage && resp.Message != nil {
		if m, ok := f.Messages[in.MessageID]; ok {
			m.Content = resp.Message.Content
			m.Embeds = resp.Message.Embeds
		}
	}
	return nil
}

func (f *Fake) FollowUp(_ context.Context, _ platform.Interaction, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FollowUp"); err != nil {
		return err
	}
	f.FollowUps = append(f.FollowUps, content)
	return nil
}

func (f *Fake) StartThread(_ context.Context, channelID, name string) (*platform.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("StartThread"); err != nil {
		return nil, err
	}
	th := &platform.Thread{ID: f.nextID(), ParentID: channelID, Name: name}
	f.Threads[th.ID] = th
	cp := *th
	return &cp, nil
}

func (f *Fake) CloseThread(_ context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CloseThread"); err != nil {
		return err
	}
	th, ok := f.Threads[threadID]
	if !ok {
		return fmt.Errorf("unknown thread %s", threadID)
	}
	th.Archived = true
	th.Locked = true
	return nil
}

func (f *Fake) ActiveThreads(_ context.Context, _ string) ([]platform.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ActiveThreads"); err != nil {
		return nil, err
	}
	var out []platform.Thread
	for _, th := range f.Threads {
		if !th.Archived {
			out = append(out, *th)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) CreateScheduledEvent(_ context.Context, _ string, ev platform.ScheduledEvent) (*platform.ScheduledEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateScheduledEvent"); err != nil {
		return nil, err
	}
	ev.ID = f.nextID()
	f.Events[ev.ID] = &ev
	cp := ev
	return &cp, nil
}

func (f *Fake) EditScheduledEvent(_ context.Context, _ string, ev platform.ScheduledEvent) (*platform.ScheduledEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("EditScheduledEvent"); err != nil {
		return nil, err
	}
	if _, ok := f.Events[ev.ID]; !ok {
		return nil, fmt.Errorf("unknown event %s", ev.ID)
	}
	f.Events[ev.ID] = &ev
	cp := ev
	return &cp, nil
}

func (f *Fake) DeleteScheduledEvent(_ context.Context, _, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteScheduledEvent"); err != nil {
		return err
	}
	delete(f.Events, eventID)
	return nil
}

func (f *Fake) ScheduledEvents(_ context.Context, _ string) ([]platform.ScheduledEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ScheduledEvents"); err != nil {
		return nil, err
	}
	var out []platform.ScheduledEvent
	for _, e := range f.Events {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) ResolveChannel(_ context.Context, _, nameOrID string) (*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ResolveChannel"); err != nil {
		return nil, err
	}
	if ch, ok := f.Channels[nameOrID]; ok {
		return &ch, nil
	}
	for _, ch := range f.Channels {
		if ch.Name == nameOrID {
			cp := ch
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("no channel %q", nameOrID)
}

var _ platform.Platform = (*Fake)(nil)
