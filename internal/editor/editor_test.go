package editor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatherbot/internal/codec"
	"gatherbot/internal/collector"
	"gatherbot/internal/model"
	"gatherbot/internal/platform"
	"gatherbot/internal/platform/platformtest"
	"gatherbot/internal/session"
	"gatherbot/internal/temporal"
)

type fixture struct {
	m          *Machine
	fake       *platformtest.Fake
	sessions   *session.Store
	collectors *collector.Registry
	codec      *codec.TextCodec
	now        time.Time
}

func pacific(t *testing.T) *temporal.Resolver {
	t.Helper()
	pdt, err := temporal.ParseWindow("03-10 10:00", "11-03 09:00")
	require.NoError(t, err)
	pst, err := temporal.ParseWindow("11-03 09:00", "03-10 10:00")
	require.NoError(t, err)
	r, err := temporal.NewResolver(temporal.RuleSet{
		{Name: "PDT", Offset: -7, Window: pdt},
		{Name: "PST", Offset: -8, Window: pst},
	}, 64)
	require.NoError(t, err)
	return r
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		fake:       platformtest.New(),
		sessions:   session.NewStore(time.Hour),
		collectors: collector.NewRegistry(),
		now:        time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
	}
	f.fake.AddChannel(platform.Channel{ID: "600", Name: "lounge", Kind: model.KindVoice})
	f.fake.AddChannel(platform.Channel{ID: "601", Name: "general", Kind: model.KindExternal})

	r := pacific(t)
	f.codec = codec.New(r)
	m, err := New(Config{
		GuildID: "100",
		EventTypes: []model.EventType{
			{Name: "games", ChannelID: "500", Kind: model.KindExternal},
			{Name: "voice", ChannelID: "501", Kind: model.KindVoice},
		},
		EditingTimeout: timeout,
		ImageTimeout:   time.Second,
		BotID:          "bot",
	}, f.fake, f.codec, r, f.sessions, f.collectors, WithClock(func() time.Time { return f.now }))
	require.NoError(t, err)
	f.m = m
	return f
}

func command(user, typeName string) platform.Interaction {
	return platform.Interaction{
		ID:          "cmd",
		Kind:        platform.CommandInteraction,
		GuildID:     "100",
		ChannelID:   "c1",
		UserID:      user,
		Username:    "Alice",
		CommandName: "event",
		Options:     map[string]string{"type": typeName},
	}
}

func (f *fixture) panel(t *testing.T, author string) *panel {
	t.Helper()
	d, ok := f.sessions.Peek(author)
	require.True(t, ok, "no draft for %s", author)
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	p, ok := f.m.panels[d.ID]
	require.True(t, ok, "no panel for %s", d.ID)
	return p
}

func (f *fixture) draft(p *panel) *model.EventDraft {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	return p.draft
}

func button(p *panel, user, id string) platform.Interaction {
	return platform.Interaction{
		ID:        "btn-" + id,
		Kind:      platform.ButtonInteraction,
		GuildID:   "100",
		ChannelID: p.ref.ChannelID,
		MessageID: p.ref.MessageID,
		UserID:    user,
		CustomID:  id,
	}
}

func submit(p *panel, user, page string, values map[string]string) platform.Interaction {
	in := button(p, user, page)
	in.Kind = platform.ModalSubmitInteraction
	in.Values = values
	return in
}

func lastReply(t *testing.T, f *fixture) platform.Response {
	t.Helper()
	r, ok := f.fake.LastReply()
	require.True(t, ok)
	return r.Response
}

// fill completes a games draft through the pages.
func (f *fixture) fill(t *testing.T, p *panel) {
	t.Helper()
	ctx := context.Background()
	f.m.handle(ctx, p, submit(p, "42", pageDetails, map[string]string{
		inName: "Board Game Night", inDescription: "Bring snacks.", inLocation: "Community Hall",
	}))
	f.m.handle(ctx, p, submit(p, "42", pageSchedule, map[string]string{
		inStart: "01/20/24 06:00 PM", inDuration: "3",
	}))
	d := f.draft(p)
	require.Equal(t, "Board Game Night", d.Name)
	require.False(t, d.Start.IsZero())
}

func (f *fixture) thread(t *testing.T) platform.Thread {
	t.Helper()
	require.Len(t, f.fake.Threads, 1)
	for _, th := range f.fake.Threads {
		return *th
	}
	return platform.Thread{}
}

func TestStartOpensPanel(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "games"))

	p := f.panel(t, "42")
	assert.True(t, f.collectors.Active(p.ref.MessageID))
	msg, ok := f.fake.Message(p.ref.MessageID)
	require.True(t, ok)
	assert.Equal(t, "Editing **Untitled event**", msg.Content)
	assert.Equal(t, model.ExternalVenue{}, f.draft(p).Venue)

	st, ok := f.m.State(f.draft(p).ID)
	require.True(t, ok)
	assert.Equal(t, Drafting, st)
}

func TestStartUnknownType(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "chess"))

	assert.Equal(t, 0, f.sessions.Len())
	assert.Contains(t, lastReply(t, f).Content, "games, voice")
}

func TestStartTwiceKeepsOneCollector(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	f.m.Start(ctx, command("42", "games"))
	first := f.panel(t, "42").ref
	f.m.Start(ctx, command("42", ""))

	assert.Equal(t, first, f.panel(t, "42").ref, "panel message reused")
	assert.Equal(t, 1, f.collectors.Len())
	assert.Equal(t, 1, f.fake.Called("SendMessage"))
	assert.Equal(t, 1, f.fake.Called("EditMessage"))
}

func TestDispatchThroughRegistry(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "games"))
	p := f.panel(t, "42")

	f.m.HandleInteraction(context.Background(), button(p, "42", btnDetails))
	require.Eventually(t, func() bool {
		st, _ := f.m.State(f.draft(p).ID)
		return st == AwaitingModalSubmit
	}, time.Second, 5*time.Millisecond)

	r := lastReply(t, f)
	require.Equal(t, platform.ShowModal, r.Kind)
	assert.Equal(t, pageDetails, r.Modal.ID)
	assert.Equal(t, inLocation, r.Modal.Inputs[2].ID)
}

func TestInactivePanel(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.HandleInteraction(context.Background(), platform.Interaction{
		Kind: platform.ButtonInteraction, MessageID: "gone", CustomID: btnSave, UserID: "42",
	})
	assert.Contains(t, lastReply(t, f).Content, "no longer active")
}

func TestOtherUserRejected(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "games"))
	p := f.panel(t, "42")

	f.m.handle(context.Background(), p, button(p, "7", btnCancel))
	assert.Contains(t, lastReply(t, f).Content, "someone else")
	st, _ := f.m.State(f.draft(p).ID)
	assert.Equal(t, Drafting, st)
}

func TestPageIsAllOrNothing(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "games"))
	p := f.panel(t, "42")

	f.m.handle(context.Background(), p, submit(p, "42", pageDetails, map[string]string{
		inName: "Board Game Night", inLocation: "",
	}))
	r := lastReply(t, f)
	assert.Equal(t, platform.ReplyEphemeral, r.Kind)
	assert.Contains(t, r.Content, "location")

	saved, _ := f.sessions.Peek("42")
	assert.Empty(t, saved.Name, "name must not be committed when location fails")
	assert.Empty(t, f.draft(p).Name)
	st, _ := f.m.State(saved.ID)
	assert.Equal(t, Drafting, st)
}

func TestDetailsResolvesChannel(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "voice"))
	p := f.panel(t, "42")

	f.m.handle(context.Background(), p, submit(p, "42", pageDetails, map[string]string{
		inName: "Listening party", inChannel: "#general",
	}))
	assert.Contains(t, lastReply(t, f).Content, "not a voice or stage channel")

	f.m.handle(context.Background(), p, submit(p, "42", pageDetails, map[string]string{
		inName: "Listening party", inChannel: "lounge",
	}))
	assert.Equal(t, platform.UpdateMessage, lastReply(t, f).Kind)
	assert.Equal(t, model.VoiceVenue{ChannelID: "600"}, f.draft(p).Venue)
}

func TestSchedulePage(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "games"))
	p := f.panel(t, "42")
	ctx := context.Background()

	f.m.handle(ctx, p, submit(p, "42", pageSchedule, map[string]string{inStart: "20/01/24 6pm", inDuration: "3"}))
	assert.Equal(t, "Invalid date format.", lastReply(t, f).Content)

	f.m.handle(ctx, p, submit(p, "42", pageSchedule, map[string]string{inStart: "01/20/24 06:00 PM", inDuration: "0"}))
	assert.Contains(t, lastReply(t, f).Content, "1 to 72")

	f.m.handle(ctx, p, submit(p, "42", pageSchedule, map[string]string{inStart: "01/20/24 06:00 PM", inDuration: "3", inCapacity: "8"}))
	d := f.draft(p)
	assert.True(t, d.Start.Equal(time.Date(2024, 1, 21, 2, 0, 0, 0, time.UTC)))
	assert.Equal(t, 3, d.DurationHours)
	assert.Equal(t, 8, d.Capacity)
}

func TestRecurrencePage(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "games"))
	p := f.panel(t, "42")
	ctx := context.Background()

	f.m.handle(ctx, p, submit(p, "42", pageRecurrence, map[string]string{inEvery: "2", inUnit: "weeks"}))
	assert.Contains(t, lastReply(t, f).Content, "start time")

	f.fill(t, p)
	f.m.handle(ctx, p, submit(p, "42", pageRecurrence, map[string]string{inEvery: "0", inUnit: "weeks"}))
	assert.Nil(t, f.draft(p).Recurrence)

	f.m.handle(ctx, p, submit(p, "42", pageRecurrence, map[string]string{inEvery: "2", inUnit: "Week"}))
	rec := f.draft(p).Recurrence
	require.NotNil(t, rec)
	assert.Equal(t, model.Interval{Unit: model.UnitWeeks, Every: 2}, rec.Interval)
	assert.True(t, rec.FirstStart.Equal(f.draft(p).Start))

	f.m.handle(ctx, p, submit(p, "42", pageRecurrence, map[string]string{inEvery: ""}))
	assert.Nil(t, f.draft(p).Recurrence)
}

func TestFinishCommitsOnce(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	f.m.Start(ctx, command("42", "games"))
	p := f.panel(t, "42")
	f.fill(t, p)
	id := f.draft(p).ID

	var transitions []State
	f.m.OnTransition = func(_ string, _, to State) { transitions = append(transitions, to) }

	f.m.handle(ctx, p, button(p, "42", btnFinish))
	f.m.handle(ctx, p, button(p, "42", btnFinish))

	assert.Equal(t, 1, f.fake.Called("CreateScheduledEvent"))
	assert.Equal(t, 1, f.fake.Called("StartThread"))
	assert.Equal(t, 1, f.fake.Called("PinMessage"))
	assert.Equal(t, []State{Finished}, transitions)
	assert.Equal(t, 0, f.sessions.Len())
	assert.Eventually(t, func() bool { return !f.collectors.Active(p.ref.MessageID) }, time.Second, 5*time.Millisecond)
	_, ok := f.m.State(id)
	assert.False(t, ok)

	th := f.thread(t)
	assert.Equal(t, "500", th.ParentID)
	assert.Equal(t, "Board Game Night", th.Name)

	pinned, err := f.fake.PinnedMessages(ctx, th.ID)
	require.NoError(t, err)
	d, err := codec.FindState(f.codec, pinned, "bot")
	require.NoError(t, err)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, th.ID, d.ThreadID)
	assert.NotEmpty(t, d.ScheduledEventID)
	assert.Equal(t, "01/20/24 06:00 PM PST - Board Game Night hosted by Alice", pinned[0].Embeds[0].Title)

	ev, ok := f.fake.Event(d.ScheduledEventID)
	require.True(t, ok)
	assert.Equal(t, "Community Hall", ev.Location)
	assert.True(t, ev.End.Equal(ev.Start.Add(3*time.Hour)))
}

func TestFinishRequiresLead(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	f.m.Start(ctx, command("42", "games"))
	p := f.panel(t, "42")
	f.fill(t, p)

	f.now = f.draft(p).Start.Add(-10 * time.Minute)
	f.m.handle(ctx, p, button(p, "42", btnFinish))
	assert.Contains(t, lastReply(t, f).Content, "30 minutes")
	assert.Equal(t, 0, f.fake.Called("CreateScheduledEvent"))

	admin := button(p, "42", btnFinish)
	admin.Privileged = true
	f.m.handle(ctx, p, admin)
	assert.Equal(t, 1, f.fake.Called("CreateScheduledEvent"))
}

func TestFinishIncomplete(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "games"))
	p := f.panel(t, "42")

	f.m.handle(context.Background(), p, button(p, "42", btnFinish))
	assert.Contains(t, lastReply(t, f).Content, "name")
	st, _ := f.m.State(f.draft(p).ID)
	assert.Equal(t, Drafting, st)
}

func TestCommitFailureKeepsDraft(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	f.m.Start(ctx, command("42", "games"))
	p := f.panel(t, "42")
	f.fill(t, p)
	f.fake.Fail["StartThread"] = true

	f.m.handle(ctx, p, button(p, "42", btnFinish))

	saved, ok := f.sessions.Peek("42")
	require.True(t, ok)
	assert.Equal(t, "Board Game Night", saved.Name)
	assert.Empty(t, saved.ScheduledEventID)
	assert.Empty(t, f.fake.Events, "scheduled event rolled back")
	require.Len(t, f.fake.FollowUps, 1)
	assert.NotContains(t, f.fake.FollowUps[0], "injected")

	// Retry after the platform recovers.
	f.fake.Fail["StartThread"] = false
	f.m.Start(ctx, command("42", ""))
	p = f.panel(t, "42")
	f.m.handle(ctx, p, button(p, "42", btnFinish))
	assert.Len(t, f.fake.Events, 1)
	assert.Equal(t, 0, f.sessions.Len())
}

func (f *fixture) publish(t *testing.T) (platform.Thread, platform.Message) {
	t.Helper()
	ctx := context.Background()
	f.m.Start(ctx, command("42", "games"))
	p := f.panel(t, "42")
	f.fill(t, p)
	f.m.handle(ctx, p, button(p, "42", btnFinish))
	th := f.thread(t)
	pinned, err := f.fake.PinnedMessages(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	return th, pinned[0]
}

func stateButton(th platform.Thread, msg platform.Message, user, id string) platform.Interaction {
	return platform.Interaction{
		Kind:      platform.ButtonInteraction,
		GuildID:   "100",
		ChannelID: th.ID,
		MessageID: msg.ID,
		UserID:    user,
		CustomID:  id,
	}
}

func TestJoinAndLeave(t *testing.T) {
	f := newFixture(t, time.Minute)
	th, state := f.publish(t)
	ctx := context.Background()

	f.m.HandleInteraction(ctx, stateButton(th, state, "7", BtnJoin))
	f.m.HandleInteraction(ctx, stateButton(th, state, "8", BtnJoin))
	f.m.HandleInteraction(ctx, stateButton(th, state, "8", BtnJoin))
	assert.Equal(t, "You already joined.", lastReply(t, f).Content)

	msg, _ := f.fake.Message(state.ID)
	assert.Equal(t, state.Embeds[0], msg.Embeds[0], "event block passed through verbatim")
	assert.Equal(t, "Attendees (2)", msg.Embeds[1].Title)

	f.m.HandleInteraction(ctx, stateButton(th, state, "7", BtnLeave))
	msg, _ = f.fake.Message(state.ID)
	assert.Equal(t, "<@8>", msg.Embeds[1].Description)

	f.m.HandleInteraction(ctx, stateButton(th, state, "7", BtnLeave))
	assert.Equal(t, "You are not on the list.", lastReply(t, f).Content)
}

func TestJoinRespectsCap(t *testing.T) {
	f := newFixture(t, time.Minute)
	th, state := f.publish(t)
	ctx := context.Background()

	f.fake.Messages[state.ID].Embeds[1] = f.codec.EncodeAttendance(model.NewAttendeeSet("7"), 1)
	f.m.HandleInteraction(ctx, stateButton(th, state, "8", BtnJoin))
	assert.Equal(t, "This event is full.", lastReply(t, f).Content)
}

func TestEditAndCancelPublishedEvent(t *testing.T) {
	f := newFixture(t, time.Minute)
	th, state := f.publish(t)
	ctx := context.Background()

	f.m.HandleInteraction(ctx, stateButton(th, state, "7", BtnEdit))
	assert.Equal(t, "Only the host can edit this event.", lastReply(t, f).Content)

	f.m.HandleInteraction(ctx, stateButton(th, state, "42", BtnEdit))
	p := f.panel(t, "42")
	assert.Equal(t, th.ID, p.ref.ChannelID)
	d := f.draft(p)
	assert.True(t, d.Committed())

	f.m.handle(ctx, p, button(p, "42", btnCancel))
	assert.Empty(t, f.fake.Events)
	closed, _ := f.fake.Thread(th.ID)
	assert.True(t, closed.Archived)
	assert.True(t, closed.Locked)
	assert.Equal(t, 0, f.sessions.Len())
}

func TestUpdatePublishedEventKeepsAttendance(t *testing.T) {
	f := newFixture(t, time.Minute)
	th, state := f.publish(t)
	ctx := context.Background()

	f.m.HandleInteraction(ctx, stateButton(th, state, "42", BtnEdit))
	p := f.panel(t, "42")
	f.m.HandleInteraction(ctx, stateButton(th, state, "7", BtnJoin))

	f.m.handle(ctx, p, submit(p, "42", pageDetails, map[string]string{inName: "Board Game Night II", inLocation: "Library"}))
	f.m.handle(ctx, p, button(p, "42", btnFinish))

	assert.Equal(t, 1, f.fake.Called("CreateScheduledEvent"))
	assert.Equal(t, 1, f.fake.Called("EditScheduledEvent"))
	msg, _ := f.fake.Message(state.ID)
	assert.True(t, strings.Contains(msg.Embeds[0].Title, "Board Game Night II"))
	assert.Equal(t, "Attendees (1)", msg.Embeds[1].Title)
}

func TestTimeoutLocksPanel(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	f.m.Start(context.Background(), command("42", "games"))
	p := f.panel(t, "42")
	id := f.draft(p).ID

	require.Eventually(t, func() bool {
		st, _ := f.m.State(id)
		return st == TimedOut
	}, time.Second, 5*time.Millisecond)

	_, ok := f.sessions.Peek("42")
	assert.True(t, ok)
	require.Eventually(t, func() bool {
		msg, _ := f.fake.Message(p.ref.MessageID)
		return strings.Contains(msg.Content, "timed out")
	}, time.Second, 5*time.Millisecond)

	// Resuming reuses the same panel.
	f.m.Start(context.Background(), command("42", ""))
	assert.Equal(t, p.ref, f.panel(t, "42").ref)
	assert.Equal(t, 1, f.fake.Called("SendMessage"))
}

func TestImageSubFlow(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "games"))
	p := f.panel(t, "42")

	done := make(chan struct{})
	go func() {
		f.m.handle(context.Background(), p, button(p, "42", btnImage))
		close(done)
	}()
	require.Eventually(t, func() bool {
		return f.m.HandleMessage(platform.Message{
			ChannelID: p.ref.ChannelID, AuthorID: "42", Attachments: []string{"https://cdn.example/poster.png"},
		})
	}, time.Second, 5*time.Millisecond)
	<-done

	assert.Equal(t, "https://cdn.example/poster.png", f.draft(p).ImageURL)
	saved, _ := f.sessions.Peek("42")
	assert.Equal(t, "https://cdn.example/poster.png", saved.ImageURL)
}

func TestImageTimeoutKeepsDraft(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "games"))
	p := f.panel(t, "42")
	f.fill(t, p)
	before := f.draft(p)

	f.m.handle(context.Background(), p, button(p, "42", btnImage))
	assert.Equal(t, before, f.draft(p))
	require.NotEmpty(t, f.fake.FollowUps)
	assert.Contains(t, f.fake.FollowUps[len(f.fake.FollowUps)-1], "No image")
}

func TestSaveKeepsSession(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "games"))
	p := f.panel(t, "42")

	f.m.handle(context.Background(), p, button(p, "42", btnSave))
	assert.Equal(t, 1, f.sessions.Len())
	assert.Eventually(t, func() bool { return !f.collectors.Active(p.ref.MessageID) }, time.Second, 5*time.Millisecond)
	st, _ := f.m.State(f.draft(p).ID)
	assert.Equal(t, Saved, st)
}

func TestBusyDraftRejected(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "games"))
	p := f.panel(t, "42")

	unlock, ok := f.m.tryLock(lockKey(f.draft(p)))
	require.True(t, ok)
	f.m.handle(context.Background(), p, button(p, "42", btnSave))
	unlock()

	assert.Contains(t, lastReply(t, f).Content, "Still working")
	st, _ := f.m.State(f.draft(p).ID)
	assert.Equal(t, Drafting, st)
}

func TestPrune(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.m.Start(context.Background(), command("42", "games"))
	p := f.panel(t, "42")
	f.m.handle(context.Background(), p, button(p, "42", btnSave))

	assert.Equal(t, 0, f.m.Prune())
	f.sessions.Delete("42")
	assert.Equal(t, 1, f.m.Prune())
}

func TestNewRequiresCatalog(t *testing.T) {
	_, err := New(Config{GuildID: "1"}, platformtest.New(), nil, nil, session.NewStore(0), collector.NewRegistry())
	require.Error(t, err)
}

func TestAdminEditKeepsAuthorDraft(t *testing.T) {
	f := newFixture(t, time.Minute)
	th, state := f.publish(t)
	ctx := context.Background()

	f.m.Start(ctx, command("42", "games"))
	own, ok := f.sessions.Peek("42")
	require.True(t, ok)

	edit := stateButton(th, state, "7", BtnEdit)
	edit.Privileged = true
	f.m.HandleInteraction(ctx, edit)

	published, err := codec.DecodeMessage(f.codec, state)
	require.NoError(t, err)
	f.m.mu.Lock()
	p, ok := f.m.panels[published.ID]
	f.m.mu.Unlock()
	require.True(t, ok, "panel opened for the published event")
	kept, _ := f.sessions.Peek("42")
	assert.Equal(t, own.ID, kept.ID)

	f.m.handle(ctx, p, submit(p, "7", pageDetails, map[string]string{inName: "Board Game Night II", inLocation: "Library"}))
	kept, _ = f.sessions.Peek("42")
	assert.Equal(t, own.ID, kept.ID)

	f.m.handle(ctx, p, button(p, "7", btnFinish))
	assert.Equal(t, 1, f.fake.Called("EditScheduledEvent"))
	kept, ok = f.sessions.Peek("42")
	require.True(t, ok, "author's draft survives the finish")
	assert.Equal(t, own.ID, kept.ID)
	assert.Empty(t, kept.Name)
}

func TestStartAgainEndsImageWait(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	f.m.Start(ctx, command("42", "games"))
	p := f.panel(t, "42")

	f.m.HandleInteraction(ctx, button(p, "42", btnImage))
	require.Eventually(t, func() bool {
		r, ok := f.fake.LastReply()
		return ok && strings.Contains(r.Response.Content, "Send an image")
	}, time.Second, 5*time.Millisecond)

	start := time.Now()
	f.m.Start(ctx, command("42", ""))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Contains(t, lastReply(t, f).Content, "Editing")
	assert.Equal(t, 1, f.collectors.Len())
	assert.Empty(t, f.fake.FollowUps, "a stopped wait reports nothing")
}
