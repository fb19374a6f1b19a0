// Package maintenance runs the periodic ticks over committed events:
// recurrence catch-up, reminders, stale-thread closure and the session
// sweep. Every tick re-reads the events from their pinned state messages.
package maintenance

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"gatherbot/internal/apperr"
	"gatherbot/internal/codec"
	"gatherbot/internal/editor"
	"gatherbot/internal/ics"
	appLog "gatherbot/internal/log"
	"gatherbot/internal/model"
	"gatherbot/internal/platform"
	"gatherbot/internal/recurrence"
	"gatherbot/internal/session"
	"gatherbot/internal/temporal"
)

const (
	DefaultAnnounceLead = 15 * time.Minute
	DefaultStaleAfter   = 24 * time.Hour
	DefaultCallInterval = time.Second

	announcedSize = 4096
)

// Guild is one guild's view for maintenance.
type Guild struct {
	ID         string
	EventTypes []model.EventType
	Codec      codec.Codec
	Resolver   *temporal.Resolver
	Editor     *editor.Machine
	BotID      string
}

type Config struct {
	AnnounceLead time.Duration
	StaleAfter   time.Duration
	// CallInterval spaces consecutive platform calls.
	CallInterval time.Duration
}

// Report counts what one tick did.
type Report struct {
	Scanned   int
	Advanced  int
	Announced int
	Closed    int
	Swept     int
	Skipped   int
}

// Runner holds the state shared by the ticks.
type Runner struct {
	cfg      Config
	plat     platform.Platform
	guilds   []Guild
	sessions *session.Store
	catalog  *ics.Catalog
	limiter  *rate.Limiter
	now      func() time.Time

	// announced remembers "<event id>@<start>" keys already reminded.
	announced *lru.Cache[string, struct{}]

	// one tick of each kind at a time
	mu sync.Mutex
}

type Option func(*Runner)

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func NewRunner(cfg Config, plat platform.Platform, guilds []Guild, sessions *session.Store, catalog *ics.Catalog, opts ...Option) (*Runner, error) {
	if cfg.AnnounceLead <= 0 {
		cfg.AnnounceLead = DefaultAnnounceLead
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.CallInterval <= 0 {
		cfg.CallInterval = DefaultCallInterval
	}
	announced, err := lru.New[string, struct{}](announcedSize)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:       cfg,
		plat:      plat,
		guilds:    guilds,
		sessions:  sessions,
		catalog:   catalog,
		limiter:   rate.NewLimiter(rate.Every(cfg.CallInterval), 1),
		now:       time.Now,
		announced: announced,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// tracked is one committed event found during a scan.
type tracked struct {
	thread platform.Thread
	draft  *model.EventDraft
}

// scan lists the guild's committed events from the pinned state messages of
// its active event threads. Threads whose state message does not parse are
// logged and skipped.
func (r *Runner) scan(ctx context.Context, g Guild, rep *Report) ([]tracked, error) {
	parents := make(map[string]bool, len(g.EventTypes))
	for _, et := range g.EventTypes {
		parents[et.ChannelID] = true
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	threads, err := r.plat.ActiveThreads(ctx, g.ID)
	if err != nil {
		return nil, apperr.External("list active threads", err)
	}

	var out []tracked
	for _, th := range threads {
		if !parents[th.ParentID] || th.Archived {
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return out, err
		}
		pinned, err := r.plat.PinnedMessages(ctx, th.ID)
		if err != nil {
			appLog.Error("maintenance: list pins failed", err, "guild", g.ID, "thread", th.ID)
			rep.Skipped++
			continue
		}
		d, err := codec.FindState(g.Codec, pinned, g.BotID)
		if err != nil {
			if apperr.IsParse(err) {
				appLog.Warn("maintenance: unreadable state message", "guild", g.ID, "thread", th.ID, "err", err)
			} else {
				appLog.Error("maintenance: decode failed", err, "guild", g.ID, "thread", th.ID)
			}
			rep.Skipped++
			continue
		}
		if d.GuildID == "" {
			d.GuildID = g.ID
		}
		out = append(out, tracked{thread: th, draft: d})
	}
	rep.Scanned += len(out)
	return out, nil
}

// CatchUp advances every recurring event whose scheduled event is over or
// gone: the recurrence steps forward, a new scheduled event is created and
// the state message is rewritten in place. The decoded events also refresh
// the feed catalog.
func (r *Runner) CatchUp(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rep Report
	for _, g := range r.guilds {
		evs, err := r.scan(ctx, g, &rep)
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			appLog.Error("maintenance: scan failed", err, "guild", g.ID)
			continue
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return rep, err
		}
		list, err := r.plat.ScheduledEvents(ctx, g.ID)
		if err != nil {
			appLog.Error("maintenance: list scheduled events failed", err, "guild", g.ID)
			continue
		}
		live := make(map[string]platform.ScheduledEvent, len(list))
		for _, ev := range list {
			live[ev.ID] = ev
		}

		now := r.now()
		drafts := make([]*model.EventDraft, 0, len(evs))
		for _, t := range evs {
			d := t.draft
			if d.Recurrence != nil && due(d, live, now) {
				next, err := r.advance(ctx, g, d, live, now)
				switch {
				case err != nil:
					appLog.Error("maintenance: catch-up failed", err, "guild", g.ID, "event", d.ID)
					rep.Skipped++
				case next == nil:
					rep.Skipped++
				default:
					d = next
					rep.Advanced++
				}
			}
			drafts = append(drafts, d)
		}
		if r.catalog != nil {
			r.catalog.Update(g.ID, drafts, now)
		}
	}
	appLog.Info("maintenance: catch-up", "scanned", rep.Scanned, "advanced", rep.Advanced, "skipped", rep.Skipped)
	return rep, nil
}

// due reports whether the scheduled event behind d has ended, completed,
// been cancelled or disappeared.
func due(d *model.EventDraft, live map[string]platform.ScheduledEvent, now time.Time) bool {
	ev, ok := live[d.ScheduledEventID]
	if !ok {
		return true
	}
	switch ev.Status {
	case platform.EventCompleted, platform.EventCanceled:
		return true
	}
	end := ev.End
	if end.IsZero() {
		end = d.End()
	}
	return !now.Before(end)
}

// advance returns the rewritten draft, or nil when the event is busy.
func (r *Runner) advance(ctx context.Context, g Guild, d *model.EventDraft, live map[string]platform.ScheduledEvent, now time.Time) (*model.EventDraft, error) {
	if g.Editor != nil {
		unlock, ok := g.Editor.TryLockEvent(d.MessageID)
		if !ok {
			appLog.Debug("maintenance: event busy, retrying next tick", "event", d.ID)
			return nil, nil
		}
		defer unlock()
	}

	next := d.Clone()
	s, err := recurrence.CatchUp(next.Recurrence, next.DurationHours, now)
	if err != nil {
		return nil, err
	}
	next.Start = s.Start

	ev := platform.EventFromDraft(next)
	ev.ID = ""
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	created, err := r.plat.CreateScheduledEvent(ctx, g.ID, ev)
	if err != nil {
		return nil, apperr.External("create scheduled event", err)
	}
	old := d.ScheduledEventID
	next.ScheduledEventID = created.ID

	msg, err := editor.StateMessage(g.Codec, next)
	if err == nil {
		if err = r.limiter.Wait(ctx); err == nil {
			_, err = r.plat.EditMessage(ctx, platform.MessageRef{ChannelID: next.ThreadID, MessageID: next.MessageID}, msg)
		}
	}
	if err != nil {
		// The state message still points at the old event; drop the new one.
		if derr := r.plat.DeleteScheduledEvent(ctx, g.ID, created.ID); derr != nil {
			appLog.Error("maintenance: rollback failed", derr, "event", next.ID, "scheduled_event", created.ID)
		}
		return nil, apperr.External("rewrite state message", err)
	}

	if _, ok := live[old]; ok {
		if err := r.plat.DeleteScheduledEvent(ctx, g.ID, old); err != nil {
			appLog.Warn("maintenance: old scheduled event not deleted", "event", next.ID, "scheduled_event", old, "err", err)
		}
	}
	appLog.Info("maintenance: advanced recurring event",
		"event", next.ID,
		"start", next.Start.UTC().Format(time.RFC3339),
		"times_held", next.Recurrence.TimesHeld,
	)
	return next, nil
}

// Announce posts one reminder per occurrence into the thread of every event
// starting within the announce lead.
func (r *Runner) Announce(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rep Report
	for _, g := range r.guilds {
		evs, err := r.scan(ctx, g, &rep)
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			appLog.Error("maintenance: scan failed", err, "guild", g.ID)
			continue
		}
		now := r.now()
		for _, t := range evs {
			d := t.draft
			if !d.Start.After(now) || d.Start.Sub(now) > r.cfg.AnnounceLead {
				continue
			}
			key := d.ID + "@" + d.Start.UTC().Format(time.RFC3339)
			if r.announced.Contains(key) {
				continue
			}
			if err := r.limiter.Wait(ctx); err != nil {
				return rep, err
			}
			content := reminder(g.Resolver, d)
			if _, err := r.plat.SendMessage(ctx, t.thread.ID, platform.OutgoingMessage{Content: content}); err != nil {
				appLog.Error("maintenance: reminder failed", err, "event", d.ID, "thread", t.thread.ID)
				rep.Skipped++
				continue
			}
			r.announced.Add(key, struct{}{})
			rep.Announced++
		}
	}
	if rep.Announced > 0 {
		appLog.Info("maintenance: reminders sent", "count", rep.Announced)
	}
	return rep, nil
}

func reminder(res *temporal.Resolver, d *model.EventDraft) string {
	when := d.Start.UTC().Format(temporal.Layout) + " UTC"
	if res != nil {
		if s, err := res.Format(d.Start); err == nil {
			when = s
		}
	}
	var b strings.Builder
	b.WriteString("Reminder: **" + d.Name + "** starts " + when + ".")
	if d.Attendees.Len() > 0 {
		b.WriteString("\n")
		for i, id := range d.Attendees.Sorted() {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString("<@" + id + ">")
		}
	}
	return b.String()
}

// CloseStale archives and locks the threads of one-off events that ended
// more than StaleAfter ago.
func (r *Runner) CloseStale(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rep Report
	for _, g := range r.guilds {
		evs, err := r.scan(ctx, g, &rep)
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			appLog.Error("maintenance: scan failed", err, "guild", g.ID)
			continue
		}
		now := r.now()
		for _, t := range evs {
			d := t.draft
			if d.Recurrence != nil || now.Sub(d.End()) <= r.cfg.StaleAfter {
				continue
			}
			if err := r.limiter.Wait(ctx); err != nil {
				return rep, err
			}
			if err := r.plat.CloseThread(ctx, t.thread.ID); err != nil {
				appLog.Error("maintenance: close thread failed", err, "event", d.ID, "thread", t.thread.ID)
				rep.Skipped++
				continue
			}
			rep.Closed++
			appLog.Info("maintenance: closed stale thread", "event", d.ID, "thread", t.thread.ID)
		}
	}
	return rep, nil
}

// Sweep evicts idle drafts and forgets panels that no longer hold one.
func (r *Runner) Sweep(_ context.Context) (Report, error) {
	var rep Report
	if r.sessions != nil {
		rep.Swept = len(r.sessions.Sweep(r.now()))
	}
	for _, g := range r.guilds {
		if g.Editor != nil {
			g.Editor.Prune()
		}
	}
	if rep.Swept > 0 {
		appLog.Info("maintenance: swept idle drafts", "count", rep.Swept)
	}
	return rep, nil
}
