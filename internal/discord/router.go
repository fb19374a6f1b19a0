package discord

import (
	"context"
	"time"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/gateway"
	"github.com/diamondburned/arikawa/v3/state"

	"gatherbot/internal/apperr"
	appLog "gatherbot/internal/log"
	"gatherbot/internal/model"
	"gatherbot/internal/platform"
)

// CommandName is the slash command that opens the editor.
const CommandName = "event"

// maxChoices is the platform's limit on choices per command option.
const maxChoices = 25

// handleTimeout bounds the work done for one gateway event.
const handleTimeout = 30 * time.Second

// Handler is the per-guild consumer of gateway traffic. *editor.Machine
// satisfies it.
type Handler interface {
	HandleInteraction(ctx context.Context, in platform.Interaction)
	HandleMessage(msg platform.Message) bool
}

// Route binds one guild to its handler.
type Route struct {
	GuildID    string
	Handler    Handler
	AdminRoles []string
	EventTypes []model.EventType
}

type route struct {
	Route
	admin map[discord.RoleID]struct{}
}

// isAdmin reports whether any of roles is configured as an admin role.
func (r *route) isAdmin(roles []discord.RoleID) bool {
	for _, id := range roles {
		if _, ok := r.admin[id]; ok {
			return true
		}
	}
	return false
}

// Router dispatches interactions and messages to the guild they came from.
type Router struct {
	s      *state.State
	appID  discord.AppID
	routes map[discord.GuildID]*route
	now    func() time.Time
}

func NewRouter(s *state.State, appID discord.AppID, routes []Route) (*Router, error) {
	r := &Router{
		s:      s,
		appID:  appID,
		routes: make(map[discord.GuildID]*route, len(routes)),
		now:    time.Now,
	}
	for _, rt := range routes {
		g, err := guildID(rt.GuildID)
		if err != nil {
			return nil, apperr.Configuration("guild id %q: %v", rt.GuildID, err)
		}
		entry := &route{Route: rt, admin: make(map[discord.RoleID]struct{}, len(rt.AdminRoles))}
		for _, role := range rt.AdminRoles {
			sf, err := parseID("admin_roles", role)
			if err != nil {
				return nil, apperr.Configuration("guild %s: admin role %q is not an id", rt.GuildID, role)
			}
			entry.admin[discord.RoleID(sf)] = struct{}{}
		}
		r.routes[g] = entry
	}
	return r, nil
}

// commands builds the guild's command set: /event with an optional type.
func commands(types []model.EventType) []api.CreateCommandData {
	opt := &discord.StringOption{
		OptionName:  "type",
		Description: "Kind of event to create",
	}
	for i, t := range types {
		if i == maxChoices {
			break
		}
		opt.Choices = append(opt.Choices, discord.StringChoice{Name: t.Name, Value: t.Name})
	}
	return []api.CreateCommandData{{
		Name:        CommandName,
		Description: "Create an event, or edit the event of this thread",
		Options:     discord.CommandOptions{opt},
	}}
}

// RegisterCommands overwrites the command set of every routed guild.
func (r *Router) RegisterCommands(ctx context.Context) error {
	client := r.s.WithContext(ctx)
	for g, rt := range r.routes {
		if _, err := client.BulkOverwriteGuildCommands(r.appID, g, commands(rt.EventTypes)); err != nil {
			return apperr.External("register commands for guild "+g.String(), err)
		}
		appLog.Info("registered commands", "guild", g.String(), "types", len(rt.EventTypes))
	}
	return nil
}

// Attach installs the gateway handlers and the intents they need.
func (r *Router) Attach() {
	r.s.AddIntents(gateway.IntentGuilds | gateway.IntentGuildMessages | gateway.IntentMessageContent)
	r.s.AddHandler(r.onInteraction)
	r.s.AddHandler(r.onMessage)
}

func (r *Router) onInteraction(e *gateway.InteractionCreateEvent) {
	rt, ok := r.routes[e.GuildID]
	if !ok {
		appLog.Debug("interaction from unrouted guild", "guild", e.GuildID.String())
		return
	}
	if cmd, ok := e.Data.(*discord.CommandInteraction); ok && cmd.Name != CommandName {
		return
	}
	in, ok := fromInteraction(&e.InteractionEvent, rt.isAdmin, r.now())
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	rt.Handler.HandleInteraction(ctx, in)
}

func (r *Router) onMessage(e *gateway.MessageCreateEvent) {
	if e.Author.Bot {
		return
	}
	rt, ok := r.routes[e.GuildID]
	if !ok {
		return
	}
	rt.Handler.HandleMessage(fromMessage(e.Message))
}
