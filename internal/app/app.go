// Package app is the composition root: it turns a validated configuration
// into running editors, maintenance ticks, the gateway router and the feed.
package app

import (
	"context"
	"fmt"

	"github.com/diamondburned/arikawa/v3/state"
	"golang.org/x/sync/errgroup"

	"gatherbot/internal/apperr"
	"gatherbot/internal/codec"
	"gatherbot/internal/collector"
	"gatherbot/internal/config"
	"gatherbot/internal/discord"
	"gatherbot/internal/editor"
	"gatherbot/internal/ics"
	appLog "gatherbot/internal/log"
	"gatherbot/internal/maintenance"
	"gatherbot/internal/platform"
	"gatherbot/internal/session"
	"gatherbot/internal/web"
)

// core is everything that does not depend on a live gateway connection.
type core struct {
	sessions   *session.Store
	collectors *collector.Registry
	catalog    *ics.Catalog
	editors    map[string]*editor.Machine
	routes     []discord.Route
	runner     *maintenance.Runner
	scheduler  *maintenance.Scheduler
}

// build wires the per-guild editors and the maintenance runner against plat.
// kinds may be nil, in which case channel venues decode as voice.
func build(cfg *config.Config, plat platform.Platform, botID string, kinds codec.ChannelKindFunc) (*core, error) {
	c := &core{
		sessions:   session.NewStore(cfg.SessionIdle),
		collectors: collector.NewRegistry(),
		catalog:    ics.NewCatalog(),
		editors:    make(map[string]*editor.Machine, len(cfg.Guilds)),
	}

	var guilds []maintenance.Guild
	for i := range cfg.Guilds {
		g := &cfg.Guilds[i]
		types, err := g.Catalog()
		if err != nil {
			return nil, err
		}
		res, err := g.Resolver(cfg.FormatCacheSize)
		if err != nil {
			return nil, err
		}
		var opts []codec.Option
		if kinds != nil {
			opts = append(opts, codec.WithChannelKinds(kinds))
		}
		cod := codec.New(res, opts...)

		m, err := editor.New(editor.Config{
			GuildID:        g.ID,
			EventTypes:     types,
			EditingTimeout: cfg.EditingTimeout,
			ImageTimeout:   cfg.ImageTimeout,
			FinishLead:     cfg.FinishLead,
			BotID:          botID,
		}, plat, cod, res, c.sessions, c.collectors)
		if err != nil {
			return nil, err
		}
		guildID := g.ID
		m.OnTransition = func(draftID string, from, to editor.State) {
			appLog.Debug("draft transition", "guild", guildID, "draft", draftID, "from", from, "to", to)
		}
		c.editors[g.ID] = m

		c.routes = append(c.routes, discord.Route{
			GuildID:    g.ID,
			Handler:    m,
			AdminRoles: g.AdminRoles,
			EventTypes: types,
		})
		guilds = append(guilds, maintenance.Guild{
			ID:         g.ID,
			EventTypes: types,
			Codec:      cod,
			Resolver:   res,
			Editor:     m,
			BotID:      botID,
		})
	}

	runner, err := maintenance.NewRunner(maintenance.Config{
		AnnounceLead: cfg.AnnounceLead,
		StaleAfter:   cfg.StaleAfter,
		CallInterval: cfg.AnnounceRate,
	}, plat, guilds, c.sessions, c.catalog)
	if err != nil {
		return nil, err
	}
	c.runner = runner

	c.scheduler, err = maintenance.NewScheduler(runner, maintenance.Specs{
		CatchUp:      cfg.Maintenance.CatchUp,
		Announce:     cfg.Maintenance.Announce,
		CloseThreads: cfg.Maintenance.CloseThreads,
		Sweep:        cfg.Maintenance.Sweep,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// App is a configured bot, ready to Run.
type App struct {
	cfg    *config.Config
	state  *state.State
	router *discord.Router
	core   *core
}

// Configure validates cfg, identifies the bot with token and builds every
// component. It talks to the platform's REST API but does not open the
// gateway.
func Configure(ctx context.Context, cfg *config.Config, token string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apperr.Configuration("DISCORD_TOKEN is not set")
	}

	s := state.New("Bot " + token)
	rest := s.WithContext(ctx)
	application, err := rest.CurrentApplication()
	if err != nil {
		return nil, fmt.Errorf("fetch application: %w", err)
	}
	me, err := rest.Me()
	if err != nil {
		return nil, fmt.Errorf("fetch bot user: %w", err)
	}

	client := discord.NewClient(s, application.ID)
	c, err := build(cfg, client, me.ID.String(), client.ChannelKind)
	if err != nil {
		return nil, err
	}
	router, err := discord.NewRouter(s, application.ID, c.routes)
	if err != nil {
		return nil, err
	}

	appLog.Info("configured",
		"bot", me.Username,
		"application", application.ID.String(),
		"guilds", len(cfg.Guilds),
		"maintenance_jobs", c.scheduler.Jobs(),
	)
	return &App{cfg: cfg, state: s, router: router, core: c}, nil
}

// Run connects to the gateway and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.router.Attach()
	if err := a.state.Open(ctx); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer func() {
		if err := a.state.Close(); err != nil {
			appLog.Error("gateway close failed", err)
		}
	}()

	if err := a.router.RegisterCommands(ctx); err != nil {
		return err
	}
	return a.core.serve(ctx, a.cfg)
}

// serve runs the background workers until ctx is done.
func (c *core) serve(ctx context.Context, cfg *config.Config) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Fill the feed and repair anything that ended while offline.
		rep, err := c.runner.CatchUp(gctx)
		if err != nil {
			appLog.Error("initial catch-up failed", err)
			return nil
		}
		appLog.Info("initial catch-up done", "scanned", rep.Scanned, "advanced", rep.Advanced)
		return nil
	})
	g.Go(func() error {
		c.scheduler.Start(gctx)
		return nil
	})
	if cfg.Listen != "" {
		g.Go(func() error {
			return web.StartServer(gctx, cfg, c.catalog)
		})
	}
	return g.Wait()
}
