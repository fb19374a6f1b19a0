package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"gatherbot/internal/app"
	"gatherbot/internal/config"
	appLog "gatherbot/internal/log"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	logLevel   string
	check      bool
}

func main() {
	flags := parseFlags()

	// A missing .env file is fine; the token may come from the environment.
	if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Error("failed to load env file", err, "path", flags.envFile)
		os.Exit(1)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI flags override the config file.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Error("invalid log level", err, "log_level", conf.LogLevel)
		os.Exit(1)
	}
	appLog.SetLevel(level)
	appLog.Info("gatherbot starting", "version", version)

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"guilds", len(conf.Guilds),
		"editing_timeout", conf.EditingTimeout,
		"session_idle", conf.SessionIdle,
		"announce_lead", conf.AnnounceLead,
		"stale_after", conf.StaleAfter,
		"catch_up", conf.Maintenance.CatchUp,
		"announce", conf.Maintenance.Announce,
	)
	if flags.check {
		appLog.Info("config ok")
		return
	}

	// Root context, cancelled on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bot, err := app.Configure(ctx, conf, os.Getenv("DISCORD_TOKEN"))
	if err != nil {
		appLog.Error("failed to configure", err)
		os.Exit(1)
	}
	if err := bot.Run(ctx); err != nil {
		appLog.Error("gatherbot stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("gatherbot exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/gatherbot/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Path to a .env file with DISCORD_TOKEN")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level (overrides config if set)")
	flag.BoolVar(&cfg.check, "check", false, "Validate the config and exit")

	flag.Parse()

	return cfg
}
