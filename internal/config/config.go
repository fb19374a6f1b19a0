package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"gatherbot/internal/apperr"
	"gatherbot/internal/model"
	"gatherbot/internal/temporal"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. The bot token is not part of it; it comes from DISCORD_TOKEN.

// BasicAuthConfig holds HTTP Basic Auth credentials for the feed endpoints.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// TimezoneConfig is one named offset rule. Start and End are either annual
// ("MM-DD HH:MM") or absolute ("YYYY-MM-DD HH:MM") UTC bounds.
type TimezoneConfig struct {
	Name   string `yaml:"name" json:"name"`
	Offset int    `yaml:"offset" json:"offset"`
	Start  string `yaml:"start" json:"start"`
	End    string `yaml:"end" json:"end"`
}

// EventTypeConfig is one entry of a guild's event-type catalog.
type EventTypeConfig struct {
	Name string `yaml:"name" json:"name"`
	// Channel is the id of the channel event threads are opened under.
	Channel     string `yaml:"channel" json:"channel"`
	Kind        string `yaml:"kind" json:"kind"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// GuildConfig is everything configured for one guild.
type GuildConfig struct {
	ID string `yaml:"id" json:"id"`
	// AdminRoles are role ids that pass the administrative check.
	AdminRoles []string          `yaml:"admin_roles" json:"admin_roles"`
	Timezones  []TimezoneConfig  `yaml:"timezones" json:"timezones"`
	EventTypes []EventTypeConfig `yaml:"event_types" json:"event_types"`
}

// MaintenanceConfig holds cron specs (standard five-field syntax) for the
// periodic maintenance ticks.
type MaintenanceConfig struct {
	CatchUp      string `yaml:"catch_up" json:"catch_up"`
	Announce     string `yaml:"announce" json:"announce"`
	CloseThreads string `yaml:"close_threads" json:"close_threads"`
	Sweep        string `yaml:"sweep" json:"sweep"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the feed. Empty disables it.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	EditingTimeout time.Duration `yaml:"editing_timeout" json:"editing_timeout"`
	ImageTimeout   time.Duration `yaml:"image_timeout" json:"image_timeout"`
	SessionIdle    time.Duration `yaml:"session_idle" json:"session_idle"`

	// FormatCacheSize bounds each guild's date format cache.
	FormatCacheSize int `yaml:"format_cache_size" json:"format_cache_size"`

	// FinishLead is how far ahead a non-admin's event must start.
	FinishLead time.Duration `yaml:"finish_lead" json:"finish_lead"`
	// AnnounceLead is how long before the start a reminder is posted.
	AnnounceLead time.Duration `yaml:"announce_lead" json:"announce_lead"`
	// StaleAfter is how long after the end a one-off event's thread is closed.
	StaleAfter time.Duration `yaml:"stale_after" json:"stale_after"`
	// AnnounceRate is the minimum spacing between maintenance platform calls.
	AnnounceRate time.Duration `yaml:"announce_rate" json:"announce_rate"`

	// HorizonDays is the default window of /api/events.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	Maintenance MaintenanceConfig `yaml:"maintenance" json:"maintenance"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Guilds []GuildConfig `yaml:"guilds" json:"guilds"`
}

const (
	defaultListen          = "127.0.0.1:8080"
	defaultLogLevel        = "info"
	defaultEditingTimeout  = 15 * time.Minute
	defaultImageTimeout    = 2 * time.Minute
	defaultSessionIdle     = 2 * time.Hour
	defaultFormatCacheSize = 4096
	defaultFinishLead      = 30 * time.Minute
	defaultAnnounceLead    = 15 * time.Minute
	defaultStaleAfter      = 24 * time.Hour
	defaultAnnounceRate    = time.Second
	defaultHorizonDays     = 14

	defaultCatchUpCron  = "*/5 * * * *"
	defaultAnnounceCron = "* * * * *"
	defaultCloseCron    = "0 * * * *"
	defaultSweepCron    = "*/10 * * * *"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          defaultListen,
		LogLevel:        defaultLogLevel,
		EditingTimeout:  defaultEditingTimeout,
		ImageTimeout:    defaultImageTimeout,
		SessionIdle:     defaultSessionIdle,
		FormatCacheSize: defaultFormatCacheSize,
		FinishLead:      defaultFinishLead,
		AnnounceLead:    defaultAnnounceLead,
		StaleAfter:      defaultStaleAfter,
		AnnounceRate:    defaultAnnounceRate,
		HorizonDays:     defaultHorizonDays,
		Maintenance: MaintenanceConfig{
			CatchUp:      defaultCatchUpCron,
			Announce:     defaultAnnounceCron,
			CloseThreads: defaultCloseCron,
			Sweep:        defaultSweepCron,
		},
		BasicAuth: nil,
		Guilds:    []GuildConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.EditingTimeout == 0 {
		c.EditingTimeout = defaultEditingTimeout
	}
	if c.ImageTimeout <= 0 {
		c.ImageTimeout = defaultImageTimeout
	}
	if c.SessionIdle <= 0 {
		c.SessionIdle = defaultSessionIdle
	}
	if c.FormatCacheSize <= 0 {
		c.FormatCacheSize = defaultFormatCacheSize
	}
	if c.FinishLead <= 0 {
		c.FinishLead = defaultFinishLead
	}
	if c.AnnounceLead <= 0 {
		c.AnnounceLead = defaultAnnounceLead
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.AnnounceRate <= 0 {
		c.AnnounceRate = defaultAnnounceRate
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}

	m := &c.Maintenance
	if m.CatchUp == "" {
		m.CatchUp = defaultCatchUpCron
	}
	if m.Announce == "" {
		m.Announce = defaultAnnounceCron
	}
	if m.CloseThreads == "" {
		m.CloseThreads = defaultCloseCron
	}
	if m.Sweep == "" {
		m.Sweep = defaultSweepCron
	}

	if c.Guilds == nil {
		c.Guilds = []GuildConfig{}
	}
	for i := range c.Guilds {
		for j := range c.Guilds[i].EventTypes {
			et := &c.Guilds[i].EventTypes[j]
			et.Name = strings.TrimSpace(et.Name)
			if et.Kind == "" {
				et.Kind = model.KindExternal.String()
			}
		}
	}
}

// coverageYear is checked by Validate; a leap year exercises Feb 29.
const coverageYear = 2024

// Validate reports the first problem that must prevent startup as a
// ConfigurationError.
func (c *Config) Validate() error {
	if c.EditingTimeout <= 0 {
		return apperr.Configuration("editing_timeout must be positive, got %s", c.EditingTimeout)
	}
	for name, spec := range map[string]string{
		"maintenance.catch_up":      c.Maintenance.CatchUp,
		"maintenance.announce":      c.Maintenance.Announce,
		"maintenance.close_threads": c.Maintenance.CloseThreads,
		"maintenance.sweep":         c.Maintenance.Sweep,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return &apperr.ConfigurationError{Msg: name + " " + spec, Err: err}
		}
	}
	if len(c.Guilds) == 0 {
		return apperr.Configuration("no guilds configured")
	}

	seen := make(map[string]bool, len(c.Guilds))
	for i := range c.Guilds {
		g := &c.Guilds[i]
		if strings.TrimSpace(g.ID) == "" {
			return apperr.Configuration("guilds[%d] has no id", i)
		}
		if seen[g.ID] {
			return apperr.Configuration("guild %s is configured twice", g.ID)
		}
		seen[g.ID] = true

		if _, err := g.Catalog(); err != nil {
			return err
		}
		res, err := g.Resolver(c.FormatCacheSize)
		if err != nil {
			return err
		}
		if err := res.CheckCoverage(coverageYear); err != nil {
			return &apperr.ConfigurationError{Msg: "guild " + g.ID + " timezone table", Err: err}
		}
	}
	return nil
}

// Guild returns the configuration of guild id.
func (c *Config) Guild(id string) (*GuildConfig, bool) {
	for i := range c.Guilds {
		if c.Guilds[i].ID == id {
			return &c.Guilds[i], true
		}
	}
	return nil, false
}

// Rules converts the timezone table.
func (g *GuildConfig) Rules() (temporal.RuleSet, error) {
	rules := make(temporal.RuleSet, 0, len(g.Timezones))
	for _, tz := range g.Timezones {
		w, err := temporal.ParseWindow(tz.Start, tz.End)
		if err != nil {
			return nil, &apperr.ConfigurationError{Msg: "guild " + g.ID + " timezone " + tz.Name, Err: err}
		}
		rules = append(rules, temporal.Rule{Name: tz.Name, Offset: tz.Offset, Window: w})
	}
	return rules, nil
}

// Resolver builds the guild's temporal resolver.
func (g *GuildConfig) Resolver(cacheSize int) (*temporal.Resolver, error) {
	rules, err := g.Rules()
	if err != nil {
		return nil, err
	}
	return temporal.NewResolver(rules, cacheSize)
}

// Catalog converts the event-type catalog. It fails on an empty catalog.
func (g *GuildConfig) Catalog() ([]model.EventType, error) {
	if len(g.EventTypes) == 0 {
		return nil, apperr.Configuration("guild %s has an empty event-type catalog", g.ID)
	}
	out := make([]model.EventType, 0, len(g.EventTypes))
	names := make(map[string]bool, len(g.EventTypes))
	for _, et := range g.EventTypes {
		key := strings.ToLower(et.Name)
		switch {
		case key == "" || strings.ContainsAny(key, " \t\n"):
			return nil, apperr.Configuration("guild %s: event type name %q must be a single word", g.ID, et.Name)
		case names[key]:
			return nil, apperr.Configuration("guild %s: event type %q is listed twice", g.ID, et.Name)
		case strings.TrimSpace(et.Channel) == "":
			return nil, apperr.Configuration("guild %s: event type %q has no channel", g.ID, et.Name)
		}
		names[key] = true

		kind, err := model.ParseEntityKind(et.Kind)
		if err != nil {
			return nil, &apperr.ConfigurationError{Msg: "guild " + g.ID + " event type " + et.Name, Err: err}
		}
		out = append(out, model.EventType{
			Name:        et.Name,
			Description: et.Description,
			ChannelID:   et.Channel,
			Kind:        kind,
		})
	}
	return out, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Load does not validate; callers run Validate before starting.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".gatherbot-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
