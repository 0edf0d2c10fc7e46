// Package config loads server settings from SKIRMISH_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"skirmish/server/internal/auth"
	"skirmish/server/logging"
)

// Config is the process configuration.
type Config struct {
	Addr    string `env:"SKIRMISH_ADDR"    envDefault:":8080"`
	Session string `env:"SKIRMISH_SESSION"`
	Scope   string `env:"SKIRMISH_SCOPE"   envDefault:"match"`
	Peer    string `env:"SKIRMISH_PEER"    envDefault:"server"`

	TickRate        int `env:"SKIRMISH_TICK_RATE"         envDefault:"30"`
	CatchupMaxTicks int `env:"SKIRMISH_CATCHUP_MAX_TICKS" envDefault:"3"`
	InboxCapacity   int `env:"SKIRMISH_INBOX_CAPACITY"    envDefault:"1024"`
	PerPeerLimit    int `env:"SKIRMISH_PER_PEER_LIMIT"    envDefault:"64"`
	SendBuffer      int `env:"SKIRMISH_SEND_BUFFER"       envDefault:"256"`

	RespawnDelay  time.Duration `env:"SKIRMISH_RESPAWN_DELAY"   envDefault:"3s"`
	PickupRespawn time.Duration `env:"SKIRMISH_PICKUP_RESPAWN"  envDefault:"5s"`
	JournalFrames int           `env:"SKIRMISH_JOURNAL_FRAMES"  envDefault:"256"`
	JournalMaxAge time.Duration `env:"SKIRMISH_JOURNAL_MAX_AGE" envDefault:"30s"`

	JoinSecret string        `env:"SKIRMISH_JOIN_SECRET"`
	JoinIssuer string        `env:"SKIRMISH_JOIN_ISSUER" envDefault:"skirmish"`
	JoinTTL    time.Duration `env:"SKIRMISH_JOIN_TTL"    envDefault:"12h"`

	LogSinks    []string `env:"SKIRMISH_LOG_SINKS"     envDefault:"console" envSeparator:","`
	LogJSONPath string   `env:"SKIRMISH_LOG_JSON_PATH"`
	LogSeverity string   `env:"SKIRMISH_LOG_SEVERITY"  envDefault:"info"`
	LogVerbose  bool     `env:"SKIRMISH_LOG_VERBOSE"`

	// LogCategorySeverity is a list like "combat:debug,pickups:warn".
	LogCategorySeverity map[string]string `env:"SKIRMISH_LOG_CATEGORY_SEVERITY" envSeparator:"," envKeyValSeparator:":"`

	DemoArena  bool `env:"SKIRMISH_DEMO_ARENA"  envDefault:"true"`
	PprofTrace bool `env:"SKIRMISH_PPROF_TRACE"`
}

// Load parses the environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	sinks := cfg.LogSinks[:0]
	for _, sink := range cfg.LogSinks {
		if sink = strings.TrimSpace(sink); sink != "" {
			sinks = append(sinks, sink)
		}
	}
	cfg.LogSinks = sinks
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("SKIRMISH_TICK_RATE must be positive, got %d", c.TickRate))
	}
	if c.InboxCapacity <= 0 {
		errs = append(errs, fmt.Errorf("SKIRMISH_INBOX_CAPACITY must be positive, got %d", c.InboxCapacity))
	}
	if c.Scope == "" || c.Peer == "" {
		errs = append(errs, errors.New("SKIRMISH_SCOPE and SKIRMISH_PEER are required"))
	}
	if c.JoinSecret != "" && len(c.JoinSecret) < auth.MinSecretLength {
		errs = append(errs, fmt.Errorf("SKIRMISH_JOIN_SECRET must be at least %d bytes", auth.MinSecretLength))
	}
	if c.RespawnDelay < 0 || c.PickupRespawn < 0 {
		errs = append(errs, errors.New("respawn delays must not be negative"))
	}
	for _, sink := range c.LogSinks {
		if sink != "console" && sink != "json" {
			errs = append(errs, fmt.Errorf("unknown log sink %q", sink))
		}
	}
	return errors.Join(errs...)
}

// Logging maps the log settings onto the router configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	if len(c.LogSinks) > 0 {
		cfg.EnabledSinks = append([]string(nil), c.LogSinks...)
	}
	cfg.MinimumSeverity = logging.ParseSeverity(c.LogSeverity)
	cfg.JSON.FilePath = c.LogJSONPath
	cfg.Console.Verbose = c.LogVerbose
	if len(c.LogCategorySeverity) > 0 {
		cfg.CategorySeverity = make(map[string]logging.Severity, len(c.LogCategorySeverity))
		for category, severity := range c.LogCategorySeverity {
			cfg.CategorySeverity[strings.TrimSpace(category)] = logging.ParseSeverity(strings.TrimSpace(severity))
		}
	}
	return cfg
}

// Auth returns the join token settings, or false when tokens are disabled.
func (c Config) Auth() (auth.Config, bool) {
	if c.JoinSecret == "" {
		return auth.Config{}, false
	}
	return auth.Config{Secret: []byte(c.JoinSecret), Issuer: c.JoinIssuer, TTL: c.JoinTTL}, true
}
