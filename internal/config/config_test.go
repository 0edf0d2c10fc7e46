package config

import (
	"testing"
	"time"

	"skirmish/server/logging"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Scope != "match" || cfg.Peer != "server" {
		t.Fatalf("unexpected identity defaults %+v", cfg)
	}
	if cfg.TickRate != 30 || cfg.InboxCapacity != 1024 || cfg.CatchupMaxTicks != 3 {
		t.Fatalf("unexpected loop defaults %+v", cfg)
	}
	if cfg.RespawnDelay != 3*time.Second || cfg.PickupRespawn != 5*time.Second {
		t.Fatalf("unexpected respawn defaults %v %v", cfg.RespawnDelay, cfg.PickupRespawn)
	}
	if len(cfg.LogSinks) != 1 || cfg.LogSinks[0] != "console" || !cfg.DemoArena {
		t.Fatalf("unexpected log defaults %+v", cfg)
	}
	if _, ok := cfg.Auth(); ok {
		t.Fatalf("expected tokens disabled without a secret")
	}
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"SKIRMISH_ADDR":                  ":9000",
		"SKIRMISH_TICK_RATE":             "60",
		"SKIRMISH_RESPAWN_DELAY":         "1500ms",
		"SKIRMISH_PICKUP_RESPAWN":        "10s",
		"SKIRMISH_LOG_SINKS":             "console, json",
		"SKIRMISH_LOG_JSON_PATH":         "/tmp/events.jsonl",
		"SKIRMISH_LOG_SEVERITY":          "warn",
		"SKIRMISH_JOIN_SECRET":           "0123456789abcdef",
		"SKIRMISH_DEMO_ARENA":            "false",
		"SKIRMISH_LOG_CATEGORY_SEVERITY": "combat:debug,pickups:warn",
	})
	if err != nil {
		t.Fatalf("load overrides: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.TickRate != 60 || cfg.DemoArena {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if cfg.RespawnDelay != 1500*time.Millisecond || cfg.PickupRespawn != 10*time.Second {
		t.Fatalf("unexpected durations %v %v", cfg.RespawnDelay, cfg.PickupRespawn)
	}

	logCfg := cfg.Logging()
	if !logCfg.HasSink("console") || !logCfg.HasSink("json") {
		t.Fatalf("expected both sinks, got %v", logCfg.EnabledSinks)
	}
	if logCfg.JSON.FilePath != "/tmp/events.jsonl" || logCfg.MinimumSeverity != logging.SeverityWarn {
		t.Fatalf("unexpected logging config %+v", logCfg)
	}

	if logCfg.Threshold(logging.CategoryCombat) != logging.SeverityDebug || logCfg.Threshold("pickups") != logging.SeverityWarn {
		t.Fatalf("unexpected category thresholds %v", logCfg.CategorySeverity)
	}
	if logCfg.Threshold(logging.CategoryLifecycle) != logging.SeverityWarn {
		t.Fatalf("expected unlisted categories at the minimum severity")
	}

	authCfg, ok := cfg.Auth()
	if !ok || string(authCfg.Secret) != "0123456789abcdef" || authCfg.TTL != 12*time.Hour {
		t.Fatalf("unexpected auth config %+v", authCfg)
	}
}

func TestLoadFromRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"tick rate": {"SKIRMISH_TICK_RATE": "0"},
		"malformed": {"SKIRMISH_TICK_RATE": "fast"},
		"short key": {"SKIRMISH_JOIN_SECRET": "short"},
		"sink":      {"SKIRMISH_LOG_SINKS": "syslog"},
		"negative":  {"SKIRMISH_RESPAWN_DELAY": "-1s"},
	}
	for name, vars := range cases {
		if _, err := LoadFrom(vars); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}
