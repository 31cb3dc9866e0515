// Package config assembles nino's Config from hardcoded defaults
// overlaid by rows from nino_setting, mirroring the teacher's
// typed-struct-plus-env-overlay pattern minus the file/env layers the
// teacher used for its VM backends.
package config

import (
	"strings"
)

// Config is the process-wide configuration assembled once the DB is
// reachable. Every field has a hardcoded default; Settings overrides it
// from nino_setting once the cache is populated.
type Config struct {
	CoreThreadCount      int
	JSThreadCount        int
	WebServerPort        int
	WebRequestTimeoutMs  int64
	DBConnectionPoolSize int
	DebugPort            int
	LoginPaths           string
	SystemID             string
	LogLevel             string
	TracingEnabled       bool
	TracingExporter      string
	TracingEndpoint      string
	TracingSampleRatePct int64
}

// DefaultConfig returns the hardcoded defaults from spec.md §6's settings
// table.
func DefaultConfig() *Config {
	return &Config{
		CoreThreadCount:      4,
		JSThreadCount:        1,
		WebServerPort:        8080,
		WebRequestTimeoutMs:  30000,
		DBConnectionPoolSize: 0, // 0 means PoolSizeOrDefault(core+js)
		DebugPort:            0, // 0 means disabled
		LoginPaths:           "/login",
		SystemID:             "N1N0",
		LogLevel:             "info",
		TracingEnabled:       false,
		TracingExporter:      "otlp-http",
		TracingEndpoint:      "localhost:4318",
		TracingSampleRatePct: 100,
	}
}

// SettingsSource is the narrow read interface config needs from
// contentcache.Settings, to avoid importing that package (which itself
// depends on dbfacade) for what is a handful of typed lookups.
type SettingsSource interface {
	Int(key string, def int64) int64
	Str(key, def string) string
	Bool(key string, def bool) bool
}

// ApplySettings overlays nino_setting rows on top of the hardcoded
// defaults. Absent keys keep their prior value, and so do integer values
// that fail to parse, same as Settings.Int's own fallback behavior; a
// present boolean value other than "1"/"true" reads as false, as in
// Settings.Bool.
func (c *Config) ApplySettings(s SettingsSource) {
	c.CoreThreadCount = int(s.Int("nino_core_thread_count", int64(c.CoreThreadCount)))
	c.JSThreadCount = int(s.Int("nino_js_thread_count", int64(c.JSThreadCount)))
	c.WebServerPort = int(s.Int("nino_web_server_port", int64(c.WebServerPort)))
	c.WebRequestTimeoutMs = s.Int("nino_web_request_timeout_ms", c.WebRequestTimeoutMs)
	c.DBConnectionPoolSize = int(s.Int("nino_db_connection_pool_size", int64(c.DBConnectionPoolSize)))
	c.DebugPort = int(s.Int("nino_debug_port", int64(c.DebugPort)))
	c.LoginPaths = s.Str("nino_login_paths", c.LoginPaths)
	c.SystemID = s.Str("nino_system_id", c.SystemID)
	c.LogLevel = s.Str("nino_log_level", c.LogLevel)
	c.TracingEnabled = s.Bool("nino_tracing_enabled", c.TracingEnabled)
	c.TracingExporter = s.Str("nino_tracing_exporter", c.TracingExporter)
	c.TracingEndpoint = s.Str("nino_tracing_endpoint", c.TracingEndpoint)
	c.TracingSampleRatePct = s.Int("nino_tracing_sample_rate_pct", c.TracingSampleRatePct)
}

// ConnStringFromArgs resolves the bootstrap connection string per §6:
// positional CLI arg takes precedence, falling back to the NINO env var.
// This is the one value that must be available before any DB read can
// happen, so it cannot itself come from nino_setting.
func ConnStringFromArgs(positional, envVar string) (string, bool) {
	if v := strings.TrimSpace(positional); v != "" {
		return v, true
	}
	if v := strings.TrimSpace(envVar); v != "" {
		return v, true
	}
	return "", false
}

