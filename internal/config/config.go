// Package config holds the process-wide configuration for the scheduling
// core: a single Discord channel, a single owner, a handful of directories,
// and the ambient ping-budget/telemetry defaults. Adapted from the gateway's
// config.go struct-of-structs shape, trimmed to one tenant.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Config is the root configuration for the scheduling core process.
type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Owner     OwnerConfig     `json:"owner"`
	Paths     PathsConfig     `json:"paths"`
	Webhook   WebhookConfig   `json:"webhook,omitempty"`
	Budget    BudgetConfig    `json:"budget,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Timezone  string          `json:"timezone,omitempty"`
}

// DatabaseConfig selects the optional Postgres session-history mirror
// (SPEC_FULL §3.7). Mode "standalone" (default) means the JSONL file is the
// only backend; Mode "postgres" additionally mirrors history events to the
// database at PostgresDSN, mirroring the teacher's DatabaseConfig.Mode
// standalone/managed split.
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"` // "standalone" (default) or "postgres"
	PostgresDSN string `json:"-"`               // secret: env only, never persisted to config.json
}

// DiscordConfig holds the bot token and the single channel it operates in.
type DiscordConfig struct {
	Token     string `json:"token,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

// OwnerConfig identifies the single trusted user whose reactions and
// commands are treated as authoritative.
type OwnerConfig struct {
	DiscordUserID string `json:"discord_user_id,omitempty"`
	Name          string `json:"name,omitempty"`
	BotName       string `json:"bot_name,omitempty"`
}

// PathsConfig locates the declarative schedule directories and session log.
type PathsConfig struct {
	StateDir   string `json:"state_dir,omitempty"`   // root; others default under it
	RoutinesDir string `json:"routines_dir,omitempty"`
	RemindersDir string `json:"reminders_dir,omitempty"`
	WebhooksDir string `json:"webhooks_dir,omitempty"`
	ControlDir  string `json:"control_dir,omitempty"`
	SessionLog  string `json:"session_log,omitempty"`
	SessionIdentity string `json:"session_identity,omitempty"`
	PidFile     string `json:"pid_file,omitempty"`
}

// WebhookConfig configures the authenticated HTTP ingress (spec §4.K).
type WebhookConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"`
	Secret  string `json:"secret,omitempty"`
}

// BudgetConfig seeds the ping budget's capacity/refill-rate (spec §4.B).
type BudgetConfig struct {
	Capacity          int     `json:"capacity,omitempty"`
	RefillRateMinutes float64 `json:"refill_rate_minutes,omitempty"`
}

// TelemetryConfig configures OpenTelemetry tracing export.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Insecure bool   `json:"insecure,omitempty"`
	Protocol string `json:"protocol,omitempty"` // "grpc" (default) or "http"
}

// Default returns a Config with sensible defaults; paths resolve relative
// to StateDir once it is known (see ResolvePaths).
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			StateDir: "~/.goclaw-sched",
		},
		Budget: BudgetConfig{
			Capacity:          5,
			RefillRateMinutes: 90,
		},
		Timezone: "UTC",
	}
}

// Load reads config from a JSON5 file (comments/trailing commas allowed,
// matching the gateway's own config format), then overlays env vars; a
// missing file is not an error — env vars and defaults still apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.ResolvePaths()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("DISCORD_TOKEN", &c.Discord.Token)
	envStr("DISCORD_CHANNEL_ID", &c.Discord.ChannelID)
	envStr("DISCORD_OWNER_ID", &c.Owner.DiscordUserID)
	envStr("USER_NAME", &c.Owner.Name)
	envStr("BOT_NAME", &c.Owner.BotName)
	envStr("TIMEZONE", &c.Timezone)
	envStr("STATE_DIR", &c.Paths.StateDir)
	envStr("WEBHOOK_SECRET", &c.Webhook.Secret)
	envStr("WEBHOOK_ADDR", &c.Webhook.Addr)
	if os.Getenv("WEBHOOK_SECRET") != "" {
		c.Webhook.Enabled = true
	}
	if v := os.Getenv("PING_BUDGET_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Budget.Capacity = n
		}
	}
	if v := os.Getenv("PING_BUDGET_REFILL_MINUTES"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Budget.RefillRateMinutes = n
		}
	}
	envStr("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	if c.Telemetry.Endpoint != "" {
		c.Telemetry.Enabled = true
	}
	envStr("GOCLAW_POSTGRES_DSN", &c.Database.PostgresDSN)
	if c.Database.PostgresDSN != "" && c.Database.Mode == "" {
		c.Database.Mode = "postgres"
	}
	if c.Database.Mode == "" {
		c.Database.Mode = "standalone"
	}
}

// ResolvePaths fills in any unset directory/file paths under StateDir and
// expands a leading "~" the way the gateway's own workspace config does.
func (c *Config) ResolvePaths() {
	c.Paths.StateDir = expandHome(c.Paths.StateDir)
	if c.Paths.RoutinesDir == "" {
		c.Paths.RoutinesDir = filepath.Join(c.Paths.StateDir, "routines")
	}
	if c.Paths.RemindersDir == "" {
		c.Paths.RemindersDir = filepath.Join(c.Paths.StateDir, "reminders")
	}
	if c.Paths.WebhooksDir == "" {
		c.Paths.WebhooksDir = filepath.Join(c.Paths.StateDir, "webhooks")
	}
	if c.Paths.ControlDir == "" {
		c.Paths.ControlDir = filepath.Join(c.Paths.StateDir, "control")
	}
	if c.Paths.SessionLog == "" {
		c.Paths.SessionLog = filepath.Join(c.Paths.StateDir, "session_history.jsonl")
	}
	if c.Paths.SessionIdentity == "" {
		c.Paths.SessionIdentity = filepath.Join(c.Paths.StateDir, "sessions.json")
	}
	if c.Paths.PidFile == "" {
		c.Paths.PidFile = filepath.Join(c.Paths.StateDir, "goclaw-sched.pid")
	}
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Validate checks the fields required to actually start the process.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord token is required")
	}
	if c.Discord.ChannelID == "" {
		return fmt.Errorf("discord channel id is required")
	}
	if c.Owner.DiscordUserID == "" {
		return fmt.Errorf("owner discord user id is required")
	}
	return nil
}
