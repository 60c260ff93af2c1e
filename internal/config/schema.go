// Package config handles YAML configuration loading, environment variable
// expansion, defaults and structural validation for daybook.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir holds the database, the lock file and, by default, backups.
	// Empty means the platform default chosen by the caller.
	DataDir string `yaml:"data_dir,omitempty"`

	Log       LogConfig       `yaml:"log,omitempty"`
	Database  DatabaseConfig  `yaml:"database,omitempty"`
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`
	Widget    WidgetConfig    `yaml:"widget,omitempty"`
	Reminders ReminderConfig  `yaml:"reminders,omitempty"`
	Backup    BackupConfig    `yaml:"backup,omitempty"`
	Notify    NotifyConfig    `yaml:"notify,omitempty"`
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level,omitempty"`
	// Format is auto, text or json. auto picks text on a terminal.
	Format string `yaml:"format,omitempty"`
}

// DatabaseConfig configures the SQLite record and job store.
type DatabaseConfig struct {
	// Path is the database file. Defaults to {data_dir}/daybook.db.
	Path string `yaml:"path,omitempty"`
	// WAL enables WAL journal mode. Defaults to true.
	WAL *bool `yaml:"wal,omitempty"`
	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout,omitempty"`
}

// SchedulerConfig tunes the job scheduler.
type SchedulerConfig struct {
	Workers     int           `yaml:"workers,omitempty"`
	MaxAttempts int           `yaml:"max_attempts,omitempty"`
	BackoffBase time.Duration `yaml:"backoff_base,omitempty"`
	BackoffMax  time.Duration `yaml:"backoff_max,omitempty"`
}

// WidgetConfig configures home-screen widget refresh.
type WidgetConfig struct {
	// Mode is every_day, every_hour or on_external_event.
	Mode string `yaml:"mode,omitempty"`
}

// ReminderConfig configures task reminders and the periodic digests.
type ReminderConfig struct {
	// Timezone is an IANA zone name used for quiet hours and the daily
	// summary window. Defaults to Local.
	Timezone string `yaml:"timezone,omitempty"`
	// QuietHours suppresses the overdue nag, "HH:MM-HH:MM".
	QuietHours      string        `yaml:"quiet_hours,omitempty"`
	OverdueInterval time.Duration `yaml:"overdue_interval,omitempty"`
	SummaryInterval time.Duration `yaml:"summary_interval,omitempty"`
	// SummaryCron, when set, replaces SummaryInterval, e.g. "0 8 * * *".
	SummaryCron string `yaml:"summary_cron,omitempty"`
}

// BackupConfig configures periodic database backups.
type BackupConfig struct {
	// Dir defaults to {data_dir}/backups.
	Dir      string        `yaml:"dir,omitempty"`
	Prefix   string        `yaml:"prefix,omitempty"`
	Retain   int           `yaml:"retain,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty"`
}

// NotifyConfig selects notification sinks. The log sink is always on.
type NotifyConfig struct {
	Ntfy NtfyConfig `yaml:"ntfy,omitempty"`
}

// NtfyConfig configures push delivery through an ntfy server.
type NtfyConfig struct {
	URL   string `yaml:"url,omitempty"`
	Topic string `yaml:"topic,omitempty"`
	Token string `yaml:"token,omitempty"`
}

// Enabled reports whether ntfy delivery is configured.
func (n NtfyConfig) Enabled() bool { return n.URL != "" }

// GatewayConfig holds HTTP gateway configuration.
type GatewayConfig struct {
	Bind            string        `yaml:"bind,omitempty"`
	Auth            AuthConfig    `yaml:"auth,omitempty"`
	ReadTimeout     time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `yaml:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`

	// Webhooks maps an external event source name, such as "phone-unlock",
	// to its HMAC secret. Each source is served at POST /webhooks/{source}.
	Webhooks map[string]WebhookConfig `yaml:"webhooks,omitempty"`

	// WidgetOrigins lists the browser origins allowed to open /ws/widgets.
	// Same-origin requests are always accepted.
	WidgetOrigins []string `yaml:"widget_origins,omitempty"`
}

// WebhookConfig configures one webhook source.
type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// AuthConfig configures authentication for admin endpoints.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token,omitempty"`
	BasicUser   string `yaml:"basic_user,omitempty"`
	BasicPass   string `yaml:"basic_pass,omitempty"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
	// Endpoint is the OTLP/HTTP collector, host:port.
	Endpoint    string  `yaml:"endpoint,omitempty"`
	Insecure    bool    `yaml:"insecure,omitempty"`
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
}

// Secrets returns the configured credentials, for log redaction.
func (c *Config) Secrets() []string {
	var out []string
	candidates := []string{
		c.Gateway.Auth.BearerToken,
		c.Gateway.Auth.BasicPass,
		c.Notify.Ntfy.Token,
	}
	for _, wh := range c.Gateway.Webhooks {
		candidates = append(candidates, wh.Secret)
	}
	for _, s := range candidates {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
