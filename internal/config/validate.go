package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"time"

	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/reminder"
	"github.com/flemzord/daybook/internal/widget"
)

var validSource = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks the structural validity of a Config and reports every
// problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, validateLog(cfg.Log)...)
	errs = append(errs, validateScheduler(cfg.Scheduler)...)
	errs = append(errs, validateReminders(cfg.Reminders)...)
	errs = append(errs, validateBackup(cfg.Backup)...)
	errs = append(errs, validateNotify(cfg.Notify)...)
	errs = append(errs, validateGateway(cfg.Gateway)...)
	errs = append(errs, validateTelemetry(cfg.Telemetry)...)

	if _, err := widget.ParseMode(cfg.Widget.Mode); err != nil {
		errs = append(errs, fmt.Errorf("config: widget.mode: %w", err))
	}
	if cfg.Database.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: database.busy_timeout must be non-negative, got %d", cfg.Database.BusyTimeout))
	}

	return errors.Join(errs...)
}

func validateLog(l LogConfig) []error {
	var errs []error
	if l.Level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
			errs = append(errs, fmt.Errorf("config: log.level: %w", err))
		}
	}
	switch l.Format {
	case "", "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format must be auto, text or json, got %q", l.Format))
	}
	return errs
}

func validateScheduler(s SchedulerConfig) []error {
	var errs []error
	if s.Workers < 0 {
		errs = append(errs, fmt.Errorf("config: scheduler.workers must be non-negative, got %d", s.Workers))
	}
	if s.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("config: scheduler.max_attempts must be non-negative, got %d", s.MaxAttempts))
	}
	if s.BackoffBase < 0 || s.BackoffMax < 0 {
		errs = append(errs, errors.New("config: scheduler backoff durations must be non-negative"))
	}
	if s.BackoffBase > 0 && s.BackoffMax > 0 && s.BackoffBase > s.BackoffMax {
		errs = append(errs, fmt.Errorf("config: scheduler.backoff_base (%s) exceeds backoff_max (%s)", s.BackoffBase, s.BackoffMax))
	}
	return errs
}

func validateReminders(r ReminderConfig) []error {
	var errs []error
	if r.Timezone != "" {
		if _, err := time.LoadLocation(r.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("config: reminders.timezone: %w", err))
		}
	}
	if r.QuietHours != "" {
		if _, err := reminder.ParseQuietHours(r.QuietHours); err != nil {
			errs = append(errs, fmt.Errorf("config: reminders.quiet_hours: %w", err))
		}
	}
	if r.SummaryCron != "" {
		if _, err := cron.ParseSchedule(r.SummaryCron); err != nil {
			errs = append(errs, fmt.Errorf("config: reminders.summary_cron: %w", err))
		}
	}
	if r.OverdueInterval < 0 || r.SummaryInterval < 0 {
		errs = append(errs, errors.New("config: reminder intervals must be non-negative"))
	}
	return errs
}

func validateBackup(b BackupConfig) []error {
	var errs []error
	if b.Retain < 0 {
		errs = append(errs, fmt.Errorf("config: backup.retain must be at least 1, got %d", b.Retain))
	}
	if b.Interval < 0 {
		errs = append(errs, errors.New("config: backup.interval must be non-negative"))
	}
	return errs
}

func validateNotify(n NotifyConfig) []error {
	if !n.Ntfy.Enabled() {
		return nil
	}
	var errs []error
	if u, err := url.Parse(n.Ntfy.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("config: notify.ntfy.url %q is not an absolute URL", n.Ntfy.URL))
	}
	if n.Ntfy.Topic == "" {
		errs = append(errs, errors.New("config: notify.ntfy.topic is required when url is set"))
	}
	return errs
}

func validateGateway(g GatewayConfig) []error {
	var errs []error
	if g.Bind != "" {
		if _, _, err := net.SplitHostPort(g.Bind); err != nil {
			errs = append(errs, fmt.Errorf("config: gateway.bind: %w", err))
		}
	}
	if (g.Auth.BasicUser == "") != (g.Auth.BasicPass == "") {
		errs = append(errs, errors.New("config: gateway.auth.basic_user and basic_pass must be set together"))
	}
	for source, wh := range g.Webhooks {
		if !validSource.MatchString(source) {
			errs = append(errs, fmt.Errorf("config: gateway.webhooks: invalid source name %q", source))
		}
		if wh.Secret == "" {
			errs = append(errs, fmt.Errorf("config: gateway.webhooks.%s.secret is required", source))
		}
	}
	return errs
}

func validateTelemetry(t TelemetryConfig) []error {
	if !t.Enabled {
		return nil
	}
	var errs []error
	if t.Endpoint == "" {
		errs = append(errs, errors.New("config: telemetry.endpoint is required when telemetry is enabled"))
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_ratio must be within [0,1], got %v", t.SampleRatio))
	}
	return errs
}
