package config

import "time"

// Defaults applied by ApplyDefaults.
const (
	DefaultWidgetMode      = "every_day"
	DefaultBackupRetain    = 2
	DefaultBackupInterval  = 24 * time.Hour
	DefaultBackupPrefix    = "daybook"
	DefaultOverdueInterval = 6 * time.Hour
	DefaultSummaryInterval = 24 * time.Hour
	DefaultBind            = "127.0.0.1:8080"
	DefaultBusyTimeout     = 5000
)

// ApplyDefaults fills zero values. Paths relative to the data directory are
// left empty; the wiring code resolves them once the data directory is known.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}
	if c.Database.WAL == nil {
		t := true
		c.Database.WAL = &t
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = DefaultBusyTimeout
	}
	if c.Widget.Mode == "" {
		c.Widget.Mode = DefaultWidgetMode
	}
	if c.Reminders.OverdueInterval == 0 {
		c.Reminders.OverdueInterval = DefaultOverdueInterval
	}
	if c.Reminders.SummaryInterval == 0 {
		c.Reminders.SummaryInterval = DefaultSummaryInterval
	}
	if c.Backup.Retain == 0 {
		c.Backup.Retain = DefaultBackupRetain
	}
	if c.Backup.Interval == 0 {
		c.Backup.Interval = DefaultBackupInterval
	}
	if c.Backup.Prefix == "" {
		c.Backup.Prefix = DefaultBackupPrefix
	}
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = DefaultBind
	}
	if c.Gateway.ReadTimeout <= 0 {
		c.Gateway.ReadTimeout = 10 * time.Second
	}
	if c.Gateway.WriteTimeout <= 0 {
		c.Gateway.WriteTimeout = 30 * time.Second
	}
	if c.Gateway.ShutdownTimeout <= 0 {
		c.Gateway.ShutdownTimeout = 5 * time.Second
	}
	if c.Telemetry.Enabled && c.Telemetry.SampleRatio == 0 {
		c.Telemetry.SampleRatio = 1
	}
}

// Location returns the reminder time zone, Local when unset. Call after
// Validate.
func (r ReminderConfig) Location() *time.Location {
	if r.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
