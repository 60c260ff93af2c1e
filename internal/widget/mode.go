package widget

import (
	"fmt"
	"time"

	"github.com/flemzord/daybook/internal/cron"
)

// Mode is the refresh cadence of the widgets.
type Mode string

// Refresh modes.
const (
	ModeEveryDay        Mode = "every_day"
	ModeEveryHour       Mode = "every_hour"
	ModeOnExternalEvent Mode = "on_external_event"
)

// JobKey is the key of the periodic refresh job.
const JobKey cron.Key = "widget-refresh"

// ParseMode validates s as a refresh mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeEveryDay, ModeEveryHour, ModeOnExternalEvent:
		return m, nil
	}
	return "", fmt.Errorf("widget: unknown refresh mode %q (want every_day, every_hour or on_external_event)", s)
}

// interval returns the refresh period of m, zero for event-driven mode.
func (m Mode) interval() time.Duration {
	switch m {
	case ModeEveryDay:
		return 24 * time.Hour
	case ModeEveryHour:
		return time.Hour
	}
	return 0
}

// planMode returns the refresh job m needs, ok is false when m has no
// periodic job.
func planMode(m Mode) (def cron.Definition, ok bool) {
	iv := m.interval()
	if iv == 0 {
		return cron.Definition{}, false
	}
	return cron.Definition{
		Key:      JobKey,
		Kind:     cron.Periodic,
		Policy:   cron.Replace,
		Interval: iv,
	}, true
}
