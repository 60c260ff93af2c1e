package widget

import (
	"testing"
	"time"

	"github.com/flemzord/daybook/internal/cron"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"every_day", "every_hour", "on_external_event"} {
		m, err := ParseMode(s)
		if err != nil || string(m) != s {
			t.Errorf("ParseMode(%q) = %q, %v", s, m, err)
		}
	}
	for _, s := range []string{"", "hourly", "EVERY_DAY"} {
		if _, err := ParseMode(s); err == nil {
			t.Errorf("ParseMode(%q) should fail", s)
		}
	}
}

func TestPlanMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode     Mode
		periodic bool
		interval time.Duration
	}{
		{ModeEveryDay, true, 24 * time.Hour},
		{ModeEveryHour, true, time.Hour},
		{ModeOnExternalEvent, false, 0},
	}
	for _, tt := range tests {
		def, ok := planMode(tt.mode)
		if ok != tt.periodic {
			t.Errorf("%s: periodic = %v, want %v", tt.mode, ok, tt.periodic)
			continue
		}
		if !ok {
			continue
		}
		if def.Key != JobKey || def.Kind != cron.Periodic || def.Interval != tt.interval {
			t.Errorf("%s: def = %+v", tt.mode, def)
		}
		if err := def.Validate(); err != nil {
			t.Errorf("%s: invalid definition: %v", tt.mode, err)
		}
	}
}
