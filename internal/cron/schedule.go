package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a 5-field cron expression or a descriptor such as
// "@daily".
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return sched, nil
}

// step returns the fire time that follows prev for a periodic definition.
func step(def Definition, prev time.Time) (time.Time, error) {
	if def.Cron != "" {
		sched, err := ParseSchedule(def.Cron)
		if err != nil {
			return time.Time{}, err
		}
		return sched.Next(prev), nil
	}
	if def.Interval <= 0 {
		return time.Time{}, fmt.Errorf("cron: job %q has no interval", def.Key)
	}
	return prev.Add(def.Interval), nil
}

// stepAfter returns the first fire time of def's schedule, counted from
// next, that lies strictly after now.
func stepAfter(def Definition, next, now time.Time) (time.Time, error) {
	if next.After(now) {
		return next, nil
	}
	if def.Cron != "" {
		return step(def, now)
	}
	if def.Interval <= 0 {
		return time.Time{}, fmt.Errorf("cron: job %q has no interval", def.Key)
	}
	return now.Add(def.Interval - now.Sub(next)%def.Interval), nil
}

// firstFire computes the initial NextFireAt of a freshly installed record.
// ok is false when a OneShot job's fire time has already elapsed.
func firstFire(def Definition, now time.Time) (next time.Time, ok bool, err error) {
	switch def.Kind {
	case OneShot:
		if def.NotBefore.IsZero() {
			return now, true, nil
		}
		if !def.NotBefore.After(now) {
			return time.Time{}, false, nil
		}
		return def.NotBefore, true, nil
	case Periodic:
		if !def.NotBefore.IsZero() {
			if def.NotBefore.Before(now) {
				return now, true, nil
			}
			return def.NotBefore, true, nil
		}
		if def.RunImmediately {
			return now, true, nil
		}
		next, err := step(def, now)
		return next, err == nil, err
	default:
		return time.Time{}, false, fmt.Errorf("cron: unknown kind %q", def.Kind)
	}
}
